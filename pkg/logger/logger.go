// Package logger builds the application's structured loggers.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
}

// New creates a new structured logger
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

// RunLog tees a logger into a per-run log file named
// YYYYMMDD-HHMMSS-run.log under dir. The caller must Close it when the run
// finishes.
type RunLog struct {
	Logger zerolog.Logger
	Path   string
	file   *os.File
}

// NewRunLog creates the per-run log file and returns a logger that writes to
// both the parent logger's output and the file.
func NewRunLog(parent zerolog.Logger, dir string, startedAt time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, startedAt.Format("20060102-150405")+"-run.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	combined := parent.Output(zerolog.MultiLevelWriter(os.Stdout, file))

	return &RunLog{
		Logger: combined,
		Path:   path,
		file:   file,
	}, nil
}

// Close closes the underlying log file.
func (r *RunLog) Close() error {
	return r.file.Close()
}
