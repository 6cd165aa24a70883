package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/pkg/logger"
)

// NightlyJob adapts the orchestrator to the scheduler's Job interface.
// The orchestrator applies its own run deadline, and skips non-trading
// days itself, so the job fires unconditionally every evening.
type NightlyJob struct {
	orch   *Orchestrator
	logDir string
	log    zerolog.Logger
}

// NewNightlyJob creates the scheduled nightly run job. Each run gets its
// own log file under logDir alongside the main log stream.
func NewNightlyJob(orch *Orchestrator, logDir string, log zerolog.Logger) *NightlyJob {
	return &NightlyJob{
		orch:   orch,
		logDir: logDir,
		log:    log.With().Str("job", "nightly_run").Logger(),
	}
}

// Run executes one pipeline run.
func (j *NightlyJob) Run() error {
	started := time.Now()

	runLog, logErr := logger.NewRunLog(j.log, j.logDir, started)
	log := j.log
	if logErr != nil {
		j.log.Warn().Err(logErr).Msg("Failed to create run log file, logging to main stream only")
	} else {
		log = runLog.Logger
		defer runLog.Close()
	}

	log.Info().Msg("Nightly run starting")
	err := j.orch.Run(context.Background())

	status := j.orch.Status()
	for _, phase := range status.Phases {
		log.Info().
			Str("phase", phase.Name).
			Str("status", phase.Status).
			Int("processed", phase.Processed).
			Int("failed", phase.Failed).
			Int("deferred", phase.Deferred).
			Dur("elapsed", phase.Elapsed).
			Msg("Phase result")
	}

	log.Info().
		Str("run_id", status.RunID).
		Int("budget_remaining", status.BudgetRemaining).
		Dur("duration", time.Since(started)).
		Err(err).
		Msg("Nightly run finished")

	return err
}

// Name returns the job name for the scheduler.
func (j *NightlyJob) Name() string {
	return "nightly_run"
}
