// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig declares one data provider: its priority in fallback
// chains, its rate limits, and the capabilities it supports.
type ProviderConfig struct {
	Name          string
	Priority      int      // 1 = preferred
	RatePerMinute int      // 0 = unlimited
	RatePerDay    int      // 0 = unlimited
	Capabilities  []string // quote_batch, historical_range, fundamentals, earnings_calendar, analyst_recommendations
	APIKey        string
}

// BackupConfig holds S3-compatible backup settings. Backups are skipped when
// Bucket is empty.
type BackupConfig struct {
	Bucket    string
	Endpoint  string // empty for AWS S3 proper
	Region    string
	AccessKey string
	SecretKey string
	Retention int // number of backups to keep
}

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the market database
	LogDir   string // Directory for per-run log files
	LogLevel string
	Port     int
	DevMode  bool

	DailyAPIBudget      int
	APIBudgetReservePct float64
	PriceBatchSize      int
	InterBatchDelay     time.Duration
	WorkerCount         int
	RunDeadline         time.Duration
	MinimumHistoryDays  int
	MarketCloseUTC      string // "HH:MM"; the daily run fires one hour later

	Providers []ProviderConfig
	Backup    BackupConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("NIGHTSHIFT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogDir:   getEnv("NIGHTSHIFT_LOG_DIR", filepath.Join(absDataDir, "logs")),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("NIGHTSHIFT_PORT", 8010),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		DailyAPIBudget:      getEnvAsInt("DAILY_API_BUDGET", 1000),
		APIBudgetReservePct: getEnvAsFloat("API_BUDGET_RESERVE_PCT", 0.2),
		PriceBatchSize:      getEnvAsInt("PRICE_BATCH_SIZE", 100),
		InterBatchDelay:     time.Duration(getEnvAsInt("INTER_BATCH_DELAY_MS", 1000)) * time.Millisecond,
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		RunDeadline:         time.Duration(getEnvAsInt("RUN_DEADLINE_SECONDS", 3600)) * time.Second,
		MinimumHistoryDays:  getEnvAsInt("MINIMUM_HISTORY_DAYS", 100),
		MarketCloseUTC:      getEnv("MARKET_CLOSE_UTC", "21:00"),

		Providers: loadProviders(),
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Retention: getEnvAsInt("BACKUP_RETENTION", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.DailyAPIBudget <= 0 {
		return fmt.Errorf("daily API budget must be positive, got %d", c.DailyAPIBudget)
	}
	if c.APIBudgetReservePct < 0 || c.APIBudgetReservePct >= 1 {
		return fmt.Errorf("API budget reserve pct must be in [0, 1), got %f", c.APIBudgetReservePct)
	}
	if c.PriceBatchSize < 1 || c.PriceBatchSize > 100 {
		return fmt.Errorf("price batch size must be 1-100, got %d", c.PriceBatchSize)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if _, err := time.Parse("15:04", c.MarketCloseUTC); err != nil {
		return fmt.Errorf("invalid market close time %q: %w", c.MarketCloseUTC, err)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	return nil
}

// loadProviders parses the NIGHTSHIFT_PROVIDERS declaration. Format is
// semicolon-separated entries of "name,priority,per_minute,per_day,cap+cap".
// API keys come from <NAME>_API_KEY. The default set mirrors the free-tier
// stack: an unlimited batch-quote primary, a fundamentals-rich secondary,
// and a tight-quota tertiary reserved for backfill.
func loadProviders() []ProviderConfig {
	raw := getEnv("NIGHTSHIFT_PROVIDERS",
		"yahoo,1,100,0,quote_batch+historical_range;"+
			"fmp,2,10,250,fundamentals+earnings_calendar+quote_batch;"+
			"alphavantage,3,5,500,historical_range+fundamentals")

	var providers []ProviderConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ",")
		if len(parts) != 5 {
			continue
		}

		priority, _ := strconv.Atoi(parts[1])
		perMinute, _ := strconv.Atoi(parts[2])
		perDay, _ := strconv.Atoi(parts[3])
		name := strings.ToLower(strings.TrimSpace(parts[0]))

		providers = append(providers, ProviderConfig{
			Name:          name,
			Priority:      priority,
			RatePerMinute: perMinute,
			RatePerDay:    perDay,
			Capabilities:  strings.Split(parts[4], "+"),
			APIKey:        getEnv(strings.ToUpper(name)+"_API_KEY", ""),
		})
	}

	return providers
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
