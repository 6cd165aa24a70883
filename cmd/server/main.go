package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/calendar"
	"github.com/aristath/nightshift/internal/config"
	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/modules/fundamentals"
	"github.com/aristath/nightshift/internal/modules/indicators"
	"github.com/aristath/nightshift/internal/modules/prices"
	"github.com/aristath/nightshift/internal/modules/tracking"
	"github.com/aristath/nightshift/internal/modules/universe"
	"github.com/aristath/nightshift/internal/pipeline"
	"github.com/aristath/nightshift/internal/providers"
	"github.com/aristath/nightshift/internal/reliability"
	"github.com/aristath/nightshift/internal/scheduler"
	"github.com/aristath/nightshift/internal/server"
	"github.com/aristath/nightshift/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Config{Level: "info"})
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Nightshift")

	// Initialize database
	db, err := database.New(database.Config{Path: filepath.Join(cfg.DataDir, "market.db")})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Repositories
	stocks := universe.NewStockRepository(db.Conn(), log)
	bars := prices.NewBarRepository(db.Conn(), log)
	fundsRepo := fundamentals.NewRepository(db.Conn(), log)
	usage := tracking.NewUsageRepository(db.Conn(), log)
	runlog := tracking.NewRunLogRepository(db.Conn(), log)

	// Provider router with the shared daily budget
	budget := providers.NewBudget(cfg.DailyAPIBudget, cfg.APIBudgetReservePct)
	router := providers.NewRouter(cfg.Providers, buildProviders(cfg, log), budget, usage, log)

	// Processors
	priceProc := prices.NewProcessor(router, stocks, bars, cfg.PriceBatchSize, cfg.InterBatchDelay, log)
	calc := indicators.NewCalculator(bars, log)
	fundsProc := fundamentals.NewProcessor(router, router, fundsRepo, stocks, bars, log)

	orch := pipeline.NewOrchestrator(calendar.NYSE(), router, priceProc, calc, fundsProc,
		stocks, runlog, pipeline.Options{
			Workers:        cfg.WorkerCount,
			Deadline:       cfg.RunDeadline,
			MinHistoryBars: cfg.MinimumHistoryDays,
		}, log)

	// Scheduler and jobs
	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, db, orch, fundsProc, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	handlers := server.NewHandlers(db, orch, usage, runlog, stocks, fundsRepo, log)
	srv := server.New(server.Config{Port: cfg.Port, DevMode: cfg.DevMode}, handlers, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildProviders instantiates the provider clients named in the
// configuration. Unknown names are skipped so a config typo degrades to
// the remaining chain instead of failing startup.
func buildProviders(cfg *config.Config, log zerolog.Logger) map[string]providers.Provider {
	impls := make(map[string]providers.Provider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		switch pc.Name {
		case "yahoo":
			impls[pc.Name] = providers.NewYahoo(log)
		case "fmp":
			impls[pc.Name] = providers.NewFMP(pc.APIKey, log)
		case "alphavantage":
			impls[pc.Name] = providers.NewAlphaVantage(pc.APIKey, log)
		default:
			log.Warn().Str("provider", pc.Name).Msg("Unknown provider in configuration, skipping")
		}
	}
	return impls
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, db *database.DB,
	orch *pipeline.Orchestrator, fundsProc *fundamentals.Processor, log zerolog.Logger) error {

	// The backup chains onto the nightly run so a snapshot only ships
	// after the run finished.
	nightly := scheduler.Job(pipeline.NewNightlyJob(orch, cfg.LogDir, log))
	if cfg.Backup.Bucket != "" {
		s3Client, err := reliability.NewS3Client(cfg.Backup, log)
		if err != nil {
			return err
		}
		backupSvc := reliability.NewBackupService(db, s3Client, cfg.DataDir, cfg.Backup.Retention, log)
		nightly = chainJobs(nightly, reliability.NewBackupJob(backupSvc, log))
	} else {
		log.Info().Msg("Backup bucket not configured, skipping backup job")
	}

	// The nightly run fires one hour after the close so providers have
	// settled end-of-day data.
	runSpec, err := scheduler.DailyAtUTC(cfg.MarketCloseUTC, time.Hour)
	if err != nil {
		return err
	}
	if err := sched.AddJob(runSpec, nightly); err != nil {
		return err
	}

	// The earnings calendar syncs shortly after the close, ahead of the
	// run, so the fundamentals queue sees fresh events.
	calSpec, err := scheduler.DailyAtUTC(cfg.MarketCloseUTC, 30*time.Minute)
	if err != nil {
		return err
	}
	return sched.AddJob(calSpec, fundamentals.NewEarningsCalendarJob(fundsProc, log))
}

// chainedJob runs the second job only when the first succeeds.
type chainedJob struct {
	first scheduler.Job
	then  scheduler.Job
}

func chainJobs(first, then scheduler.Job) scheduler.Job {
	return &chainedJob{first: first, then: then}
}

func (j *chainedJob) Run() error {
	if err := j.first.Run(); err != nil {
		return err
	}
	return j.then.Run()
}

func (j *chainedJob) Name() string {
	return j.first.Name() + "+" + j.then.Name()
}
