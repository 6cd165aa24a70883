package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/domain"
	"github.com/aristath/nightshift/internal/modules/fundamentals"
	"github.com/aristath/nightshift/internal/modules/tracking"
	"github.com/aristath/nightshift/internal/modules/universe"
	"github.com/aristath/nightshift/internal/pipeline"
)

// Runner is the slice of the orchestrator the HTTP layer needs.
type Runner interface {
	Run(ctx context.Context) error
	Status() pipeline.RunStatus
}

// Handlers holds the HTTP handlers and their dependencies
type Handlers struct {
	log         zerolog.Logger
	db          *database.DB
	runner      Runner
	usage       *tracking.UsageRepository
	runlog      *tracking.RunLogRepository
	stocks      *universe.StockRepository
	funds       *fundamentals.Repository
	startupTime time.Time
}

// NewHandlers creates the handler set
func NewHandlers(
	db *database.DB,
	runner Runner,
	usage *tracking.UsageRepository,
	runlog *tracking.RunLogRepository,
	stocks *universe.StockRepository,
	funds *fundamentals.Repository,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		log:         log.With().Str("component", "handlers").Logger(),
		db:          db,
		runner:      runner,
		usage:       usage,
		runlog:      runlog,
		stocks:      stocks,
		funds:       funds,
		startupTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string  `json:"status"` // "healthy" or "unhealthy"
	Database     string  `json:"database"`
	ActiveStocks int     `json:"active_stocks"`
	UptimeHours  float64 `json:"uptime_hours"`
	CPUPercent   float64 `json:"cpu_percent"`
	RAMPercent   float64 `json:"ram_percent"`
	CheckedAt    string  `json:"checked_at"`
}

// HandleHealth returns process and database health
// GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.db.QuickCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database health check failed")
		resp.Status = "unhealthy"
		resp.Database = err.Error()
	}

	if n, err := h.stocks.CountActive(); err == nil {
		resp.ActiveStocks = n
	}

	resp.UptimeHours = time.Since(h.startupTime).Hours()
	resp.CPUPercent, resp.RAMPercent = h.systemStats()

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

// RunStatusResponse couples the orchestrator snapshot with today's API
// usage ledger.
type RunStatusResponse struct {
	Run   pipeline.RunStatus `json:"run"`
	Usage []domain.APIUsage  `json:"usage"`
}

// HandleRunStatus returns the current run state and today's usage
// GET /api/run/status
func (h *Handlers) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	usage, err := h.usage.UsageByEndpoint(time.Now().UTC())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read usage ledger")
	}

	h.writeJSON(w, http.StatusOK, RunStatusResponse{
		Run:   h.runner.Status(),
		Usage: usage,
	})
}

// LatestRunResponse returns the most recent run's log rows
type LatestRunResponse struct {
	RunID   string             `json:"run_id"`
	Entries []domain.UpdateLog `json:"entries"`
}

// HandleLatestRun returns the most recent run's update log
// GET /api/run/latest
func (h *Handlers) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	runID, entries, err := h.runlog.LatestRun()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read latest run")
		http.Error(w, "failed to read run log", http.StatusInternalServerError)
		return
	}
	if runID == "" {
		h.writeJSON(w, http.StatusOK, map[string]string{"message": "no runs recorded"})
		return
	}
	h.writeJSON(w, http.StatusOK, LatestRunResponse{RunID: runID, Entries: entries})
}

// HandleTriggerRun starts a pipeline run immediately
// POST /api/run/trigger
func (h *Handlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	status := h.runner.Status()
	if status.State != pipeline.StateIdle {
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "error",
			"message": "a run is already in progress",
			"state":   string(status.State),
		})
		return
	}

	h.log.Info().Msg("Manual pipeline run triggered")

	// The run outlives the request; errors land in the update log and
	// the structured log, not the HTTP response.
	go func() {
		if err := h.runner.Run(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("Manually triggered run failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "pipeline run started",
	})
}

// HandleUsage returns today's API usage ledger
// GET /api/usage
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.usage.UsageByEndpoint(time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read usage ledger")
		http.Error(w, "failed to read usage ledger", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, usage)
}

// ScoresResponse couples a ticker's latest ratios and scores
type ScoresResponse struct {
	Ticker string                 `json:"ticker"`
	Ratios *domain.Ratios         `json:"ratios,omitempty"`
	Scores *domain.InvestorScores `json:"scores,omitempty"`
}

// HandleScores returns the latest computed ratios and investor scores
// GET /api/stocks/{ticker}/scores
func (h *Handlers) HandleScores(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	stock, err := h.stocks.GetByTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to look up ticker")
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if stock == nil {
		http.Error(w, "unknown ticker", http.StatusNotFound)
		return
	}

	ratios, err := h.funds.LatestRatios(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to read ratios")
		http.Error(w, "failed to read ratios", http.StatusInternalServerError)
		return
	}
	scores, err := h.funds.LatestScores(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to read scores")
		http.Error(w, "failed to read scores", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, ScoresResponse{Ticker: ticker, Ratios: ratios, Scores: scores})
}

// systemStats samples CPU and RAM usage. The CPU sample uses a short
// interval so the handler stays responsive.
func (h *Handlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
