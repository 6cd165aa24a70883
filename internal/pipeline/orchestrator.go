package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/calendar"
	"github.com/aristath/nightshift/internal/domain"
	"github.com/aristath/nightshift/internal/modules/fundamentals"
	"github.com/aristath/nightshift/internal/modules/indicators"
	"github.com/aristath/nightshift/internal/modules/prices"
	"github.com/aristath/nightshift/internal/providers"
)

// State names one position in a run's lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateChecking      State = "checking"
	StateTradingDay    State = "trading_day"
	StateNonTradingDay State = "non_trading_day"
	StateReporting     State = "reporting"
	StateAborted       State = "aborted"
)

// Phase update_type values, also used as resume keys in the update log.
const (
	PhasePriceRefresh   = "price_refresh"
	PhaseIndicators     = "indicators"
	PhaseFundamentals   = "fundamentals"
	PhaseRatiosScores   = "ratios_scores"
	PhaseBackfill       = "backfill"
	PhaseDelistingSweep = "delisting_sweep"
	RunSummary          = "run_summary"
)

// phaseOrder drives both execution and resume.
var phaseOrder = []string{
	PhasePriceRefresh, PhaseIndicators, PhaseFundamentals,
	PhaseRatiosScores, PhaseBackfill, PhaseDelistingSweep,
}

// PricePhase is the slice of the price processor the orchestrator drives.
type PricePhase interface {
	RefreshDay(ctx context.Context, tradingDay time.Time) (*prices.Result, error)
	FillToMinimum(ctx context.Context, ticker string, minDays int, asOf time.Time) (int, error)
}

// IndicatorPhase computes one ticker's indicator vector.
type IndicatorPhase interface {
	ComputeTicker(ticker string, tradingDay time.Time) (indicators.Status, error)
}

// FundamentalsPhase refreshes statements and recomputes derived values.
type FundamentalsPhase interface {
	RefreshTicker(ctx context.Context, ticker string) (int, error)
	RecomputeDerived(ticker string, calcDate time.Time) error
	PendingEarningsRefreshes(now time.Time) ([]domain.EarningsEvent, error)
	MarkEarningsHandled(ticker string, earningsDate time.Time) error
}

// UniverseStore is the slice of the stock repository the orchestrator needs.
type UniverseStore interface {
	GetAllActive() ([]domain.Stock, error)
	TickersWithHistoryBelow(n int) ([]string, error)
	MarkDelisted(ticker, reason string) error
	CountActive() (int, error)
}

// ProbeRouter covers the delisting probe and budget introspection.
type ProbeRouter interface {
	QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error)
	GlobalBudget() *providers.Budget
}

// RunLogStore persists phase outcomes and answers resume queries.
type RunLogStore interface {
	Append(entry domain.UpdateLog) (int64, error)
	PhaseSucceededOn(updateType string, day time.Time) (bool, error)
}

// Options tunes a run.
type Options struct {
	Workers        int
	Deadline       time.Duration
	MinHistoryBars int
	Stall          time.Duration
}

// Orchestrator runs the nightly pipeline: price refresh, indicators,
// fundamentals, ratios and scores, backfill, delisting sweep.
type Orchestrator struct {
	cal    *calendar.Calendar
	router ProbeRouter
	prices PricePhase
	inds   IndicatorPhase
	funds  FundamentalsPhase
	stocks UniverseStore
	runlog RunLogStore
	opts   Options
	log    zerolog.Logger

	now func() time.Time

	mu     sync.Mutex
	status RunStatus
}

// RunStatus is a point-in-time snapshot served over the HTTP API.
type RunStatus struct {
	RunID           string       `json:"run_id"`
	State           State        `json:"state"`
	StartedAt       time.Time    `json:"started_at,omitempty"`
	Phases          []PhaseStats `json:"phases,omitempty"`
	BudgetRemaining int          `json:"budget_remaining"`
}

// PhaseStats summarizes one completed phase.
type PhaseStats struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Deferred  int           `json:"deferred"`
	Elapsed   time.Duration `json:"elapsed_ms"`
}

func NewOrchestrator(cal *calendar.Calendar, router ProbeRouter, pricePhase PricePhase,
	indicatorPhase IndicatorPhase, fundamentalsPhase FundamentalsPhase,
	stocks UniverseStore, runlog RunLogStore, opts Options, log zerolog.Logger) *Orchestrator {

	if opts.Workers < 1 {
		opts.Workers = 5
	}
	if opts.Deadline <= 0 {
		opts.Deadline = time.Hour
	}
	if opts.MinHistoryBars <= 0 {
		opts.MinHistoryBars = 100
	}
	if opts.Stall <= 0 {
		opts.Stall = stallThreshold
	}

	return &Orchestrator{
		cal:    cal,
		router: router,
		prices: pricePhase,
		inds:   indicatorPhase,
		funds:  fundamentalsPhase,
		stocks: stocks,
		runlog: runlog,
		opts:   opts,
		log:    log.With().Str("component", "orchestrator").Logger(),
		now:    time.Now,
		status: RunStatus{State: StateIdle},
	}
}

// Status returns a snapshot of the current or last run.
func (o *Orchestrator) Status() RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := o.status
	snap.Phases = append([]PhaseStats(nil), o.status.Phases...)
	snap.BudgetRemaining = o.router.GlobalBudget().Remaining()
	return snap
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.status.State = s
	o.mu.Unlock()
}

func (o *Orchestrator) recordPhase(p PhaseStats) {
	o.mu.Lock()
	o.status.Phases = append(o.status.Phases, p)
	o.mu.Unlock()
}

// runCtx carries one run's shared state between phases.
type runCtx struct {
	runID      string
	tradingDay time.Time
	started    time.Time

	missingTickers []string // phase 1 output, consumed by phase 6
	touched        []string // phase 3 output, consumed by phase 4
	shortHistory   []string // phase 2 output, merged into phase 5
}

// Run executes one nightly pipeline pass. Completed phases from an earlier
// run on the same day are skipped; the run resumes at the first phase
// whose update log row is missing.
func (o *Orchestrator) Run(ctx context.Context) error {
	started := o.now()

	o.setState(StateChecking)
	if _, err := o.stocks.CountActive(); err != nil {
		o.setState(StateAborted)
		o.log.Error().Err(err).Msg("Database unreachable, aborting run")
		return fmt.Errorf("%w: %v", domain.ErrDBUnavailable, err)
	}

	// The run fires after the close; the trading day under refresh is
	// today in exchange time.
	exchangeNow := started.In(o.cal.Location())
	tradingDay := time.Date(exchangeNow.Year(), exchangeNow.Month(), exchangeNow.Day(), 0, 0, 0, 0, time.UTC)

	if !o.cal.IsTradingDay(exchangeNow) {
		o.setState(StateNonTradingDay)
		o.log.Info().Str("date", tradingDay.Format("2006-01-02")).Msg("Non-trading day, skipping run")
		o.appendLog(domain.UpdateLog{
			RunID: uuid.NewString(), UpdateType: RunSummary, Status: domain.StatusSkipped,
			ErrorMessage: "non-trading day",
			StartedAt:    started.UTC(), CompletedAt: o.now().UTC(),
		})
		o.setState(StateIdle)
		return nil
	}
	o.setState(StateTradingDay)

	rc := &runCtx{
		runID:      uuid.NewString(),
		tradingDay: tradingDay,
		started:    started,
	}

	o.mu.Lock()
	o.status = RunStatus{RunID: rc.runID, State: StateTradingDay, StartedAt: started}
	o.mu.Unlock()

	deadlineCtx, cancel := context.WithTimeout(ctx, o.opts.Deadline)
	defer cancel()

	o.log.Info().Str("run_id", rc.runID).Str("trading_day", tradingDay.Format("2006-01-02")).
		Int("budget", o.router.GlobalBudget().Remaining()).Msg("Starting nightly run")

	phases := map[string]func(context.Context, *runCtx) (PhaseStats, error){
		PhasePriceRefresh:   o.runPriceRefresh,
		PhaseIndicators:     o.runIndicators,
		PhaseFundamentals:   o.runFundamentals,
		PhaseRatiosScores:   o.runRatiosScores,
		PhaseBackfill:       o.runBackfill,
		PhaseDelistingSweep: o.runDelistingSweep,
	}

	overall := domain.StatusSuccess
	for _, name := range phaseOrder {
		done, err := o.runlog.PhaseSucceededOn(name, tradingDay)
		if err != nil {
			o.setState(StateAborted)
			return fmt.Errorf("%w: %v", domain.ErrDBUnavailable, err)
		}
		if done {
			o.log.Info().Str("phase", name).Msg("Phase already completed today, skipping")
			continue
		}
		if deadlineCtx.Err() != nil {
			// Deadline hit: remaining phases run on the next invocation.
			overall = domain.StatusPartial
			break
		}

		o.setState(State(name))
		phaseStart := o.now()
		stats, err := phases[name](deadlineCtx, rc)
		stats.Name = name
		stats.Elapsed = o.now().Sub(phaseStart)

		entry := domain.UpdateLog{
			RunID:            rc.runID,
			UpdateType:       name,
			Status:           stats.Status,
			RecordsProcessed: stats.Processed,
			ExecutionTimeMS:  stats.Elapsed.Milliseconds(),
			StartedAt:        phaseStart.UTC(),
			CompletedAt:      o.now().UTC(),
		}
		if err != nil {
			entry.Status = domain.StatusFailed
			entry.ErrorMessage = err.Error()
			stats.Status = domain.StatusFailed
		}
		o.appendLog(entry)
		o.recordPhase(stats)

		switch stats.Status {
		case domain.StatusFailed:
			overall = domain.StatusPartial
			o.log.Error().Str("phase", name).Err(err).Msg("Phase failed, continuing with remaining phases")
		case domain.StatusPartial:
			overall = domain.StatusPartial
		}
	}

	o.setState(StateReporting)
	report := o.buildReport(rc, overall)
	o.appendLog(domain.UpdateLog{
		RunID:            rc.runID,
		UpdateType:       RunSummary,
		Status:           overall,
		ErrorMessage:     report.Line(),
		RecordsProcessed: report.TotalProcessed,
		ExecutionTimeMS:  o.now().Sub(started).Milliseconds(),
		StartedAt:        started.UTC(),
		CompletedAt:      o.now().UTC(),
	})
	o.log.Info().Str("run_id", rc.runID).Str("status", overall).
		Dur("elapsed", o.now().Sub(started)).Msg(report.Line())

	o.setState(StateIdle)
	return nil
}

func (o *Orchestrator) appendLog(entry domain.UpdateLog) {
	if _, err := o.runlog.Append(entry); err != nil {
		o.log.Error().Err(err).Str("update_type", entry.UpdateType).Msg("Failed to append update log")
	}
}

// Phase 1: bring every active ticker's bar for the trading day up to date.
func (o *Orchestrator) runPriceRefresh(ctx context.Context, rc *runCtx) (PhaseStats, error) {
	result, err := o.prices.RefreshDay(ctx, rc.tradingDay)
	if err != nil && result == nil {
		return PhaseStats{Status: domain.StatusFailed}, err
	}

	for ticker, outcome := range result.Outcomes {
		if outcome == prices.OutcomeMissing {
			rc.missingTickers = append(rc.missingTickers, ticker)
		}
	}
	sort.Strings(rc.missingTickers)

	stats := PhaseStats{
		Status:    domain.StatusSuccess,
		Processed: result.Stored,
		Failed:    result.Rejected + result.Missing,
	}
	if err != nil || stats.Failed > 0 {
		stats.Status = domain.StatusPartial
	}
	return stats, nil
}

// Phase 2: CPU-bound indicator pass over every active ticker. Tickers with
// too little history are handed to the backfill phase.
func (o *Orchestrator) runIndicators(ctx context.Context, rc *runCtx) (PhaseStats, error) {
	stockList, err := o.stocks.GetAllActive()
	if err != nil {
		return PhaseStats{Status: domain.StatusFailed}, err
	}
	tickers := make([]string, len(stockList))
	for i, s := range stockList {
		tickers[i] = s.Ticker
	}

	var mu sync.Mutex
	skipped := 0

	out := runPool(ctx, o.opts.Workers, tickers, o.opts.Stall, func(_ context.Context, ticker string) error {
		status, err := o.inds.ComputeTicker(ticker, rc.tradingDay)
		if err != nil {
			return err
		}
		switch status {
		case indicators.StatusInsufficientHistory:
			mu.Lock()
			rc.shortHistory = append(rc.shortHistory, ticker)
			mu.Unlock()
		case indicators.StatusNoBarToday:
			mu.Lock()
			skipped++
			mu.Unlock()
		}
		return nil
	})
	sort.Strings(rc.shortHistory)

	stats := PhaseStats{
		Status:    domain.StatusSuccess,
		Processed: len(out.Processed) - len(rc.shortHistory) - skipped,
		Failed:    len(out.Failed),
		Deferred:  len(out.Deferred) + len(rc.shortHistory),
	}
	if stats.Failed > 0 || len(out.Deferred) > 0 {
		stats.Status = domain.StatusPartial
	}
	return stats, o.poolError(out)
}

// Phase 3: refresh fundamentals in priority order until the unreserved
// budget is gone. The reserve stays held for backfill.
func (o *Orchestrator) runFundamentals(ctx context.Context, rc *runCtx) (PhaseStats, error) {
	queue, earningsByTicker, err := o.fundamentalsQueue()
	if err != nil {
		return PhaseStats{Status: domain.StatusFailed}, err
	}

	budget := o.router.GlobalBudget()
	stats := PhaseStats{Status: domain.StatusSuccess}

	for _, ticker := range queue {
		if ctx.Err() != nil {
			stats.Status = domain.StatusPartial
			stats.Deferred = len(queue) - stats.Processed - stats.Failed
			break
		}
		if budget.RemainingUnreserved() <= 0 {
			o.log.Info().Int("remaining", budget.Remaining()).
				Msg("Budget at reserve floor, deferring remaining fundamentals")
			stats.Status = domain.StatusPartial
			stats.Deferred = len(queue) - stats.Processed - stats.Failed
			break
		}

		if _, err := o.funds.RefreshTicker(ctx, ticker); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				stats.Status = domain.StatusPartial
				stats.Deferred = len(queue) - stats.Processed - stats.Failed
				break
			}
			o.log.Warn().Str("ticker", ticker).Err(err).Msg("Fundamentals refresh failed")
			stats.Failed++
			continue
		}
		stats.Processed++
		rc.touched = append(rc.touched, ticker)

		if event, ok := earningsByTicker[ticker]; ok {
			if err := o.funds.MarkEarningsHandled(ticker, event.EarningsDate); err != nil {
				o.log.Warn().Str("ticker", ticker).Err(err).Msg("Failed to mark earnings handled")
			}
		}
	}

	if stats.Failed > 0 && stats.Status == domain.StatusSuccess {
		stats.Status = domain.StatusPartial
	}
	return stats, nil
}

// fundamentalsQueue orders refresh candidates by priority descending, then
// ticker for determinism. Only tickers that actually need a fetch queue up.
func (o *Orchestrator) fundamentalsQueue() ([]string, map[string]domain.EarningsEvent, error) {
	stockList, err := o.stocks.GetAllActive()
	if err != nil {
		return nil, nil, err
	}

	pending, err := o.funds.PendingEarningsRefreshes(o.now())
	if err != nil {
		return nil, nil, err
	}
	earningsByTicker := make(map[string]domain.EarningsEvent, len(pending))
	for _, e := range pending {
		earningsByTicker[e.Ticker] = e
	}

	type candidate struct {
		ticker   string
		priority int
	}
	var queue []candidate
	now := o.now()
	for i := range stockList {
		s := &stockList[i]
		_, recentEarnings := earningsByTicker[s.Ticker]
		if !fundamentals.NeedsRefresh(s, recentEarnings, now) {
			continue
		}
		queue = append(queue, candidate{
			ticker:   s.Ticker,
			priority: fundamentals.Priority(s, recentEarnings, now),
		})
	}
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].priority != queue[j].priority {
			return queue[i].priority > queue[j].priority
		}
		return queue[i].ticker < queue[j].ticker
	})

	tickers := make([]string, len(queue))
	for i, c := range queue {
		tickers[i] = c.ticker
	}
	return tickers, earningsByTicker, nil
}

// Phase 4: pure recomputation of ratios and scores for every ticker whose
// fundamentals changed in phase 3.
func (o *Orchestrator) runRatiosScores(ctx context.Context, rc *runCtx) (PhaseStats, error) {
	out := runPool(ctx, o.opts.Workers, rc.touched, o.opts.Stall, func(_ context.Context, ticker string) error {
		return o.funds.RecomputeDerived(ticker, rc.tradingDay)
	})

	stats := PhaseStats{
		Status:    domain.StatusSuccess,
		Processed: len(out.Processed),
		Failed:    len(out.Failed),
		Deferred:  len(out.Deferred),
	}
	if stats.Failed > 0 || stats.Deferred > 0 {
		stats.Status = domain.StatusPartial
	}
	return stats, o.poolError(out)
}

// Phase 5: backfill short histories with the reserved budget, shortest
// first.
func (o *Orchestrator) runBackfill(ctx context.Context, rc *runCtx) (PhaseStats, error) {
	fromStore, err := o.stocks.TickersWithHistoryBelow(o.opts.MinHistoryBars)
	if err != nil {
		return PhaseStats{Status: domain.StatusFailed}, err
	}
	tickers := mergeTickers(fromStore, rc.shortHistory)

	stats := PhaseStats{Status: domain.StatusSuccess}
	budget := o.router.GlobalBudget()

	for _, ticker := range tickers {
		if ctx.Err() != nil || budget.Remaining() <= 0 {
			stats.Status = domain.StatusPartial
			stats.Deferred = len(tickers) - stats.Processed - stats.Failed
			break
		}

		stored, err := o.prices.FillToMinimum(ctx, ticker, o.opts.MinHistoryBars, rc.tradingDay)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				stats.Status = domain.StatusPartial
				stats.Deferred = len(tickers) - stats.Processed - stats.Failed
				break
			}
			o.log.Warn().Str("ticker", ticker).Err(err).Msg("Backfill failed")
			stats.Failed++
			continue
		}
		if stored > 0 {
			stats.Processed++
		}
	}

	if stats.Failed > 0 && stats.Status == domain.StatusSuccess {
		stats.Status = domain.StatusPartial
	}
	return stats, nil
}

// Phase 6: probe tickers that went missing in phase 1 once more; a second
// unknown verdict flips them inactive. History is never deleted.
func (o *Orchestrator) runDelistingSweep(ctx context.Context, rc *runCtx) (PhaseStats, error) {
	stats := PhaseStats{Status: domain.StatusSuccess}
	var delisted []string

	for _, ticker := range rc.missingTickers {
		if ctx.Err() != nil {
			stats.Status = domain.StatusPartial
			break
		}

		_, err := o.router.QuoteBatch(ctx, []string{ticker})
		switch {
		case err == nil:
			// A quote exists after all; the morning's miss was transient.
			stats.Processed++
		case errors.Is(err, domain.ErrTickerUnknown):
			if err := o.stocks.MarkDelisted(ticker, "unknown to all providers"); err != nil {
				o.log.Error().Str("ticker", ticker).Err(err).Msg("Failed to mark delisted")
				stats.Failed++
				continue
			}
			delisted = append(delisted, ticker)
			stats.Processed++
		default:
			// Provider trouble is not evidence of delisting.
			o.log.Warn().Str("ticker", ticker).Err(err).Msg("Delisting probe inconclusive")
			stats.Failed++
		}
	}

	if len(delisted) > 0 {
		o.log.Info().Strs("tickers", delisted).Msg("Delisted tickers")
	}
	if stats.Failed > 0 && stats.Status == domain.StatusSuccess {
		stats.Status = domain.StatusPartial
	}
	return stats, nil
}

func (o *Orchestrator) poolError(out *poolOutcome) error {
	if err := out.FirstError(); err != nil && len(out.Processed) == 0 {
		return err
	}
	return nil
}

// mergeTickers unions two sorted-ish lists without duplicates, preserving
// the store's shortest-first ordering for the first list.
func mergeTickers(primary, extra []string) []string {
	seen := make(map[string]bool, len(primary)+len(extra))
	out := make([]string, 0, len(primary)+len(extra))
	for _, t := range primary {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
