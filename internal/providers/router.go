package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/config"
	"github.com/aristath/nightshift/internal/domain"
)

const (
	maxRetries   = 3 // transient retries after the initial attempt
	retryBackoff = 2 * time.Second
)

// UsageRecorder persists one charged call to the usage ledger. Recording
// happens before the HTTP request so a crash mid-call still shows the spend.
type UsageRecorder interface {
	RecordCall(ctx context.Context, provider, endpoint string, day time.Time) error
}

type routeEntry struct {
	provider Provider
	limiter  *Limiter
	breaker  *Breaker
	priority int
}

// Router selects a provider per request, enforcing rate limits, the global
// budget, and circuit breakers, and falls back down the priority chain.
type Router struct {
	entries  []*routeEntry
	byName   map[string]*routeEntry
	budget   *Budget
	recorder UsageRecorder
	log      zerolog.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// NewRouter wires the configured providers to their implementations.
// Configured providers with no matching implementation are skipped with a
// warning so a partial deployment still runs.
func NewRouter(cfgs []config.ProviderConfig, impls map[string]Provider, budget *Budget, recorder UsageRecorder, log zerolog.Logger) *Router {
	r := &Router{
		byName:   make(map[string]*routeEntry),
		budget:   budget,
		recorder: recorder,
		log:      log.With().Str("component", "provider_router").Logger(),
		sleep:    time.Sleep,
		now:      time.Now,
	}

	for _, cfg := range cfgs {
		impl, ok := impls[cfg.Name]
		if !ok {
			r.log.Warn().Str("provider", cfg.Name).Msg("Configured provider has no implementation, skipping")
			continue
		}
		e := &routeEntry{
			provider: impl,
			limiter:  NewLimiter(cfg.RatePerMinute, cfg.RatePerDay),
			breaker:  NewBreaker(),
			priority: cfg.Priority,
		}
		r.entries = append(r.entries, e)
		r.byName[cfg.Name] = e
	}

	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].priority < r.entries[j].priority
	})

	return r
}

// QuoteBatch fetches latest bars for up to 100 tickers through the chain.
func (r *Router) QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error) {
	var bars []domain.DailyBar
	err := r.route(ctx, CapQuoteBatch, "quote_batch", func(ctx context.Context, p Provider) error {
		var err error
		bars, err = p.QuoteBatch(ctx, tickers)
		return err
	})
	return bars, err
}

// HistoricalRange fetches daily bars for one ticker over [from, to]. May
// spend into the budget reserve.
func (r *Router) HistoricalRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.DailyBar, error) {
	var bars []domain.DailyBar
	err := r.route(ctx, CapHistoricalRange, "historical_range", func(ctx context.Context, p Provider) error {
		var err error
		bars, err = p.HistoricalRange(ctx, ticker, from, to)
		return err
	})
	return bars, err
}

// Fundamentals fetches statement periods for one ticker. Stops at the
// budget reserve floor.
func (r *Router) Fundamentals(ctx context.Context, ticker string) ([]domain.Fundamentals, error) {
	var rows []domain.Fundamentals
	err := r.route(ctx, CapFundamentals, "fundamentals", func(ctx context.Context, p Provider) error {
		var err error
		rows, err = p.Fundamentals(ctx, ticker)
		return err
	})
	return rows, err
}

// EarningsCalendar fetches scheduled earnings events in [from, to].
func (r *Router) EarningsCalendar(ctx context.Context, from, to time.Time) ([]domain.EarningsEvent, error) {
	var events []domain.EarningsEvent
	err := r.route(ctx, CapEarnings, "earnings_calendar", func(ctx context.Context, p Provider) error {
		var err error
		events, err = p.EarningsCalendar(ctx, from, to)
		return err
	})
	return events, err
}

// AnalystRecommendations fetches the consensus view for one ticker.
func (r *Router) AnalystRecommendations(ctx context.Context, ticker string) (*domain.AnalystRating, error) {
	var rating *domain.AnalystRating
	err := r.route(ctx, CapAnalyst, "analyst_recommendations", func(ctx context.Context, p Provider) error {
		var err error
		rating, err = p.AnalystRecommendations(ctx, ticker)
		return err
	})
	return rating, err
}

// RemainingBudget returns the named provider's daily calls left, or 0 for
// an unknown provider.
func (r *Router) RemainingBudget(provider string) int {
	e, ok := r.byName[provider]
	if !ok {
		return 0
	}
	return e.limiter.Remaining()
}

// GlobalBudget exposes the shared daily budget.
func (r *Router) GlobalBudget() *Budget {
	return r.budget
}

// MarkFailed records a failure observed outside the router, e.g. a response
// that only failed validation downstream.
func (r *Router) MarkFailed(provider string, err error) {
	e, ok := r.byName[provider]
	if !ok {
		return
	}
	e.breaker.RecordFailure()
	r.log.Warn().Str("provider", provider).Err(err).Msg("Provider marked failed")
}

// BreakerState returns the named provider's breaker state for status
// reporting, or "" for an unknown provider.
func (r *Router) BreakerState(provider string) string {
	e, ok := r.byName[provider]
	if !ok {
		return ""
	}
	return e.breaker.State()
}

// route walks the priority-ordered providers advertising cap, charging the
// budget and provider limits per attempt, retrying transient failures, and
// falling back to the next provider on any failure. The last error kind is
// returned when the whole chain fails.
func (r *Router) route(ctx context.Context, cap Capability, endpoint string, call func(context.Context, Provider) error) error {
	// The reserve slice is held back so backfill can still make progress
	// after the bulk phases spent the rest of the day's budget.
	useReserve := cap == CapHistoricalRange

	var lastErr error
	attempted := false

	for _, e := range r.entries {
		if !HasCapability(e.provider, cap) {
			continue
		}
		attempted = true
		name := e.provider.Name()

		if !e.breaker.Allow() {
			lastErr = fmt.Errorf("%s circuit open: %w", name, domain.ErrProviderDown)
			continue
		}

		err := r.attempt(ctx, e, endpoint, useReserve, call)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// A globally exhausted budget cannot be fixed by another provider.
		if errors.Is(err, domain.ErrRateExceeded) && r.budget.Remaining() == 0 {
			return err
		}

		r.log.Warn().Str("provider", name).Str("endpoint", endpoint).Err(err).Msg("Provider failed, trying next in chain")
	}

	if !attempted {
		return fmt.Errorf("no provider supports %s: %w", cap, domain.ErrProviderDown)
	}
	return lastErr
}

// attempt issues the call against one provider, retrying transient errors
// with exponential backoff. Each retry is a real call and is charged.
func (r *Router) attempt(ctx context.Context, e *routeEntry, endpoint string, useReserve bool, call func(context.Context, Provider) error) error {
	name := e.provider.Name()

	var lastErr error
	for try := 0; try <= maxRetries; try++ {
		if try > 0 {
			wait := retryBackoff << uint(try-1)
			r.log.Debug().Str("provider", name).Int("attempt", try+1).Dur("wait", wait).Msg("Retrying transient failure")
			r.sleep(wait)
		}

		// Aborting before the call leaves no spend and no breaker verdict,
		// so release anything claimed on the way in.
		if !r.budget.TryCharge(1, useReserve) {
			e.breaker.ReleaseProbe()
			return fmt.Errorf("daily API budget exhausted: %w", domain.ErrRateExceeded)
		}
		if err := e.limiter.Acquire(ctx); err != nil {
			r.budget.Refund(1)
			e.breaker.ReleaseProbe()
			return err
		}
		if r.recorder != nil {
			if err := r.recorder.RecordCall(ctx, name, endpoint, r.now().UTC()); err != nil {
				r.log.Error().Err(err).Str("provider", name).Msg("Failed to record API usage")
			}
		}

		err := call(ctx, e.provider)
		if err == nil {
			e.breaker.RecordSuccess()
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, domain.ErrTickerUnknown), errors.Is(err, domain.ErrDataInvalid):
			// Data-level verdicts are not provider health failures.
			e.breaker.RecordSuccess()
			return err
		case errors.Is(err, domain.ErrTransient):
			e.breaker.RecordFailure()
			continue
		default:
			e.breaker.RecordFailure()
			return err
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", maxRetries+1, lastErr)
}
