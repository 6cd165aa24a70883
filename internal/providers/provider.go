// Package providers routes data requests to external market-data providers.
// Each provider is wrapped with a per-minute token bucket, a daily call
// budget, and a circuit breaker; the router walks the capability-specific
// priority order and falls back down the chain on failure.
package providers

import (
	"context"
	"time"

	"github.com/aristath/nightshift/internal/domain"
)

// Capability names one kind of request a provider can serve.
type Capability string

const (
	CapQuoteBatch      Capability = "quote_batch"
	CapHistoricalRange Capability = "historical_range"
	CapFundamentals    Capability = "fundamentals"
	CapEarnings        Capability = "earnings_calendar"
	CapAnalyst         Capability = "analyst_recommendations"
)

// Provider is one upstream data source. Implementations return normalized
// domain records and classify failures into the domain error kinds
// (ErrTransient, ErrTickerUnknown, ErrDataInvalid, ErrRateExceeded,
// ErrProviderDown); the router's fallback and retry logic switches on those.
type Provider interface {
	Name() string
	Capabilities() []Capability

	// QuoteBatch fetches the latest daily bar for up to 100 tickers in one
	// call. Tickers the provider does not know are simply absent from the
	// result; a fully unknown batch returns ErrTickerUnknown.
	QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error)

	// HistoricalRange fetches daily bars for one ticker over [from, to].
	HistoricalRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.DailyBar, error)

	// Fundamentals fetches the available statement periods for one ticker,
	// quarterly and annual, most recent first.
	Fundamentals(ctx context.Context, ticker string) ([]domain.Fundamentals, error)

	// EarningsCalendar fetches scheduled earnings events in [from, to].
	EarningsCalendar(ctx context.Context, from, to time.Time) ([]domain.EarningsEvent, error)

	// AnalystRecommendations fetches the consensus analyst view.
	AnalystRecommendations(ctx context.Context, ticker string) (*domain.AnalystRating, error)
}

// HasCapability reports whether p advertises c.
func HasCapability(p Provider, c Capability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
