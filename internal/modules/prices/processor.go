package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

// Outcome classifies what happened to one ticker during a refresh pass.
type Outcome string

const (
	OutcomeStored   Outcome = "stored"
	OutcomeRejected Outcome = "rejected"
	OutcomeMissing  Outcome = "missing"
)

// Result summarizes one price refresh pass.
type Result struct {
	Requested int
	Stored    int
	Rejected  int
	Missing   int
	Outcomes  map[string]Outcome
}

// Router is the slice of the provider router the processor needs.
type Router interface {
	QuoteBatch(ctx context.Context, tickers []string) ([]domain.DailyBar, error)
	HistoricalRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.DailyBar, error)
}

// UniverseReader lists tickers whose bar for today is missing.
type UniverseReader interface {
	TickersMissingBarOn(date time.Time) ([]string, error)
}

// Processor refreshes daily bars for the active universe in provider-sized
// batches.
type Processor struct {
	router   Router
	universe UniverseReader
	bars     *BarRepository
	log      zerolog.Logger

	batchSize  int
	batchDelay time.Duration
	sleep      func(time.Duration)
}

// NewProcessor builds a price processor. batchSize is capped at 100, the
// largest batch quote size any provider accepts.
func NewProcessor(router Router, universe UniverseReader, bars *BarRepository, batchSize int, batchDelay time.Duration, log zerolog.Logger) *Processor {
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &Processor{
		router:     router,
		universe:   universe,
		bars:       bars,
		log:        log.With().Str("component", "price_processor").Logger(),
		batchSize:  batchSize,
		batchDelay: batchDelay,
		sleep:      time.Sleep,
	}
}

// RefreshDay brings every active ticker's bar for tradingDay up to date.
// Per-ticker parse or store failures are counted, not fatal; a batch-wide
// provider failure propagates so the caller can stop spending budget.
func (p *Processor) RefreshDay(ctx context.Context, tradingDay time.Time) (*Result, error) {
	need, err := p.universe.TickersMissingBarOn(tradingDay)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers needing prices: %w", err)
	}

	result := &Result{
		Requested: len(need),
		Outcomes:  make(map[string]Outcome, len(need)),
	}
	if len(need) == 0 {
		p.log.Info().Msg("All tickers current, nothing to refresh")
		return result, nil
	}

	p.log.Info().Int("tickers", len(need)).Int("batch_size", p.batchSize).
		Str("date", tradingDay.Format("2006-01-02")).Msg("Starting price refresh")

	for start := 0; start < len(need); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + p.batchSize
		if end > len(need) {
			end = len(need)
		}
		batch := need[start:end]

		bars, err := p.router.QuoteBatch(ctx, batch)
		if err != nil {
			// Unknown-batch verdicts mean these tickers have no quotes,
			// not that the provider is broken.
			if errors.Is(err, domain.ErrTickerUnknown) {
				for _, ticker := range batch {
					result.Outcomes[ticker] = OutcomeMissing
					result.Missing++
				}
				continue
			}
			return result, fmt.Errorf("quote batch failed: %w", err)
		}

		p.absorb(batch, bars, tradingDay, result)

		if end < len(need) && p.batchDelay > 0 {
			p.sleep(p.batchDelay)
		}
	}

	p.log.Info().Int("stored", result.Stored).Int("rejected", result.Rejected).
		Int("missing", result.Missing).Msg("Price refresh complete")
	return result, nil
}

// absorb validates and stores one batch's bars and classifies each
// requested ticker.
func (p *Processor) absorb(batch []string, bars []domain.DailyBar, tradingDay time.Time, result *Result) {
	byTicker := make(map[string]domain.DailyBar, len(bars))
	for _, bar := range bars {
		byTicker[bar.Ticker] = bar
	}

	day := tradingDay.Format("2006-01-02")
	for _, ticker := range batch {
		bar, ok := byTicker[ticker]
		if !ok {
			result.Outcomes[ticker] = OutcomeMissing
			result.Missing++
			continue
		}

		// A stale quote is worse than a missing one: reject bars whose
		// reported date is not the trading day being refreshed.
		if bar.Date.Format("2006-01-02") != day {
			p.log.Warn().Str("ticker", ticker).Str("got", bar.Date.Format("2006-01-02")).
				Str("want", day).Msg("Rejecting bar with wrong date")
			result.Outcomes[ticker] = OutcomeRejected
			result.Rejected++
			continue
		}

		if err := p.bars.UpsertBar(bar); err != nil {
			if errors.Is(err, domain.ErrDataInvalid) {
				p.log.Warn().Str("ticker", ticker).Err(err).Msg("Rejecting invalid bar")
				result.Outcomes[ticker] = OutcomeRejected
				result.Rejected++
			} else {
				p.log.Error().Str("ticker", ticker).Err(err).Msg("Failed to store bar")
				result.Outcomes[ticker] = OutcomeMissing
				result.Missing++
			}
			continue
		}

		result.Outcomes[ticker] = OutcomeStored
		result.Stored++
	}
}

// maxBackfillDays bounds one historical_range call so no request exceeds a
// provider's window. 500 calendar days comfortably covers 250 trading days.
const maxBackfillDays = 500

// FillToMinimum backfills a ticker's history to at least minDays bars with
// a single historical_range call over the gap. Returns bars stored.
func (p *Processor) FillToMinimum(ctx context.Context, ticker string, minDays int, asOf time.Time) (int, error) {
	have, err := p.bars.CountBars(ticker)
	if err != nil {
		return 0, err
	}
	if have >= minDays {
		return 0, nil
	}

	// Trading days run about 252 to the calendar year; fetch with headroom
	// and cap the window.
	needDays := (minDays - have) * 7 / 5
	if needDays > maxBackfillDays {
		needDays = maxBackfillDays
	}
	from := asOf.AddDate(0, 0, -needDays)

	series, err := p.router.HistoricalRange(ctx, ticker, from, asOf)
	if err != nil {
		return 0, fmt.Errorf("backfill fetch for %s failed: %w", ticker, err)
	}

	// Drop invalid bars rather than aborting the whole series.
	valid := series[:0]
	for _, bar := range series {
		if err := bar.Validate(); err != nil {
			p.log.Warn().Str("ticker", ticker).Err(err).Msg("Dropping invalid backfill bar")
			continue
		}
		valid = append(valid, bar)
	}

	stored, err := p.bars.UpsertBars(valid)
	if err != nil {
		return 0, fmt.Errorf("backfill store for %s failed: %w", ticker, err)
	}

	p.log.Info().Str("ticker", ticker).Int("had", have).Int("stored", stored).Msg("Backfilled history")
	return stored, nil
}
