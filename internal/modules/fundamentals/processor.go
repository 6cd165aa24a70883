package fundamentals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

// Refresh policy windows.
const (
	staleAfterDays      = 90
	agingAfterDays      = 30
	earningsWindowDays  = 7
	quarterlyFetchLimit = 8
	annualFetchLimit    = 2
)

// Priority levels for the refresh queue. Higher runs first.
const (
	PriorityEarningsWindow = 5
	PriorityNeverFetched   = 4
	PriorityAging          = 3
	PriorityStale          = 2
	PriorityFresh          = 1
)

// StatementFetcher is the slice of the provider router this processor
// needs.
type StatementFetcher interface {
	Fundamentals(ctx context.Context, ticker string) ([]domain.Fundamentals, error)
}

// CalendarFetcher supplies upcoming earnings dates.
type CalendarFetcher interface {
	EarningsCalendar(ctx context.Context, from, to time.Time) ([]domain.EarningsEvent, error)
}

// StockMeta is the slice of the universe repository this processor needs.
type StockMeta interface {
	GetByTicker(ticker string) (*domain.Stock, error)
	TouchFundamentalsUpdate(ticker string, at time.Time) error
	SetNextEarningsDate(ticker string, date time.Time) error
}

// PriceReader supplies the closing price ratios are computed against.
type PriceReader interface {
	RecentBars(ticker string, n int) ([]domain.DailyBar, error)
}

// Processor refreshes statement data through the provider router and
// derives ratios and scores from what is stored.
type Processor struct {
	fetcher  StatementFetcher
	calendar CalendarFetcher
	repo     *Repository
	stocks   StockMeta
	prices   PriceReader
	log      zerolog.Logger

	now func() time.Time
}

func NewProcessor(fetcher StatementFetcher, calendar CalendarFetcher, repo *Repository, stocks StockMeta, prices PriceReader, log zerolog.Logger) *Processor {
	return &Processor{
		fetcher:  fetcher,
		calendar: calendar,
		repo:     repo,
		stocks:   stocks,
		prices:   prices,
		log:      log.With().Str("component", "fundamentals_processor").Logger(),
		now:      time.Now,
	}
}

// Priority ranks a stock for the refresh queue. recentEarnings reports
// whether the ticker had an earnings event inside the last week whose
// post-earnings refresh has not run yet.
func Priority(stock *domain.Stock, recentEarnings bool, now time.Time) int {
	if recentEarnings {
		return PriorityEarningsWindow
	}
	if stock.FundamentalsLastUpdate == nil {
		return PriorityNeverFetched
	}
	age := now.Sub(*stock.FundamentalsLastUpdate)
	switch {
	case age > staleAfterDays*24*time.Hour:
		return PriorityStale
	case age > agingAfterDays*24*time.Hour:
		return PriorityAging
	}
	return PriorityFresh
}

// NeedsRefresh reports whether the stock qualifies for a fetch at all:
// never fetched, stale past the 90-day window, or inside the post-earnings
// window.
func NeedsRefresh(stock *domain.Stock, recentEarnings bool, now time.Time) bool {
	if recentEarnings {
		return true
	}
	if stock.FundamentalsLastUpdate == nil {
		return true
	}
	return now.Sub(*stock.FundamentalsLastUpdate) > staleAfterDays*24*time.Hour
}

// RefreshTicker fetches statements through the router, stores them, and
// stamps the stock's fundamentals_last_update. Returns the number of
// statement rows written.
func (p *Processor) RefreshTicker(ctx context.Context, ticker string) (int, error) {
	rows, err := p.fetcher.Fundamentals(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: %s returned no statement periods", domain.ErrDataInvalid, ticker)
	}

	now := p.now().UTC()
	quarterly := 0
	for i := range rows {
		rows[i].LastUpdated = now
		if rows[i].PeriodType == domain.PeriodQuarterly {
			quarterly++
		}
	}
	// Quality reflects whether the TTM window can be built from quarters.
	quality := "high"
	if quarterly < 4 {
		quality = "low"
	}
	for i := range rows {
		rows[i].Quality = quality
	}

	if err := p.repo.UpsertStatements(rows); err != nil {
		return 0, err
	}
	if err := p.stocks.TouchFundamentalsUpdate(ticker, now); err != nil {
		return 0, err
	}

	p.log.Info().Str("ticker", ticker).Int("periods", len(rows)).
		Str("quality", quality).Msg("Fundamentals refreshed")
	return len(rows), nil
}

// RecomputeDerived rebuilds the ratio vector and investor scores for a
// ticker as of calcDate, using the latest stored close.
func (p *Processor) RecomputeDerived(ticker string, calcDate time.Time) error {
	quarters, err := p.repo.RecentPeriods(ticker, domain.PeriodQuarterly, quarterlyFetchLimit)
	if err != nil {
		return err
	}
	annuals, err := p.repo.RecentPeriods(ticker, domain.PeriodAnnual, annualFetchLimit)
	if err != nil {
		return err
	}
	if len(quarters) == 0 && len(annuals) == 0 {
		return fmt.Errorf("%w: no stored fundamentals for %s", domain.ErrDataInvalid, ticker)
	}

	bars, err := p.prices.RecentBars(ticker, 1)
	if err != nil {
		return err
	}
	var price float64
	if len(bars) > 0 {
		price = bars[len(bars)-1].Close
	}

	ratios := ComputeRatios(RatioInputs{
		Ticker:   ticker,
		Date:     calcDate,
		Price:    price,
		Quarters: quarters,
		Annuals:  annuals,
	})
	if err := p.repo.UpsertRatios(ratios); err != nil {
		return err
	}

	sector := ""
	if stock, err := p.stocks.GetByTicker(ticker); err == nil && stock != nil {
		sector = stock.Sector
	}
	scores := ComputeScores(ratios, sector)
	if err := p.repo.UpsertScores(scores); err != nil {
		return err
	}

	p.log.Debug().Str("ticker", ticker).
		Int("flags", len(ratios.Flags)).
		Str("risk", string(scores.RiskLevel)).
		Msg("Ratios and scores recomputed")
	return nil
}

// PendingEarningsRefreshes returns events in the trailing window whose
// post-earnings data refresh has not happened yet.
func (p *Processor) PendingEarningsRefreshes(now time.Time) ([]domain.EarningsEvent, error) {
	from := now.AddDate(0, 0, -earningsWindowDays)
	events, err := p.repo.EarningsEventsBetween(from, now)
	if err != nil {
		return nil, err
	}
	var pending []domain.EarningsEvent
	for _, e := range events {
		if !e.DataUpdated {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// MarkEarningsHandled flags the calendar row after a successful
// post-earnings refresh.
func (p *Processor) MarkEarningsHandled(ticker string, earningsDate time.Time) error {
	return p.repo.MarkEarningsDataUpdated(ticker, earningsDate)
}

// calendarHorizonDays bounds how far ahead the calendar sync looks.
const calendarHorizonDays = 14

// SyncEarningsCalendar pulls the upcoming earnings calendar, stores the
// events, and stamps each stock's next earnings date. Returns the number
// of events stored.
func (p *Processor) SyncEarningsCalendar(ctx context.Context) (int, error) {
	now := p.now().UTC()
	events, err := p.calendar.EarningsCalendar(ctx, now, now.AddDate(0, 0, calendarHorizonDays))
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := p.repo.UpsertEarningsEvents(events); err != nil {
		return 0, err
	}
	for _, e := range events {
		if err := p.stocks.SetNextEarningsDate(e.Ticker, e.EarningsDate); err != nil {
			// Calendar rows can reference tickers outside the universe.
			p.log.Debug().Err(err).Str("ticker", e.Ticker).Msg("Skipping next earnings stamp")
		}
	}

	p.log.Info().Int("events", len(events)).Msg("Earnings calendar synced")
	return len(events), nil
}
