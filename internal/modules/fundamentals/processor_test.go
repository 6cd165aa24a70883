package fundamentals

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/domain"
	"github.com/aristath/nightshift/internal/modules/prices"
	"github.com/aristath/nightshift/internal/modules/universe"
)

type stubFetcher struct {
	rows   []domain.Fundamentals
	events []domain.EarningsEvent
	err    error
	calls  int
}

func (s *stubFetcher) Fundamentals(_ context.Context, _ string) ([]domain.Fundamentals, error) {
	s.calls++
	return s.rows, s.err
}

func (s *stubFetcher) EarningsCalendar(_ context.Context, _, _ time.Time) ([]domain.EarningsEvent, error) {
	return s.events, s.err
}

type procFixture struct {
	proc   *Processor
	repo   *Repository
	stocks *universe.StockRepository
	bars   *prices.BarRepository
}

func newProcFixture(t *testing.T, fetcher *stubFetcher) procFixture {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db.Conn(), zerolog.Nop())
	stocks := universe.NewStockRepository(db.Conn(), zerolog.Nop())
	bars := prices.NewBarRepository(db.Conn(), zerolog.Nop())
	proc := NewProcessor(fetcher, fetcher, repo, stocks, bars, zerolog.Nop())
	proc.now = func() time.Time { return time.Date(2026, 8, 24, 22, 0, 0, 0, time.UTC) }

	require.NoError(t, stocks.Upsert(domain.Stock{Ticker: "ACME", Active: true, Sector: "Industrials"}))
	return procFixture{proc: proc, repo: repo, stocks: stocks, bars: bars}
}

func TestRefreshTickerStoresAndStamps(t *testing.T) {
	fetcher := &stubFetcher{rows: fourQuarters()}
	fx := newProcFixture(t, fetcher)

	n, err := fx.proc.RefreshTicker(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	stored, err := fx.repo.RecentPeriods("ACME", domain.PeriodQuarterly, 8)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, "high", stored[0].Quality)

	stock, err := fx.stocks.GetByTicker("ACME")
	require.NoError(t, err)
	require.NotNil(t, stock.FundamentalsLastUpdate)
	assert.Equal(t, 2026, stock.FundamentalsLastUpdate.Year())
}

func TestRefreshTickerAnnualOnlyIsLowQuality(t *testing.T) {
	d, _ := time.Parse("2006-01-02", "2025-12-31")
	fetcher := &stubFetcher{rows: []domain.Fundamentals{{
		Ticker: "ACME", ReportDate: d, PeriodType: domain.PeriodAnnual,
		FiscalYear: 2025, Revenue: fp(900),
	}}}
	fx := newProcFixture(t, fetcher)

	_, err := fx.proc.RefreshTicker(context.Background(), "ACME")
	require.NoError(t, err)

	stored, err := fx.repo.RecentPeriods("ACME", domain.PeriodAnnual, 2)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "low", stored[0].Quality)
}

func TestRefreshTickerEmptyResponse(t *testing.T) {
	fx := newProcFixture(t, &stubFetcher{})

	_, err := fx.proc.RefreshTicker(context.Background(), "ACME")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}

func TestRefreshTickerPropagatesFetchError(t *testing.T) {
	fx := newProcFixture(t, &stubFetcher{err: domain.ErrProviderDown})

	_, err := fx.proc.RefreshTicker(context.Background(), "ACME")
	assert.ErrorIs(t, err, domain.ErrProviderDown)
}

func TestRecomputeDerived(t *testing.T) {
	fx := newProcFixture(t, &stubFetcher{rows: fourQuarters()})

	_, err := fx.proc.RefreshTicker(context.Background(), "ACME")
	require.NoError(t, err)
	require.NoError(t, fx.bars.UpsertBar(domain.DailyBar{
		Ticker: "ACME", Date: calcDate(),
		Open: 29, High: 31, Low: 28, Close: 30, Volume: 1000,
	}))

	require.NoError(t, fx.proc.RecomputeDerived("ACME", calcDate()))

	ratios, err := fx.repo.LatestRatios("ACME")
	require.NoError(t, err)
	require.NotNil(t, ratios)
	require.NotNil(t, ratios.ROE)
	assert.InDelta(t, 0.05, *ratios.ROE, 1e-9)
	require.NotNil(t, ratios.PE)
	assert.InDelta(t, 30, *ratios.PE, 1e-9)

	scores, err := fx.repo.LatestScores("ACME")
	require.NoError(t, err)
	require.NotNil(t, scores)
	assert.NotNil(t, scores.ConservativeScore)
	assert.NotNil(t, scores.FinHealthScore)
}

func TestRecomputeDerivedNoStatements(t *testing.T) {
	fx := newProcFixture(t, &stubFetcher{})

	err := fx.proc.RecomputeDerived("ACME", calcDate())
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}

func TestPendingEarningsRefreshes(t *testing.T) {
	fx := newProcFixture(t, &stubFetcher{})
	now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	require.NoError(t, fx.repo.UpsertEarningsEvents([]domain.EarningsEvent{
		{Ticker: "ACME", EarningsDate: now.AddDate(0, 0, -2), Confirmed: true},
		{Ticker: "DONE", EarningsDate: now.AddDate(0, 0, -3), Confirmed: true},
		{Ticker: "OLD", EarningsDate: now.AddDate(0, 0, -30), Confirmed: true},
	}))
	require.NoError(t, fx.repo.MarkEarningsDataUpdated("DONE", now.AddDate(0, 0, -3)))

	pending, err := fx.proc.PendingEarningsRefreshes(now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ACME", pending[0].Ticker)
}

func TestSyncEarningsCalendar(t *testing.T) {
	eventDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{events: []domain.EarningsEvent{
		{Ticker: "ACME", EarningsDate: eventDate, Confirmed: true},
		{Ticker: "NOTINUNIVERSE", EarningsDate: eventDate, Confirmed: false},
	}}
	fx := newProcFixture(t, fetcher)

	n, err := fx.proc.SyncEarningsCalendar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err := fx.repo.EarningsEventsBetween(eventDate.AddDate(0, 0, -1), eventDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, events, 2)

	stock, err := fx.stocks.GetByTicker("ACME")
	require.NoError(t, err)
	require.NotNil(t, stock.NextEarningsDate)
	assert.Equal(t, eventDate.Format("2006-01-02"), stock.NextEarningsDate.Format("2006-01-02"))
}

func TestSyncEarningsCalendarEmpty(t *testing.T) {
	fx := newProcFixture(t, &stubFetcher{})

	n, err := fx.proc.SyncEarningsCalendar(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPriorityOrdering(t *testing.T) {
	now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -120)
	aging := now.AddDate(0, 0, -45)
	fresh := now.AddDate(0, 0, -5)

	tests := []struct {
		name           string
		lastUpdate     *time.Time
		recentEarnings bool
		want           int
	}{
		{"earnings window beats everything", &fresh, true, PriorityEarningsWindow},
		{"never fetched", nil, false, PriorityNeverFetched},
		{"aging past 30 days", &aging, false, PriorityAging},
		{"stale past 90 days", &old, false, PriorityStale},
		{"fresh", &fresh, false, PriorityFresh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stock := &domain.Stock{Ticker: "X", FundamentalsLastUpdate: tt.lastUpdate}
			assert.Equal(t, tt.want, Priority(stock, tt.recentEarnings, now))
		})
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -120)
	fresh := now.AddDate(0, 0, -5)

	assert.True(t, NeedsRefresh(&domain.Stock{}, false, now), "never fetched")
	assert.True(t, NeedsRefresh(&domain.Stock{FundamentalsLastUpdate: &old}, false, now), "stale")
	assert.True(t, NeedsRefresh(&domain.Stock{FundamentalsLastUpdate: &fresh}, true, now), "earnings window")
	assert.False(t, NeedsRefresh(&domain.Stock{FundamentalsLastUpdate: &fresh}, false, now))
}
