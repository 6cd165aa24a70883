package fundamentals

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db.Conn()
}

func f64(v float64) *float64 { return &v }

func quarter(ticker string, date string, q int, revenue float64) domain.Fundamentals {
	d, _ := time.Parse("2006-01-02", date)
	return domain.Fundamentals{
		Ticker:        ticker,
		ReportDate:    d,
		PeriodType:    domain.PeriodQuarterly,
		FiscalYear:    d.Year(),
		FiscalQuarter: q,
		Revenue:       f64(revenue),
		NetIncome:     f64(revenue * 0.2),
		DataSource:    "fmp",
		Quality:       "high",
		LastUpdated:   time.Date(2026, 8, 24, 22, 0, 0, 0, time.UTC),
	}
}

func TestUpsertStatementsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	rows := []domain.Fundamentals{
		quarter("AAPL", "2026-03-31", 1, 90e9),
		quarter("AAPL", "2026-06-30", 2, 95e9),
	}
	require.NoError(t, repo.UpsertStatements(rows))

	got, err := repo.RecentPeriods("AAPL", domain.PeriodQuarterly, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.Equal(t, "2026-06-30", got[0].ReportDate.Format("2006-01-02"))
	assert.InDelta(t, 95e9, *got[0].Revenue, 1)
	assert.Equal(t, domain.PeriodQuarterly, got[0].PeriodType)
	assert.Equal(t, "high", got[0].Quality)

	// Upsert on the same period replaces, not duplicates.
	rows[1].Revenue = f64(96e9)
	require.NoError(t, repo.UpsertStatements(rows[1:]))
	got, err = repo.RecentPeriods("AAPL", domain.PeriodQuarterly, 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 96e9, *got[0].Revenue, 1)
}

func TestUpsertRatiosRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	ratios := domain.Ratios{
		Ticker:          "AAPL",
		CalculationDate: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		PE:              f64(28.4),
		ROE:             f64(1.47),
		AltmanZScore:    f64(8.1),
		Flags:           []string{"peg: N/A - no growth estimate"},
	}
	require.NoError(t, repo.UpsertRatios(ratios))

	got, err := repo.LatestRatios("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 28.4, *got.PE, 1e-9)
	assert.Nil(t, got.PB)
	assert.Equal(t, []string{"peg: N/A - no growth estimate"}, got.Flags)

	none, err := repo.LatestRatios("NONE")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUpsertScoresRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	scores := domain.InvestorScores{
		Ticker:            "AAPL",
		CalculationDate:   time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		ConservativeScore: f64(72.5),
		GARPScore:         f64(65.0),
		DeepValueScore:    f64(40.25),
		RiskLevel:         domain.RiskCaution,
		RiskFactors:       []string{"altman z in grey zone"},
		Explanation:       "growth weight redistributed",
	}
	require.NoError(t, repo.UpsertScores(scores))

	got, err := repo.LatestScores("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 72.5, *got.ConservativeScore, 1e-9)
	assert.Equal(t, domain.RiskCaution, got.RiskLevel)
	assert.Equal(t, []string{"altman z in grey zone"}, got.RiskFactors)
}

func TestEarningsCalendar(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, zerolog.Nop())

	events := []domain.EarningsEvent{
		{Ticker: "AAPL", EarningsDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), Confirmed: true, EPSEstimate: f64(2.10)},
		{Ticker: "MSFT", EarningsDate: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)},
		{Ticker: "ZZZZ", EarningsDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, repo.UpsertEarningsEvents(events))

	got, err := repo.EarningsEventsBetween(
		time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.True(t, got[0].Confirmed)

	require.NoError(t, repo.MarkEarningsDataUpdated("AAPL", events[0].EarningsDate))
	got, err = repo.EarningsEventsBetween(events[0].EarningsDate, events[0].EarningsDate)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].DataUpdated)
}
