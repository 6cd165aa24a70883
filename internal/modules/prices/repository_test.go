package prices

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

func testBar(ticker string, date string, close float64) domain.DailyBar {
	d, _ := time.Parse("2006-01-02", date)
	return domain.DailyBar{
		Ticker: ticker,
		Date:   d,
		Open:   close - 1,
		High:   close + 2,
		Low:    close - 2,
		Close:  close,
		Volume: 1000,
	}
}

func TestUpsertBarRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	require.NoError(t, repo.UpsertBar(testBar("AAPL", "2026-08-24", 231.55)))

	bars, err := repo.RecentBars("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "AAPL", bars[0].Ticker)
	assert.InDelta(t, 231.55, bars[0].Close, 1e-9)
	assert.InDelta(t, 230.55, bars[0].Open, 1e-9)
	assert.Equal(t, int64(1000), bars[0].Volume)
}

func TestUpsertBarRejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	bad := testBar("AAPL", "2026-08-24", 100)
	bad.High = 50 // below close

	err := repo.UpsertBar(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataInvalid)

	n, err := repo.CountBars("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsertBarPreservesIndicators(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBar(testBar("AAPL", "2026-08-24", 100)))

	rsi := 55.5
	require.NoError(t, repo.UpdateIndicators("AAPL", date, domain.IndicatorSet{RSI14: &rsi}))

	// Re-upserting the bar (a corrected close) must not wipe the RSI.
	require.NoError(t, repo.UpsertBar(testBar("AAPL", "2026-08-24", 101)))

	var stored sql.NullInt64
	require.NoError(t, db.QueryRow(
		`SELECT rsi_14 FROM daily_charts WHERE ticker = 'AAPL' AND date = '2026-08-24'`).Scan(&stored))
	require.True(t, stored.Valid)
	assert.Equal(t, int64(5550), stored.Int64)
}

func TestUpsertBarsBatchAbortsOnInvalid(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	bad := testBar("AAPL", "2026-08-21", 100)
	bad.Volume = -1

	_, err := repo.UpsertBars([]domain.DailyBar{
		testBar("AAPL", "2026-08-20", 99),
		bad,
	})
	require.Error(t, err)

	n, err := repo.CountBars("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "batch must be all-or-nothing")
}

func TestUpdateIndicatorsPartialWrite(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertBar(testBar("AAPL", "2026-08-24", 100)))

	rsi, ema := 62.31, 98.77
	require.NoError(t, repo.UpdateIndicators("AAPL", date, domain.IndicatorSet{RSI14: &rsi, EMA20: &ema}))

	// Second pass writes a different field and must not erase the first.
	macd := -1.25
	require.NoError(t, repo.UpdateIndicators("AAPL", date, domain.IndicatorSet{MACD: &macd}))

	var storedRSI, storedMACD sql.NullInt64
	var storedSMA sql.NullInt64
	require.NoError(t, db.QueryRow(
		`SELECT rsi_14, macd, sma_20 FROM daily_charts WHERE ticker = 'AAPL' AND date = '2026-08-24'`).
		Scan(&storedRSI, &storedMACD, &storedSMA))
	assert.Equal(t, int64(6231), storedRSI.Int64)
	assert.Equal(t, int64(-125), storedMACD.Int64)
	assert.False(t, storedSMA.Valid, "untouched columns stay NULL")
}

func TestUpdateIndicatorsMissingBar(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	rsi := 50.0
	err := repo.UpdateIndicators("AAPL", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		domain.IndicatorSet{RSI14: &rsi})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataInvalid)
}

func TestRecentBarsAscendingWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	dates := []string{"2026-08-18", "2026-08-19", "2026-08-20", "2026-08-21", "2026-08-24"}
	for i, d := range dates {
		require.NoError(t, repo.UpsertBar(testBar("AAPL", d, 100+float64(i))))
	}

	bars, err := repo.RecentBars("AAPL", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "2026-08-20", bars[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2026-08-24", bars[2].Date.Format("2006-01-02"))

	latest, err := repo.LatestDate("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-24", latest.Format("2006-01-02"))

	zero, err := repo.LatestDate("NONE")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestHasBarOn(t *testing.T) {
	db := newTestDB(t)
	repo := NewBarRepository(db, zerolog.Nop())

	require.NoError(t, repo.UpsertBar(testBar("AAPL", "2026-08-24", 100)))

	ok, err := repo.HasBarOn("AAPL", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasBarOn("AAPL", time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
}
