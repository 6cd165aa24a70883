package indicators

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/modules/prices"
)

func newTestRepo(t *testing.T) (*prices.BarRepository, *sql.DB) {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "market.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return prices.NewBarRepository(db.Conn(), zerolog.Nop()), db.Conn()
}

func seedHistory(t *testing.T, repo *prices.BarRepository, ticker string, days int, last time.Time) {
	t.Helper()
	series := makeSeries(days)
	// Re-date the synthetic series so its last bar lands on `last`.
	for i := range series {
		series[i].Ticker = ticker
		series[i].Date = last.AddDate(0, 0, i-(days-1))
	}
	for _, bar := range series {
		require.NoError(t, repo.UpsertBar(bar))
	}
}

func TestComputeTickerWritesIndicators(t *testing.T) {
	repo, db := newTestRepo(t)
	calc := NewCalculator(repo, zerolog.Nop())

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	seedHistory(t, repo, "AAPL", 120, day)

	status, err := calc.ComputeTicker("AAPL", day)
	require.NoError(t, err)
	assert.Equal(t, StatusComputed, status)

	var rsi, ema100, ema200 sql.NullInt64
	require.NoError(t, db.QueryRow(
		`SELECT rsi_14, ema_100, ema_200 FROM daily_charts WHERE ticker = 'AAPL' AND date = '2026-08-24'`).
		Scan(&rsi, &ema100, &ema200))
	assert.True(t, rsi.Valid)
	assert.True(t, ema100.Valid)
	assert.False(t, ema200.Valid, "200-bar family needs 200 bars")
}

func TestComputeTickerInsufficientHistory(t *testing.T) {
	repo, _ := newTestRepo(t)
	calc := NewCalculator(repo, zerolog.Nop())

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	seedHistory(t, repo, "NEWIPO", 20, day)

	status, err := calc.ComputeTicker("NEWIPO", day)
	require.NoError(t, err)
	assert.Equal(t, StatusInsufficientHistory, status)
}

func TestComputeTickerNoBarToday(t *testing.T) {
	repo, _ := newTestRepo(t)
	calc := NewCalculator(repo, zerolog.Nop())

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	seedHistory(t, repo, "STALE", 120, day.AddDate(0, 0, -3))

	status, err := calc.ComputeTicker("STALE", day)
	require.NoError(t, err)
	assert.Equal(t, StatusNoBarToday, status)
}
