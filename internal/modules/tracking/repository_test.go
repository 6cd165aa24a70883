package tracking

import (
	"context"
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

func TestUsageLedgerIncrements(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsageRepository(db, zerolog.Nop())
	ctx := context.Background()

	day := time.Date(2026, 8, 24, 21, 30, 0, 0, time.UTC)
	require.NoError(t, repo.RecordCall(ctx, "yahoo", "quote_batch", day))
	require.NoError(t, repo.RecordCall(ctx, "yahoo", "quote_batch", day))
	require.NoError(t, repo.RecordCall(ctx, "yahoo", "historical_range", day))
	require.NoError(t, repo.RecordCall(ctx, "fmp", "fundamentals", day))

	n, err := repo.CallsOn("yahoo", day)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	total, err := repo.TotalCallsOn(day)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	// Different day is a different ledger row.
	other, err := repo.CallsOn("yahoo", day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, other)

	rows, err := repo.UsageByEndpoint(day)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "fmp", rows[0].Provider)
	assert.Equal(t, 2, rows[2].CallsMade)
}

func TestRunLogAppendAndResume(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunLogRepository(db, zerolog.Nop())

	started := time.Date(2026, 8, 24, 21, 5, 0, 0, time.UTC)
	entry := domain.UpdateLog{
		RunID:            "run-001",
		UpdateType:       "price_refresh",
		Status:           domain.StatusSuccess,
		RecordsProcessed: 1480,
		ExecutionTimeMS:  182000,
		StartedAt:        started,
		CompletedAt:      started.Add(3 * time.Minute),
	}
	id, err := repo.Append(entry)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = repo.Append(domain.UpdateLog{
		RunID: "run-001", UpdateType: "indicators", Status: domain.StatusFailed,
		ErrorMessage: "deadline exceeded",
		StartedAt:    started.Add(3 * time.Minute), CompletedAt: started.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	ok, err := repo.PhaseSucceededOn("price_refresh", started)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.PhaseSucceededOn("indicators", started)
	require.NoError(t, err)
	assert.False(t, ok, "failed phase must rerun on resume")

	ok, err = repo.PhaseSucceededOn("price_refresh", started.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "yesterday's success does not cover today")

	entries, err := repo.RunEntries("run-001")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "price_refresh", entries[0].UpdateType)
	assert.Equal(t, 1480, entries[0].RecordsProcessed)
	assert.Equal(t, started, entries[0].StartedAt)

	runID, latest, err := repo.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "run-001", runID)
	assert.Len(t, latest, 2)
}

func TestPartialCountsAsCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunLogRepository(db, zerolog.Nop())

	started := time.Date(2026, 8, 24, 21, 5, 0, 0, time.UTC)
	_, err := repo.Append(domain.UpdateLog{
		RunID: "run-002", UpdateType: "fundamentals", Status: domain.StatusPartial,
		StartedAt: started, CompletedAt: started.Add(time.Minute),
	})
	require.NoError(t, err)

	ok, err := repo.PhaseSucceededOn("fundamentals", started)
	require.NoError(t, err)
	assert.True(t, ok)
}
