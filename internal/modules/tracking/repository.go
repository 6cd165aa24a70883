// Package tracking persists the API usage ledger and the update log that
// the orchestrator reads to resume interrupted runs.
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

// UsageRepository handles the api_usage_tracking ledger.
type UsageRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewUsageRepository(db *sql.DB, log zerolog.Logger) *UsageRepository {
	return &UsageRepository{
		db:  db,
		log: log.With().Str("repo", "api_usage").Logger(),
	}
}

// RecordCall increments the (provider, date, endpoint) counter by one.
// Satisfies the router's UsageRecorder; called before the HTTP request.
func (r *UsageRepository) RecordCall(ctx context.Context, provider, endpoint string, day time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_usage_tracking (provider, date, endpoint, calls_made)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (provider, date, endpoint) DO UPDATE SET
			calls_made = calls_made + 1`,
		provider, day.Format("2006-01-02"), endpoint)
	if err != nil {
		return fmt.Errorf("failed to record API call: %w", err)
	}
	return nil
}

// CallsOn returns calls made by one provider on a day, across endpoints.
func (r *UsageRepository) CallsOn(provider string, day time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COALESCE(SUM(calls_made), 0) FROM api_usage_tracking
		WHERE provider = ? AND date = ?`,
		provider, day.Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to query provider usage: %w", err)
	}
	return n, nil
}

// TotalCallsOn returns calls made across all providers on a day.
func (r *UsageRepository) TotalCallsOn(day time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COALESCE(SUM(calls_made), 0) FROM api_usage_tracking WHERE date = ?`,
		day.Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to query total usage: %w", err)
	}
	return n, nil
}

// UsageByEndpoint returns the day's ledger rows for status reporting.
func (r *UsageRepository) UsageByEndpoint(day time.Time) ([]domain.APIUsage, error) {
	rows, err := r.db.Query(`
		SELECT provider, date, endpoint, calls_made, calls_limit
		FROM api_usage_tracking WHERE date = ?
		ORDER BY provider, endpoint`,
		day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.APIUsage
	for rows.Next() {
		var u domain.APIUsage
		var dateStr string
		if err := rows.Scan(&u.Provider, &dateStr, &u.Endpoint, &u.CallsMade, &u.CallsLimit); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		if date, err := time.Parse("2006-01-02", dateStr); err == nil {
			u.Date = date
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return out, nil
}

// RunLogRepository handles the update_log table.
type RunLogRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRunLogRepository(db *sql.DB, log zerolog.Logger) *RunLogRepository {
	return &RunLogRepository{
		db:  db,
		log: log.With().Str("repo", "update_log").Logger(),
	}
}

// Append writes one log row and returns its id.
func (r *RunLogRepository) Append(entry domain.UpdateLog) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO update_log (run_id, update_type, ticker, status, error_message,
		                        records_processed, execution_time_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.UpdateType, entry.Ticker, entry.Status, entry.ErrorMessage,
		entry.RecordsProcessed, entry.ExecutionTimeMS,
		entry.StartedAt.UTC().Format(timestampLayout), entry.CompletedAt.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to append update log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read update log id: %w", err)
	}
	return id, nil
}

// PhaseSucceededOn reports whether a phase already has a success (or
// partial) row for the given day. The orchestrator uses this to skip
// completed phases when resuming.
func (r *RunLogRepository) PhaseSucceededOn(updateType string, day time.Time) (bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM update_log
		WHERE update_type = ? AND status IN (?, ?)
		  AND started_at >= ? AND started_at < ?`,
		updateType, domain.StatusSuccess, domain.StatusPartial,
		dayStart.Format(timestampLayout),
		dayStart.Add(24*time.Hour).Format(timestampLayout)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query phase status: %w", err)
	}
	return n > 0, nil
}

// RunEntries returns all rows for one run, oldest first.
func (r *RunLogRepository) RunEntries(runID string) ([]domain.UpdateLog, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, update_type, COALESCE(ticker, ''), status,
		       COALESCE(error_message, ''), records_processed, execution_time_ms,
		       started_at, completed_at
		FROM update_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run entries: %w", err)
	}
	defer rows.Close()
	return scanLogRows(rows)
}

// LatestRun returns the most recent run id and its rows, or ("", nil) when
// the log is empty.
func (r *RunLogRepository) LatestRun() (string, []domain.UpdateLog, error) {
	var runID sql.NullString
	err := r.db.QueryRow(`
		SELECT run_id FROM update_log WHERE run_id != '' ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	entries, err := r.RunEntries(runID.String)
	if err != nil {
		return "", nil, err
	}
	return runID.String, entries, nil
}

// timestampLayout matches what CURRENT_TIMESTAMP produces, so string
// comparisons against our own writes stay consistent.
const timestampLayout = "2006-01-02 15:04:05"

func scanLogRows(rows *sql.Rows) ([]domain.UpdateLog, error) {
	var out []domain.UpdateLog
	for rows.Next() {
		var e domain.UpdateLog
		var startedAt, completedAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.UpdateType, &e.Ticker, &e.Status,
			&e.ErrorMessage, &e.RecordsProcessed, &e.ExecutionTimeMS,
			&startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan update log row: %w", err)
		}
		if t, err := time.Parse(timestampLayout, startedAt); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(timestampLayout, completedAt); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update log: %w", err)
	}
	return out, nil
}
