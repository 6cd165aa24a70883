// Package universe manages the stock universe: which tickers exist, which
// are active, and which need work in tonight's run.
package universe

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/domain"
)

// StockRepository handles stocks table operations.
type StockRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStockRepository(db *sql.DB, log zerolog.Logger) *StockRepository {
	return &StockRepository{
		db:  db,
		log: log.With().Str("repo", "stocks").Logger(),
	}
}

// GetByTicker returns one stock, or nil when unknown.
func (r *StockRepository) GetByTicker(ticker string) (*domain.Stock, error) {
	row := r.db.QueryRow(`
		SELECT ticker, active, sector, industry, market_cap_category,
		       next_earnings_date, fundamentals_last_update, data_priority
		FROM stocks WHERE ticker = ?`,
		strings.ToUpper(strings.TrimSpace(ticker)))

	stock, err := scanStock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	return stock, nil
}

// GetAllActive returns active universe members ordered by descending data
// priority, then ticker, so the highest-priority work is dispatched first.
func (r *StockRepository) GetAllActive() ([]domain.Stock, error) {
	rows, err := r.db.Query(`
		SELECT ticker, active, sector, industry, market_cap_category,
		       next_earnings_date, fundamentals_last_update, data_priority
		FROM stocks WHERE active = 1
		ORDER BY data_priority DESC, ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active stocks: %w", err)
	}
	defer rows.Close()

	var stocks []domain.Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, *stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}
	return stocks, nil
}

// Upsert inserts or updates a stock row, preserving created_at.
func (r *StockRepository) Upsert(s domain.Stock) error {
	_, err := r.db.Exec(`
		INSERT INTO stocks (ticker, active, sector, industry, market_cap_category,
		                    next_earnings_date, fundamentals_last_update, data_priority, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (ticker) DO UPDATE SET
			active = excluded.active,
			sector = excluded.sector,
			industry = excluded.industry,
			market_cap_category = excluded.market_cap_category,
			next_earnings_date = excluded.next_earnings_date,
			fundamentals_last_update = excluded.fundamentals_last_update,
			data_priority = excluded.data_priority,
			updated_at = CURRENT_TIMESTAMP`,
		strings.ToUpper(s.Ticker), s.Active, s.Sector, s.Industry, s.MarketCapCategory,
		nullableDate(s.NextEarningsDate), nullableTimestamp(s.FundamentalsLastUpdate), s.DataPriority)
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", s.Ticker, err)
	}
	return nil
}

// SetDataPriority updates the priority used to order nightly work.
func (r *StockRepository) SetDataPriority(ticker string, priority int) error {
	_, err := r.db.Exec(
		`UPDATE stocks SET data_priority = ?, updated_at = CURRENT_TIMESTAMP WHERE ticker = ?`,
		priority, strings.ToUpper(ticker))
	if err != nil {
		return fmt.Errorf("failed to set data priority for %s: %w", ticker, err)
	}
	return nil
}

// SetNextEarningsDate records the next scheduled earnings date.
func (r *StockRepository) SetNextEarningsDate(ticker string, date time.Time) error {
	_, err := r.db.Exec(
		`UPDATE stocks SET next_earnings_date = ?, updated_at = CURRENT_TIMESTAMP WHERE ticker = ?`,
		date.Format("2006-01-02"), strings.ToUpper(ticker))
	if err != nil {
		return fmt.Errorf("failed to set next earnings date for %s: %w", ticker, err)
	}
	return nil
}

// TouchFundamentalsUpdate stamps the last successful fundamentals refresh.
func (r *StockRepository) TouchFundamentalsUpdate(ticker string, at time.Time) error {
	_, err := r.db.Exec(
		`UPDATE stocks SET fundamentals_last_update = ?, updated_at = CURRENT_TIMESTAMP WHERE ticker = ?`,
		at.UTC().Format(timestampLayout), strings.ToUpper(ticker))
	if err != nil {
		return fmt.Errorf("failed to touch fundamentals update for %s: %w", ticker, err)
	}
	return nil
}

// MarkDelisted deactivates a ticker, keeping all its historical rows.
// Deactivation is the only mutation delisting performs; history is never
// deleted.
func (r *StockRepository) MarkDelisted(ticker, reason string) error {
	res, err := r.db.Exec(
		`UPDATE stocks SET active = 0, delist_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE ticker = ?`,
		reason, strings.ToUpper(ticker))
	if err != nil {
		return fmt.Errorf("failed to mark %s delisted: %w", ticker, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().Str("ticker", ticker).Str("reason", reason).Msg("Ticker marked delisted")
	}
	return nil
}

// TickersMissingBarOn returns active tickers that have no daily bar for the
// given trading date.
func (r *StockRepository) TickersMissingBarOn(date time.Time) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT s.ticker FROM stocks s
		WHERE s.active = 1
		  AND NOT EXISTS (SELECT 1 FROM daily_charts d WHERE d.ticker = s.ticker AND d.date = ?)
		ORDER BY s.data_priority DESC, s.ticker`,
		date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers missing bars: %w", err)
	}
	defer rows.Close()
	return collectTickers(rows)
}

// TickersWithHistoryBelow returns active tickers holding fewer than n bars,
// shortest history first. These are backfill candidates.
func (r *StockRepository) TickersWithHistoryBelow(n int) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT s.ticker FROM stocks s
		LEFT JOIN daily_charts d ON d.ticker = s.ticker
		WHERE s.active = 1
		GROUP BY s.ticker
		HAVING COUNT(d.date) < ?
		ORDER BY COUNT(d.date), s.ticker`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query short-history tickers: %w", err)
	}
	defer rows.Close()
	return collectTickers(rows)
}

// TickersWithStaleFundamentals returns active tickers whose fundamentals
// are older than maxAge (or never fetched), ordered by priority.
func (r *StockRepository) TickersWithStaleFundamentals(asOf time.Time, maxAge time.Duration) ([]string, error) {
	cutoff := asOf.Add(-maxAge).UTC().Format(timestampLayout)
	rows, err := r.db.Query(`
		SELECT ticker FROM stocks
		WHERE active = 1
		  AND (fundamentals_last_update IS NULL OR fundamentals_last_update < ?)
		ORDER BY data_priority DESC, ticker`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale fundamentals: %w", err)
	}
	defer rows.Close()
	return collectTickers(rows)
}

// DelistingSuspects returns active tickers with no new bar for at least
// missedDays consecutive trading dates, judged by their latest stored bar
// against the given cutoff date.
func (r *StockRepository) DelistingSuspects(cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT s.ticker FROM stocks s
		LEFT JOIN (SELECT ticker, MAX(date) AS last_date FROM daily_charts GROUP BY ticker) d
		  ON d.ticker = s.ticker
		WHERE s.active = 1 AND (d.last_date IS NULL OR d.last_date < ?)
		ORDER BY s.ticker`,
		cutoff.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query delisting suspects: %w", err)
	}
	defer rows.Close()
	return collectTickers(rows)
}

// CountActive returns the active universe size.
func (r *StockRepository) CountActive() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM stocks WHERE active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active stocks: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStock(row rowScanner) (*domain.Stock, error) {
	var s domain.Stock
	var nextEarnings, lastFundamentals sql.NullString
	if err := row.Scan(&s.Ticker, &s.Active, &s.Sector, &s.Industry, &s.MarketCapCategory,
		&nextEarnings, &lastFundamentals, &s.DataPriority); err != nil {
		return nil, err
	}
	if nextEarnings.Valid && nextEarnings.String != "" {
		if t, err := time.Parse("2006-01-02", nextEarnings.String); err == nil {
			s.NextEarningsDate = &t
		}
	}
	if lastFundamentals.Valid && lastFundamentals.String != "" {
		if t, err := parseTimestamp(lastFundamentals.String); err == nil {
			s.FundamentalsLastUpdate = &t
		}
	}
	return &s, nil
}

// timestampLayout is how this process writes TIMESTAMP columns. It matches
// what CURRENT_TIMESTAMP produces, so string comparisons in SQL stay valid.
const timestampLayout = "2006-01-02 15:04:05"

// parseTimestamp accepts the formats SQLite hands back for TIMESTAMP
// columns written by this process or by CURRENT_TIMESTAMP.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func nullableTimestamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timestampLayout)
}

func collectTickers(rows *sql.Rows) ([]string, error) {
	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}
	return tickers, nil
}
