// Package prices refreshes and stores daily OHLCV bars.
package prices

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/domain"
)

// BarRepository handles daily_charts table operations. Prices and indicator
// values are stored as integers scaled by 100.
type BarRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewBarRepository(db *sql.DB, log zerolog.Logger) *BarRepository {
	return &BarRepository{
		db:  db,
		log: log.With().Str("repo", "daily_charts").Logger(),
	}
}

// UpsertBar inserts or updates one bar. On conflict only the OHLCV columns
// are replaced; indicator columns computed earlier are left untouched.
func (r *BarRepository) UpsertBar(bar domain.DailyBar) error {
	if err := bar.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(`
		INSERT INTO daily_charts (ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`,
		bar.Ticker, bar.Date.Format("2006-01-02"),
		domain.ScalePrice(bar.Open), domain.ScalePrice(bar.High),
		domain.ScalePrice(bar.Low), domain.ScalePrice(bar.Close),
		bar.Volume)
	if err != nil {
		return fmt.Errorf("failed to upsert bar %s %s: %w", bar.Ticker, bar.Date.Format("2006-01-02"), err)
	}
	return nil
}

// UpsertBars writes a batch of bars in one transaction. Returns the count
// stored; an invalid bar aborts the whole batch so a partial backfill never
// leaves silent holes.
func (r *BarRepository) UpsertBars(bars []domain.DailyBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_charts (ticker, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (ticker, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar upsert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if err := bar.Validate(); err != nil {
				return err
			}
			if _, err := stmt.Exec(bar.Ticker, bar.Date.Format("2006-01-02"),
				domain.ScalePrice(bar.Open), domain.ScalePrice(bar.High),
				domain.ScalePrice(bar.Low), domain.ScalePrice(bar.Close),
				bar.Volume); err != nil {
				return fmt.Errorf("failed to upsert bar %s %s: %w", bar.Ticker, bar.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(bars), nil
}

// indicatorColumns maps schema columns to their IndicatorSet fields.
func indicatorColumns(set domain.IndicatorSet) map[string]*float64 {
	return map[string]*float64{
		"rsi_14":           set.RSI14,
		"ema_20":           set.EMA20,
		"ema_50":           set.EMA50,
		"ema_100":          set.EMA100,
		"ema_200":          set.EMA200,
		"sma_20":           set.SMA20,
		"sma_50":           set.SMA50,
		"sma_200":          set.SMA200,
		"macd":             set.MACD,
		"macd_signal":      set.MACDSignal,
		"macd_histogram":   set.MACDHistogram,
		"bollinger_upper":  set.BollingerUpper,
		"bollinger_middle": set.BollingerMiddle,
		"bollinger_lower":  set.BollingerLower,
		"stochastic_k":     set.StochasticK,
		"stochastic_d":     set.StochasticD,
		"cci_20":           set.CCI20,
		"atr_14":           set.ATR14,
		"adx_14":           set.ADX14,
		"di_plus":          set.DIPlus,
		"di_minus":         set.DIMinus,
		"vwap_20":          set.VWAP20,
		"obv":              set.OBV,
		"volume_sma_20":    set.VolumeSMA20,
		"fib_236":          set.Fib236,
		"fib_382":          set.Fib382,
		"fib_500":          set.Fib500,
		"fib_618":          set.Fib618,
		"fib_786":          set.Fib786,
		"pivot_point":      set.PivotPoint,
		"resistance_1":     set.Resistance1,
		"resistance_2":     set.Resistance2,
		"resistance_3":     set.Resistance3,
		"support_1":        set.Support1,
		"support_2":        set.Support2,
		"support_3":        set.Support3,
		"swing_high":       set.SwingHigh,
		"swing_low":        set.SwingLow,
	}
}

// indicatorColumnOrder fixes the SET clause order so generated SQL is
// deterministic.
var indicatorColumnOrder = []string{
	"rsi_14", "ema_20", "ema_50", "ema_100", "ema_200", "sma_20", "sma_50", "sma_200",
	"macd", "macd_signal", "macd_histogram",
	"bollinger_upper", "bollinger_middle", "bollinger_lower",
	"stochastic_k", "stochastic_d", "cci_20", "atr_14",
	"adx_14", "di_plus", "di_minus",
	"vwap_20", "obv", "volume_sma_20",
	"fib_236", "fib_382", "fib_500", "fib_618", "fib_786",
	"pivot_point", "resistance_1", "resistance_2", "resistance_3",
	"support_1", "support_2", "support_3", "swing_high", "swing_low",
}

// UpdateIndicators writes the non-nil fields of set onto an existing bar.
// Nil fields keep whatever value the column already holds.
func (r *BarRepository) UpdateIndicators(ticker string, date time.Time, set domain.IndicatorSet) error {
	return r.updateIndicators(r.db, ticker, date, set)
}

// UpdateIndicatorsTx is UpdateIndicators inside a caller-managed
// transaction, used by the engine to commit one ticker's day atomically.
func (r *BarRepository) UpdateIndicatorsTx(tx *sql.Tx, ticker string, date time.Time, set domain.IndicatorSet) error {
	return r.updateIndicators(tx, ticker, date, set)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *BarRepository) updateIndicators(ex execer, ticker string, date time.Time, set domain.IndicatorSet) error {
	cols := indicatorColumns(set)

	var assignments []string
	var args []interface{}
	for _, col := range indicatorColumnOrder {
		val := cols[col]
		if val == nil {
			continue
		}
		assignments = append(assignments, col+" = ?")
		args = append(args, domain.ScalePrice(*val))
	}
	if len(assignments) == 0 {
		return nil
	}

	args = append(args, strings.ToUpper(ticker), date.Format("2006-01-02"))
	query := "UPDATE daily_charts SET " + strings.Join(assignments, ", ") + " WHERE ticker = ? AND date = ?"

	res, err := ex.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update indicators for %s %s: %w", ticker, date.Format("2006-01-02"), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no bar for %s on %s: %w", ticker, date.Format("2006-01-02"), domain.ErrDataInvalid)
	}
	return nil
}

// RecentBars returns up to limit most recent bars in ascending date order.
func (r *BarRepository) RecentBars(ticker string, limit int) ([]domain.DailyBar, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, open, high, low, close, volume
		FROM (SELECT * FROM daily_charts WHERE ticker = ? ORDER BY date DESC LIMIT ?)
		ORDER BY date ASC`,
		strings.ToUpper(ticker), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent bars for %s: %w", ticker, err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// BarsBetween returns bars in [from, to] ascending.
func (r *BarRepository) BarsBetween(ticker string, from, to time.Time) ([]domain.DailyBar, error) {
	rows, err := r.db.Query(`
		SELECT ticker, date, open, high, low, close, volume
		FROM daily_charts
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		strings.ToUpper(ticker), from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", ticker, err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// LatestDate returns the most recent bar date for a ticker, or the zero
// time when no bars exist.
func (r *BarRepository) LatestDate(ticker string) (time.Time, error) {
	var dateStr sql.NullString
	err := r.db.QueryRow(`SELECT MAX(date) FROM daily_charts WHERE ticker = ?`,
		strings.ToUpper(ticker)).Scan(&dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date for %s: %w", ticker, err)
	}
	if !dateStr.Valid || dateStr.String == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse("2006-01-02", dateStr.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored date %q for %s: %w", dateStr.String, ticker, err)
	}
	return date, nil
}

// CountBars returns how many bars a ticker holds.
func (r *BarRepository) CountBars(ticker string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM daily_charts WHERE ticker = ?`,
		strings.ToUpper(ticker)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", ticker, err)
	}
	return n, nil
}

// HasBarOn reports whether a bar exists for the ticker on the given date.
func (r *BarRepository) HasBarOn(ticker string, date time.Time) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM daily_charts WHERE ticker = ? AND date = ?`,
		strings.ToUpper(ticker), date.Format("2006-01-02")).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe bar %s %s: %w", ticker, date.Format("2006-01-02"), err)
	}
	return true, nil
}

// DB exposes the underlying handle for callers that batch indicator writes
// into a single transaction.
func (r *BarRepository) DB() *sql.DB {
	return r.db
}

func scanBars(rows *sql.Rows) ([]domain.DailyBar, error) {
	var bars []domain.DailyBar
	for rows.Next() {
		var bar domain.DailyBar
		var dateStr string
		var open, high, low, closePrice int64
		if err := rows.Scan(&bar.Ticker, &dateStr, &open, &high, &low, &closePrice, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("bad stored date %q: %w", dateStr, err)
		}
		bar.Date = date
		bar.Open = domain.UnscalePrice(open)
		bar.High = domain.UnscalePrice(high)
		bar.Low = domain.UnscalePrice(low)
		bar.Close = domain.UnscalePrice(closePrice)
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	return bars, nil
}
