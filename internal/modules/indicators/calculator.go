package indicators

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/nightshift/internal/database"
	"github.com/aristath/nightshift/internal/modules/prices"
)

// lookbackBars is how much history the engine is fed. 250 trading days
// covers the 200-bar EMA with margin.
const lookbackBars = 250

// minHistoryBars is the floor below which a ticker is flagged for backfill
// instead of computed.
const minHistoryBars = 50

// Status classifies one ticker's indicator pass.
type Status string

const (
	StatusComputed            Status = "computed"
	StatusInsufficientHistory Status = "insufficient_history"
	StatusNoBarToday          Status = "no_bar_today"
)

// Calculator reads a ticker's recent bars, runs the engine, and writes the
// resulting values back onto today's row.
type Calculator struct {
	bars *prices.BarRepository
	log  zerolog.Logger
}

func NewCalculator(bars *prices.BarRepository, log zerolog.Logger) *Calculator {
	return &Calculator{
		bars: bars,
		log:  log.With().Str("component", "indicator_calculator").Logger(),
	}
}

// ComputeTicker runs the engine for one ticker's tradingDay row. The write
// happens in a single transaction so a half-updated indicator row is never
// visible.
func (c *Calculator) ComputeTicker(ticker string, tradingDay time.Time) (Status, error) {
	series, err := c.bars.RecentBars(ticker, lookbackBars)
	if err != nil {
		return "", err
	}

	if len(series) < minHistoryBars {
		c.log.Debug().Str("ticker", ticker).Int("bars", len(series)).Msg("Insufficient history for indicators")
		return StatusInsufficientHistory, nil
	}

	latest := series[len(series)-1]
	if latest.Date.Format("2006-01-02") != tradingDay.Format("2006-01-02") {
		return StatusNoBarToday, nil
	}

	set, err := Compute(series)
	if err != nil {
		return "", fmt.Errorf("indicator engine failed for %s: %w", ticker, err)
	}

	err = database.WithTransaction(c.bars.DB(), func(tx *sql.Tx) error {
		return c.bars.UpdateIndicatorsTx(tx, ticker, latest.Date, set)
	})
	if err != nil {
		return "", err
	}
	return StatusComputed, nil
}
