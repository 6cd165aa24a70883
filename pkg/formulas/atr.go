package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateATR calculates the Average True Range with Wilder smoothing.
//
//	True range = max(high-low, |high-prev_close|, |low-prev_close|)
//
// Returns nil when fewer than length+1 bars are available (the first true
// range needs a previous close).
func CalculateATR(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, length)
	return lastValid(atr)
}
