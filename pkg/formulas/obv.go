package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateOBV calculates On-Balance Volume.
//
//	close > prev_close: OBV += volume
//	close < prev_close: OBV -= volume
//	otherwise unchanged
//
// Returns nil when fewer than 2 bars are available.
func CalculateOBV(closes, volumes []float64) *float64 {
	if len(closes) < 2 || len(closes) != len(volumes) {
		return nil
	}

	obv := talib.Obv(closes, volumes)
	return lastValid(obv)
}
