package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateCCI calculates the Commodity Channel Index.
//
//	Typical price = (high + low + close) / 3
//	CCI = (TP - SMA(TP, N)) / (0.015 × mean absolute deviation)
//
// Returns nil when fewer than `length` bars are available or when the
// typical price is constant over the window (zero deviation).
func CalculateCCI(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	// Zero mean-absolute-deviation makes the divisor vanish.
	tp := make([]float64, length)
	for i := 0; i < length; i++ {
		j := len(closes) - length + i
		tp[i] = (highs[j] + lows[j] + closes[j]) / 3
	}
	if MeanAbsDev(tp) == 0 {
		return nil
	}

	cci := talib.Cci(highs, lows, closes, length)
	return lastValid(cci)
}
