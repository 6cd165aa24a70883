package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average.
//
// EMA Formula:
//
//	EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// The first EMA value is seeded with the SMA of the first `length` closes.
// Returns nil when fewer than `length` closes are available.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	ema := talib.Ema(closes, length)
	return lastValid(ema)
}

// CalculateSMA calculates the Simple Moving Average
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)
	return lastValid(sma)
}
