package formulas

import (
	"github.com/markcheno/go-talib"
)

// Stochastic holds the fast stochastic oscillator values.
type Stochastic struct {
	K float64 // raw %K over the lookback
	D float64 // SMA(3) of %K
}

// CalculateStochastic calculates the fast stochastic oscillator.
//
//	%K = 100 × (close - min_low_N) / (max_high_N - min_low_N)
//	%D = SMA(%K, dPeriod)
//
// Returns nil when fewer than kPeriod+dPeriod bars are available or when the
// lookback range is degenerate (max high equals min low).
func CalculateStochastic(highs, lows, closes []float64, kPeriod, dPeriod int) *Stochastic {
	if len(closes) < kPeriod+dPeriod {
		return nil
	}

	// Constant-price windows have no range to normalise against.
	maxHigh, minLow := highs[len(highs)-kPeriod], lows[len(lows)-kPeriod]
	for i := len(closes) - kPeriod + 1; i < len(closes); i++ {
		if highs[i] > maxHigh {
			maxHigh = highs[i]
		}
		if lows[i] < minLow {
			minLow = lows[i]
		}
	}
	if maxHigh == minLow {
		return nil
	}

	k, d := talib.StochF(highs, lows, closes, kPeriod, dPeriod, 0)

	kv := lastValid(k)
	dv := lastValid(d)
	if kv == nil || dv == nil {
		return nil
	}

	return &Stochastic{K: *kv, D: *dv}
}
