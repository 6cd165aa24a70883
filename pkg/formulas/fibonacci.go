package formulas

// FibonacciLevels holds the retracement levels anchored on the swing high
// and swing low within the lookback window.
type FibonacciLevels struct {
	SwingHigh float64
	SwingLow  float64
	Level236  float64
	Level382  float64
	Level500  float64
	Level618  float64
	Level786  float64
}

// CalculateFibonacci computes the five standard retracement levels
// (23.6/38.2/50/61.8/78.6) measured down from the swing high within the
// last `length` bars. Returns nil when fewer than `length` bars are
// available or the swing range is zero.
func CalculateFibonacci(highs, lows []float64, length int) *FibonacciLevels {
	if len(highs) < length || len(lows) < length {
		return nil
	}

	swingHigh := highs[len(highs)-length]
	swingLow := lows[len(lows)-length]
	for i := len(highs) - length + 1; i < len(highs); i++ {
		if highs[i] > swingHigh {
			swingHigh = highs[i]
		}
		if lows[i] < swingLow {
			swingLow = lows[i]
		}
	}

	diff := swingHigh - swingLow
	if diff == 0 {
		return nil
	}

	return &FibonacciLevels{
		SwingHigh: swingHigh,
		SwingLow:  swingLow,
		Level236:  swingHigh - 0.236*diff,
		Level382:  swingHigh - 0.382*diff,
		Level500:  swingHigh - 0.500*diff,
		Level618:  swingHigh - 0.618*diff,
		Level786:  swingHigh - 0.786*diff,
	}
}
