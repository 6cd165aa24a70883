package formulas

// CalculateVWAP calculates the volume-weighted average price over the last
// `length` bars, using the typical price (h+l+c)/3 as the intraday
// surrogate:
//
//	VWAP = Σ(TP × volume) / Σ(volume)
//
// Returns nil when fewer than `length` bars are available or total volume
// over the window is zero.
func CalculateVWAP(highs, lows, closes, volumes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}

	var weighted, totalVolume float64
	for i := len(closes) - length; i < len(closes); i++ {
		tp := (highs[i] + lows[i] + closes[i]) / 3
		weighted += tp * volumes[i]
		totalVolume += volumes[i]
	}

	if totalVolume == 0 {
		return nil
	}

	vwap := weighted / totalVolume
	return &vwap
}
