package formulas

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands represents Bollinger Bands values
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollingerBands calculates Bollinger Bands.
//
//	Middle Band = 20-day SMA
//	Upper Band  = Middle + (multiplier × population std deviation)
//	Lower Band  = Middle - (multiplier × population std deviation)
//
// Returns nil when fewer than `length` closes are available.
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	if len(closes) < length {
		return nil
	}

	// MAType 0 = SMA; talib's stddev is the population form.
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)

	u := lastValid(upper)
	m := lastValid(middle)
	l := lastValid(lower)
	if u == nil || m == nil || l == nil {
		return nil
	}

	return &BollingerBands{Upper: *u, Middle: *m, Lower: *l}
}
