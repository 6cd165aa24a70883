package formulas

import (
	"github.com/markcheno/go-talib"
)

// DirectionalMovement holds the ADX trend-strength family.
type DirectionalMovement struct {
	ADX     float64
	DIPlus  float64
	DIMinus float64
}

// CalculateADX calculates the Average Directional Index and the directional
// indicators, all Wilder-smoothed:
//
//	DI+ = 100 × smoothed(+DM) / smoothed(TR)
//	DI- = 100 × smoothed(-DM) / smoothed(TR)
//	DX  = 100 × |DI+ - DI-| / (DI+ + DI-)
//	ADX = Wilder(DX, N)
//
// ADX needs two full lookbacks (2N bars): one to seed the DI lines and one
// to seed the DX average. Returns nil below that window.
func CalculateADX(highs, lows, closes []float64, length int) *DirectionalMovement {
	if len(closes) < 2*length {
		return nil
	}

	adx := lastValid(talib.Adx(highs, lows, closes, length))
	diPlus := lastValid(talib.PlusDI(highs, lows, closes, length))
	diMinus := lastValid(talib.MinusDI(highs, lows, closes, length))
	if adx == nil || diPlus == nil || diMinus == nil {
		return nil
	}

	return &DirectionalMovement{ADX: *adx, DIPlus: *diPlus, DIMinus: *diMinus}
}
