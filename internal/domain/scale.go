package domain

import "math"

// Prices and indicator values are stored as integers scaled by 100 to avoid
// floating drift on the wire. Rounding is half-to-even to keep repeated
// round-trips stable.

// PriceScale is the fixed storage scale for prices and indicator values.
const PriceScale = 100

// ScalePrice converts a float price to its integer storage form.
func ScalePrice(v float64) int64 {
	return int64(math.RoundToEven(v * PriceScale))
}

// UnscalePrice converts an integer storage value back to a float price.
func UnscalePrice(v int64) float64 {
	return float64(v) / PriceScale
}
