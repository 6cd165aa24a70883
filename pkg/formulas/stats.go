package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDevPopulation calculates the population standard deviation
// (divide by N, not N-1). Bollinger bands and CCI use this form.
func StdDevPopulation(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := stat.Mean(data, nil)
	var sum float64
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// MeanAbsDev calculates the mean absolute deviation around the mean
func MeanAbsDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := stat.Mean(data, nil)
	var sum float64
	for _, v := range data {
		sum += math.Abs(v - mean)
	}
	return sum / float64(len(data))
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}

// lastValid returns a pointer to the last element of a talib output series,
// or nil when the series is empty or ends in NaN/Inf (insufficient warmup or
// a degenerate input).
func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if isNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
