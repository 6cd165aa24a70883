package formulas

import (
	"github.com/markcheno/go-talib"
)

// MACD holds the MACD line, its signal line, and the histogram.
// Signal and Histogram are nil until the 9-period signal EMA has warmed up
// on top of the 26-period slow EMA.
type MACD struct {
	Line      *float64
	Signal    *float64
	Histogram *float64
}

// CalculateMACD calculates Moving Average Convergence Divergence.
//
//	MACD line = EMA(12) - EMA(26)
//	Signal    = EMA(9) of the MACD line
//	Histogram = MACD line - Signal
//
// Returns nil when fewer than 26 closes are available.
func CalculateMACD(closes []float64) *MACD {
	if len(closes) < 26 {
		return nil
	}

	line, signal, hist := talib.Macd(closes, 12, 26, 9)

	out := &MACD{Line: lastValid(line)}
	if out.Line == nil {
		return nil
	}

	// talib emits zeros during the signal warmup window; only trust the
	// signal once enough bars exist for the full 26+9-1 lookback.
	if len(closes) >= 34 {
		out.Signal = lastValid(signal)
		out.Histogram = lastValid(hist)
	}

	return out
}
