package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// series builds a constant-increment close series starting at base.
func series(base, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + step*float64(i)
	}
	return out
}

func constant(v float64, n int) []float64 {
	return series(v, 0, n)
}

func TestCalculateRSI(t *testing.T) {
	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateRSI(series(100, 1, 14), 14))
	})

	t.Run("all gains is maximally overbought", func(t *testing.T) {
		rsi := CalculateRSI(series(100, 1, 30), 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 100.0, *rsi, 0.01)
	})

	t.Run("all losses is maximally oversold", func(t *testing.T) {
		rsi := CalculateRSI(series(100, -1, 30), 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 0.0, *rsi, 0.01)
	})
}

func TestCalculateEMA(t *testing.T) {
	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateEMA(series(100, 1, 19), 20))
	})

	t.Run("constant series", func(t *testing.T) {
		ema := CalculateEMA(constant(42, 50), 20)
		require.NotNil(t, ema)
		assert.InDelta(t, 42.0, *ema, 1e-9)
	})

	t.Run("exact window equals SMA seed", func(t *testing.T) {
		closes := series(1, 1, 20) // 1..20
		ema := CalculateEMA(closes, 20)
		require.NotNil(t, ema)
		assert.InDelta(t, 10.5, *ema, 1e-9)
	})
}

func TestCalculateSMA(t *testing.T) {
	sma := CalculateSMA(series(1, 1, 10), 5) // last 5: 6..10
	require.NotNil(t, sma)
	assert.InDelta(t, 8.0, *sma, 1e-9)

	assert.Nil(t, CalculateSMA(series(1, 1, 4), 5))
}

func TestCalculateMACD(t *testing.T) {
	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateMACD(series(100, 1, 25)))
	})

	t.Run("line without signal at minimum window", func(t *testing.T) {
		macd := CalculateMACD(series(100, 1, 26))
		require.NotNil(t, macd)
		assert.NotNil(t, macd.Line)
		assert.Nil(t, macd.Signal)
		assert.Nil(t, macd.Histogram)
	})

	t.Run("full family with warmup", func(t *testing.T) {
		macd := CalculateMACD(series(100, 1, 60))
		require.NotNil(t, macd)
		require.NotNil(t, macd.Line)
		require.NotNil(t, macd.Signal)
		require.NotNil(t, macd.Histogram)
		assert.InDelta(t, *macd.Line-*macd.Signal, *macd.Histogram, 1e-9)
		// A steadily rising series keeps the fast EMA above the slow one.
		assert.Greater(t, *macd.Line, 0.0)
	})
}

func TestCalculateBollingerBands(t *testing.T) {
	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateBollingerBands(series(100, 1, 19), 20, 2))
	})

	t.Run("constant series collapses bands", func(t *testing.T) {
		bands := CalculateBollingerBands(constant(50, 30), 20, 2)
		require.NotNil(t, bands)
		assert.InDelta(t, 50.0, bands.Upper, 1e-9)
		assert.InDelta(t, 50.0, bands.Middle, 1e-9)
		assert.InDelta(t, 50.0, bands.Lower, 1e-9)
	})

	t.Run("bands straddle the middle", func(t *testing.T) {
		bands := CalculateBollingerBands(series(100, 1, 40), 20, 2)
		require.NotNil(t, bands)
		assert.Greater(t, bands.Upper, bands.Middle)
		assert.Less(t, bands.Lower, bands.Middle)
		// Middle is the SMA(20) of the last 20 closes.
		sma := CalculateSMA(series(100, 1, 40), 20)
		assert.InDelta(t, *sma, bands.Middle, 1e-9)
	})
}

func TestCalculateStochastic(t *testing.T) {
	highs := series(101, 1, 30)
	lows := series(99, 1, 30)
	closes := series(100, 1, 30)

	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateStochastic(highs[:16], lows[:16], closes[:16], 14, 3))
	})

	t.Run("degenerate range", func(t *testing.T) {
		assert.Nil(t, CalculateStochastic(constant(50, 30), constant(50, 30), constant(50, 30), 14, 3))
	})

	t.Run("rising close sits high in range", func(t *testing.T) {
		st := CalculateStochastic(highs, lows, closes, 14, 3)
		require.NotNil(t, st)
		assert.Greater(t, st.K, 50.0)
		assert.LessOrEqual(t, st.K, 100.0)
		assert.Greater(t, st.D, 50.0)
	})
}

func TestCalculateCCI(t *testing.T) {
	highs := series(101, 1, 30)
	lows := series(99, 1, 30)
	closes := series(100, 1, 30)

	assert.Nil(t, CalculateCCI(highs[:19], lows[:19], closes[:19], 20))
	assert.Nil(t, CalculateCCI(constant(50, 30), constant(50, 30), constant(50, 30), 20))

	cci := CalculateCCI(highs, lows, closes, 20)
	require.NotNil(t, cci)
	// A uniformly trending series keeps the typical price above its SMA.
	assert.Greater(t, *cci, 0.0)
}

func TestCalculateATR(t *testing.T) {
	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateATR(series(101, 0, 14), series(99, 0, 14), series(100, 0, 14), 14))
	})

	t.Run("constant range", func(t *testing.T) {
		// High-low spread is always 2 and there are no gaps, so every
		// true range is 2 and so is the Wilder average.
		atr := CalculateATR(constant(101, 40), constant(99, 40), constant(100, 40), 14)
		require.NotNil(t, atr)
		assert.InDelta(t, 2.0, *atr, 1e-9)
	})
}

func TestCalculateADX(t *testing.T) {
	highs := series(101, 1, 60)
	lows := series(99, 1, 60)
	closes := series(100, 1, 60)

	t.Run("needs double window", func(t *testing.T) {
		assert.Nil(t, CalculateADX(highs[:27], lows[:27], closes[:27], 14))
	})

	t.Run("strong uptrend", func(t *testing.T) {
		dm := CalculateADX(highs, lows, closes, 14)
		require.NotNil(t, dm)
		assert.Greater(t, dm.DIPlus, dm.DIMinus)
		assert.Greater(t, dm.ADX, 50.0) // uninterrupted trend reads as very strong
	})
}

func TestCalculateOBV(t *testing.T) {
	assert.Nil(t, CalculateOBV([]float64{1}, []float64{100}))

	closes := []float64{10, 11, 10.5, 10.5, 12}
	volumes := []float64{1000, 200, 300, 400, 500}
	obv := CalculateOBV(closes, volumes)
	require.NotNil(t, obv)
	// +200 (up), -300 (down), +0 (flat), +500 (up) on top of the seed 1000.
	assert.InDelta(t, 1000+200-300+500, *obv, 1e-9)
}

func TestCalculateVWAP(t *testing.T) {
	highs := []float64{12, 12}
	lows := []float64{8, 8}
	closes := []float64{10, 10}
	volumes := []float64{100, 300}

	vwap := CalculateVWAP(highs, lows, closes, volumes, 2)
	require.NotNil(t, vwap)
	assert.InDelta(t, 10.0, *vwap, 1e-9)

	t.Run("zero volume window", func(t *testing.T) {
		assert.Nil(t, CalculateVWAP(highs, lows, closes, []float64{0, 0}, 2))
	})

	t.Run("insufficient window", func(t *testing.T) {
		assert.Nil(t, CalculateVWAP(highs, lows, closes, volumes, 3))
	})
}

func TestCalculateFibonacci(t *testing.T) {
	highs := series(100, 1, 20) // swing high 119
	lows := series(90, 1, 20)   // swing low 90

	fib := CalculateFibonacci(highs, lows, 20)
	require.NotNil(t, fib)
	assert.Equal(t, 119.0, fib.SwingHigh)
	assert.Equal(t, 90.0, fib.SwingLow)
	assert.InDelta(t, 119-0.236*29, fib.Level236, 1e-9)
	assert.InDelta(t, 119-0.5*29, fib.Level500, 1e-9)
	assert.InDelta(t, 119-0.786*29, fib.Level786, 1e-9)

	t.Run("zero range", func(t *testing.T) {
		assert.Nil(t, CalculateFibonacci(constant(50, 20), constant(50, 20), 20))
	})
}

func TestCalculatePivotPoints(t *testing.T) {
	pp := CalculatePivotPoints(110, 90, 100)
	require.NotNil(t, pp)
	assert.InDelta(t, 100.0, pp.Pivot, 1e-9)
	assert.InDelta(t, 110.0, pp.R1, 1e-9)
	assert.InDelta(t, 120.0, pp.R2, 1e-9)
	assert.InDelta(t, 130.0, pp.R3, 1e-9)
	assert.InDelta(t, 90.0, pp.S1, 1e-9)
	assert.InDelta(t, 80.0, pp.S2, 1e-9)
	assert.InDelta(t, 70.0, pp.S3, 1e-9)
}

func TestStats(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, StdDevPopulation(constant(5, 10)), 1e-9)
	// Population stddev of {2,4,4,4,5,5,7,9} is exactly 2.
	assert.InDelta(t, 2.0, StdDevPopulation([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.InDelta(t, 1.0, MeanAbsDev([]float64{1, 2, 3, 4}), 1e-9)
}
