// Package indicators computes the per-ticker technical indicator vector
// from a daily price series.
package indicators

import (
	"fmt"
	"math"

	"github.com/aristath/nightshift/internal/domain"
	"github.com/aristath/nightshift/pkg/formulas"
)

// Compute derives the indicator set for the latest bar of an ascending
// series. Pure: no I/O. Each field is nil when its lookback window is not
// satisfied or its denominator degenerates, so the result is a partial map
// the store can write without erasing anything.
//
// Duplicate dates, NaN prices, and negative volumes are invariant
// violations the caller must fix upstream; they return an error.
func Compute(bars []domain.DailyBar) (domain.IndicatorSet, error) {
	var set domain.IndicatorSet

	if err := validateSeries(bars); err != nil {
		return set, err
	}
	if len(bars) == 0 {
		return set, nil
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		highs[i] = bar.High
		lows[i] = bar.Low
		volumes[i] = float64(bar.Volume)
	}

	set.RSI14 = formulas.CalculateRSI(closes, 14)

	set.EMA20 = formulas.CalculateEMA(closes, 20)
	set.EMA50 = formulas.CalculateEMA(closes, 50)
	set.EMA100 = formulas.CalculateEMA(closes, 100)
	set.EMA200 = formulas.CalculateEMA(closes, 200)
	set.SMA20 = formulas.CalculateSMA(closes, 20)
	set.SMA50 = formulas.CalculateSMA(closes, 50)
	set.SMA200 = formulas.CalculateSMA(closes, 200)

	if macd := formulas.CalculateMACD(closes); macd != nil {
		set.MACD = macd.Line
		set.MACDSignal = macd.Signal
		set.MACDHistogram = macd.Histogram
	}

	if bands := formulas.CalculateBollingerBands(closes, 20, 2); bands != nil {
		set.BollingerUpper = &bands.Upper
		set.BollingerMiddle = &bands.Middle
		set.BollingerLower = &bands.Lower
	}

	if stoch := formulas.CalculateStochastic(highs, lows, closes, 14, 3); stoch != nil {
		set.StochasticK = &stoch.K
		set.StochasticD = &stoch.D
	}

	set.CCI20 = formulas.CalculateCCI(highs, lows, closes, 20)
	set.ATR14 = formulas.CalculateATR(highs, lows, closes, 14)

	if dm := formulas.CalculateADX(highs, lows, closes, 14); dm != nil {
		set.ADX14 = &dm.ADX
		set.DIPlus = &dm.DIPlus
		set.DIMinus = &dm.DIMinus
	}

	set.VWAP20 = formulas.CalculateVWAP(highs, lows, closes, volumes, 20)
	set.OBV = formulas.CalculateOBV(closes, volumes)
	set.VolumeSMA20 = formulas.CalculateSMA(volumes, 20)

	if fib := formulas.CalculateFibonacci(highs, lows, 20); fib != nil {
		set.Fib236 = &fib.Level236
		set.Fib382 = &fib.Level382
		set.Fib500 = &fib.Level500
		set.Fib618 = &fib.Level618
		set.Fib786 = &fib.Level786
		set.SwingHigh = &fib.SwingHigh
		set.SwingLow = &fib.SwingLow
	}

	// Pivots come from the prior day's range; today's bar is the latest.
	if len(bars) >= 2 {
		prev := bars[len(bars)-2]
		if pp := formulas.CalculatePivotPoints(prev.High, prev.Low, prev.Close); pp != nil {
			set.PivotPoint = &pp.Pivot
			set.Resistance1 = &pp.R1
			set.Resistance2 = &pp.R2
			set.Resistance3 = &pp.R3
			set.Support1 = &pp.S1
			set.Support2 = &pp.S2
			set.Support3 = &pp.S3
		}
	}

	return set, nil
}

func validateSeries(bars []domain.DailyBar) error {
	for i, bar := range bars {
		for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: NaN price at %s", domain.ErrDataInvalid, bar.Date.Format("2006-01-02"))
			}
		}
		if bar.Volume < 0 {
			return fmt.Errorf("%w: negative volume at %s", domain.ErrDataInvalid, bar.Date.Format("2006-01-02"))
		}
		if i > 0 {
			prev := bars[i-1]
			if !bar.Date.After(prev.Date) {
				return fmt.Errorf("%w: series not strictly ascending at %s", domain.ErrDataInvalid, bar.Date.Format("2006-01-02"))
			}
		}
	}
	return nil
}
