package theory

import "math"

// AnalyzeGann fits the 1x1 angle over the last 50 bars and reports the
// deviation of the current price from it. Returns nil when no bars precede
// the 50-bar window, when the range is flat, or when the time offset from
// the significant low is not positive.
func AnalyzeGann(candles []Candle) *GannResult {
	if len(candles) < 50 {
		return nil
	}

	n := len(candles)
	window := candles[n-50:]

	highIdx, lowIdx := 0, 0
	for i, c := range window {
		if c.High > window[highIdx].High {
			highIdx = i
		}
		if c.Low < window[lowIdx].Low {
			lowIdx = i
		}
	}
	pivotHigh := window[highIdx].High
	pivotLow := window[lowIdx].Low

	priceRange := pivotHigh - pivotLow
	if priceRange == 0 {
		return nil
	}

	// Time axis counts bars before the 50-bar window, offset by where the
	// significant low sits inside it.
	timeRange := n - 50
	if timeRange <= 0 {
		return nil
	}
	slope := priceRange / float64(timeRange)

	timeFromLow := n - 50 - lowIdx
	if timeFromLow <= 0 {
		return nil
	}

	current := candles[n-1].Close
	expected := pivotLow + float64(timeFromLow)*slope
	deviation := math.Abs(current-expected) / priceRange

	reversalWindow := false
	if deviation > 0.1 {
		ret3 := (candles[n-1].Close - candles[n-3].Close) / candles[n-3].Close
		if math.Abs(ret3) < 0.01 {
			reversalWindow = true
		}
	}

	return &GannResult{
		Slope:          slope,
		Deviation:      deviation,
		ReversalWindow: reversalWindow,
		PivotHigh:      pivotHigh,
		PivotLow:       pivotLow,
	}
}
