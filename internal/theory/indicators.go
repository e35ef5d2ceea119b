package theory

import "math"

// EMA returns the exponential moving average of the full series with
// smoothing 2/(period+1), seeded at the first value. For series shorter
// than the period it degrades to the simple mean.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return mean(prices)
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = alpha*p + (1-alpha)*ema
	}
	return ema
}

// RSI returns the relative strength index over the given period. The second
// return is false when fewer than period+1 closes are available. A zero
// average loss yields exactly 100.
func RSI(prices []float64, period int) (float64, bool) {
	if len(prices) < period+1 {
		return 0, false
	}

	deltas := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		deltas[i-1] = prices[i] - prices[i-1]
	}

	var gainSum, lossSum float64
	for _, d := range deltas[len(deltas)-period:] {
		if d > 0 {
			gainSum += d
		} else {
			lossSum -= d
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD returns the MACD line plus, when at least slow+signal closes exist,
// the signal line and histogram. A nil result means fewer than slow closes.
func MACD(prices []float64, fast, slow, signal int) *MACDResult {
	if len(prices) < slow {
		return nil
	}

	line := EMA(prices, fast) - EMA(prices, slow)
	out := &MACDResult{Line: line}

	if len(prices) < slow+signal {
		return out
	}

	// Signal line is the EMA of MACD values computed bar by bar.
	series := make([]float64, 0, len(prices)-slow)
	for i := slow; i < len(prices); i++ {
		series = append(series, EMA(prices[:i+1], fast)-EMA(prices[:i+1], slow))
	}
	if len(series) < signal {
		return out
	}
	sig := EMA(series, signal)
	out.Signal = ptr(sig)
	out.Histogram = ptr(line - sig)
	return out
}

// Bollinger returns the upper, middle and lower bands (mean ± k·σ over the
// trailing window). The last return is false when the series is shorter
// than the window.
func Bollinger(prices []float64, period int, k float64) (upper, middle, lower float64, ok bool) {
	if len(prices) < period {
		return 0, 0, 0, false
	}
	window := prices[len(prices)-period:]
	middle = mean(window)
	sd := stddev(window, middle)
	return middle + k*sd, middle, middle - k*sd, true
}

// VolumeSpike reports whether the latest volume exceeds 1.5 times the
// average over the whole series.
func VolumeSpike(volumes []float64) bool {
	if len(volumes) == 0 {
		return false
	}
	current := volumes[len(volumes)-1]
	avg := mean(volumes)
	if current == 0 || avg == 0 {
		return false
	}
	return current/avg > 1.5
}

// AnnualizedVolatility computes the standard deviation of successive daily
// returns scaled by √252, as a percentage. The second return is false when
// fewer than two closes are available.
func AnnualizedVolatility(dailyCloses []float64) (float64, bool) {
	if len(dailyCloses) < 2 {
		return 0, false
	}
	returns := make([]float64, 0, len(dailyCloses)-1)
	for i := 1; i < len(dailyCloses); i++ {
		if dailyCloses[i-1] == 0 {
			continue
		}
		returns = append(returns, dailyCloses[i]/dailyCloses[i-1]-1)
	}
	if len(returns) == 0 {
		return 0, false
	}
	sd := stddev(returns, mean(returns))
	return sd * math.Sqrt(252) * 100, true
}

// Indicators assembles the indicator set for one series of candles. EMA
// values are reported only when the series covers the full period.
func Indicators(candles []Candle) IndicatorSet {
	prices := Closes(candles)
	volumes := Volumes(candles)

	var set IndicatorSet
	if len(prices) >= 20 {
		set.EMA20 = ptr(EMA(prices, 20))
	}
	if len(prices) >= 50 {
		set.EMA50 = ptr(EMA(prices, 50))
	}
	if len(prices) >= 200 {
		set.EMA200 = ptr(EMA(prices, 200))
	}
	if v, ok := RSI(prices, 14); ok {
		set.RSI = ptr(v)
	}
	set.MACD = MACD(prices, 12, 26, 9)
	set.VolumeSpike = VolumeSpike(volumes)
	return set
}

// Analyze runs every theory over one series of candles. Intervals with
// fewer than 20 candles produce no analysis.
func Analyze(interval string, candles []Candle) *TimeframeAnalysis {
	if len(candles) < 20 {
		return nil
	}
	return &TimeframeAnalysis{
		Interval:     interval,
		Dow:          AnalyzeDow(candles),
		Wyckoff:      AnalyzeWyckoff(candles),
		Gann:         AnalyzeGann(candles),
		Indicators:   Indicators(candles),
		CurrentPrice: candles[len(candles)-1].Close,
	}
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, mu float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
