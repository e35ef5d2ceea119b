package theory

// AnalyzeDow identifies swing structure, trend and break-of-structure under
// Dow theory. Returns nil for series shorter than 20 candles.
//
// Swing pivots use a strict 5-bar rule: the center bar's high (low) must
// strictly exceed (undercut) both neighbors on each side.
func AnalyzeDow(candles []Candle) *DowResult {
	if len(candles) < 20 {
		return nil
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	var swingHighs, swingLows []float64
	for i := 2; i < len(candles)-2; i++ {
		if highs[i] > highs[i-1] && highs[i] > highs[i-2] &&
			highs[i] > highs[i+1] && highs[i] > highs[i+2] {
			swingHighs = append(swingHighs, highs[i])
		}
		if lows[i] < lows[i-1] && lows[i] < lows[i-2] &&
			lows[i] < lows[i+1] && lows[i] < lows[i+2] {
			swingLows = append(swingLows, lows[i])
		}
	}

	trend := TrendNeutral
	if len(swingHighs) >= 2 && len(swingLows) >= 2 {
		hh := swingHighs[len(swingHighs)-1] > swingHighs[len(swingHighs)-2]
		hl := swingLows[len(swingLows)-1] > swingLows[len(swingLows)-2]
		lh := swingHighs[len(swingHighs)-1] < swingHighs[len(swingHighs)-2]
		ll := swingLows[len(swingLows)-1] < swingLows[len(swingLows)-2]
		switch {
		case hh && hl:
			trend = TrendBullish
		case lh && ll:
			trend = TrendBearish
		}
	}

	var bosUp, bosDown bool
	if len(swingHighs) >= 1 && len(swingLows) >= 1 {
		bosUp = highs[len(highs)-1] > swingHighs[len(swingHighs)-1]
		bosDown = lows[len(lows)-1] < swingLows[len(swingLows)-1]
	}

	volumes := Volumes(candles)
	recent := mean(volumes[len(volumes)-5:])
	avg := mean(volumes[len(volumes)-20:])
	volumeConfirmation := recent > avg*1.2

	strength := 0.5
	if volumeConfirmation {
		strength = 0.7
	}

	return &DowResult{
		Trend:              trend,
		BOSUp:              bosUp,
		BOSDown:            bosDown,
		SwingHighCount:     len(swingHighs),
		SwingLowCount:      len(swingLows),
		VolumeConfirmation: volumeConfirmation,
		TrendStrength:      strength,
	}
}
