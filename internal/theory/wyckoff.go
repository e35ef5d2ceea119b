package theory

// AnalyzeWyckoff classifies the series into a Wyckoff phase and detects
// Spring, Upthrust, SOS and SOW events. Returns nil for series shorter
// than 50 candles.
func AnalyzeWyckoff(candles []Candle) *WyckoffResult {
	if len(candles) < 50 {
		return nil
	}

	n := len(candles)
	prices := Closes(candles)
	volumes := Volumes(candles)

	recentHigh := candles[n-20].High
	recentLow := candles[n-20].Low
	for _, c := range candles[n-20:] {
		if c.High > recentHigh {
			recentHigh = c.High
		}
		if c.Low < recentLow {
			recentLow = c.Low
		}
	}

	current := prices[n-1]
	pricePosition := 0.5
	if priceRange := recentHigh - recentLow; priceRange > 0 {
		pricePosition = (current - recentLow) / priceRange
		if pricePosition < 0 {
			pricePosition = 0
		} else if pricePosition > 1 {
			pricePosition = 1
		}
	}

	volumeRatio := 1.0
	if avg := mean(volumes[n-20:]); avg > 0 {
		volumeRatio = mean(volumes[n-5:]) / avg
	}

	shortMA := mean(prices[n-10:])
	longMA := mean(prices[n-30:])

	priorLow := candles[n-2].Low
	priorHigh := candles[n-2].High
	spring := pricePosition < 0.3 && candles[n-1].Low < priorLow && current > priorLow
	upthrust := pricePosition > 0.7 && candles[n-1].High > priorHigh && current < priorHigh

	barReturn := (prices[n-1] - prices[n-2]) / prices[n-2]
	sos := barReturn > 0.02 && volumeRatio > 1.3
	sow := barReturn < -0.02 && volumeRatio > 1.3

	closeRising := prices[n-1] > prices[n-5]
	closeFalling := prices[n-1] < prices[n-5]

	phase := PhaseNone
	switch {
	case pricePosition < 0.3 && shortMA < longMA:
		if spring || (volumeRatio > 1.2 && closeRising) {
			phase = PhaseAccumulation
		}
	case pricePosition >= 0.3 && shortMA > longMA && volumeRatio > 1.1:
		phase = PhaseMarkup
	case pricePosition > 0.7 && shortMA > longMA:
		if upthrust || (volumeRatio < 0.9 && closeFalling) {
			phase = PhaseDistribution
		}
	case pricePosition <= 0.7 && shortMA < longMA && volumeRatio > 1.1:
		phase = PhaseMarkdown
	}

	strength := 0.3
	switch {
	case sos || spring:
		strength = 0.8
	case phase != PhaseNone:
		strength = 0.6
	}

	return &WyckoffResult{
		Phase:         phase,
		Spring:        spring,
		Upthrust:      upthrust,
		SOS:           sos,
		SOW:           sow,
		PricePosition: pricePosition,
		VolumeRatio:   volumeRatio,
		Strength:      strength,
	}
}
