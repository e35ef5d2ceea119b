package scorer

import (
	"fmt"

	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// Signal directions.
const (
	Long  = "LONG"
	Short = "SHORT"
)

// Timeframe buckets for the trend category.
var (
	primaryTimeframes   = []string{"1d", "3d", "1w"}
	secondaryTimeframes = []string{"4h", "8h"}
	minorTimeframe      = "1h"
)

// checkGuardrails returns false with a reason when a direction is
// categorically blocked by the macro regime.
func checkGuardrails(doc *store.AnalysisDocument, direction string, isBTC bool) (bool, string) {
	interp := doc.DominanceAnalysis.Interpretation
	if direction == Long && interp.USDTDom == store.USDTDomRising {
		return false, "LONG blocked: USDT.D rising (risk-off)"
	}
	if direction == Long && !isBTC && interp.BTCDom == store.BTCDomRising {
		return false, "ALT LONG blocked: BTC.D rising"
	}
	return true, ""
}

// scoreTrend awards up to 30 points for multi-timeframe Dow alignment:
// primary (1d,3d,1w)=15, secondary (4h,8h)=10, minor (1h)=5. Secondary
// counts neutral as agreement; minor also accepts a break of structure
// in the signal's direction.
func scoreTrend(analyses map[string]*theory.TimeframeAnalysis, direction string) (int, []string) {
	score := 0
	var reasons []string

	primaryMatches := 0
	for _, tf := range primaryTimeframes {
		dow := dowFor(analyses, tf)
		if dow == nil {
			continue
		}
		if (direction == Long && dow.Trend == theory.TrendBullish) ||
			(direction == Short && dow.Trend == theory.TrendBearish) {
			primaryMatches++
		}
	}
	if primaryScore := 15 * primaryMatches / len(primaryTimeframes); primaryScore > 0 {
		score += primaryScore
		reasons = append(reasons, fmt.Sprintf("Primary trend alignment: %d/%d", primaryMatches, len(primaryTimeframes)))
	}

	secondaryMatches := 0
	for _, tf := range secondaryTimeframes {
		dow := dowFor(analyses, tf)
		if dow == nil {
			continue
		}
		if (direction == Long && (dow.Trend == theory.TrendBullish || dow.Trend == theory.TrendNeutral)) ||
			(direction == Short && (dow.Trend == theory.TrendBearish || dow.Trend == theory.TrendNeutral)) {
			secondaryMatches++
		}
	}
	if secondaryScore := 10 * secondaryMatches / len(secondaryTimeframes); secondaryScore > 0 {
		score += secondaryScore
		reasons = append(reasons, fmt.Sprintf("Secondary trend alignment: %d/%d", secondaryMatches, len(secondaryTimeframes)))
	}

	if dow := dowFor(analyses, minorTimeframe); dow != nil {
		matched := (direction == Long && (dow.Trend == theory.TrendBullish || dow.BOSUp)) ||
			(direction == Short && (dow.Trend == theory.TrendBearish || dow.BOSDown))
		if matched {
			score += 5
			reasons = append(reasons, fmt.Sprintf("Minor trend/BOS: %s", dow.Trend))
		}
	}

	return score, reasons
}

// scoreWyckoff awards 15 points when the 4h structure confirms the
// direction: accumulation/markup, SOS or spring for LONG; the mirrored
// set for SHORT.
func scoreWyckoff(analyses map[string]*theory.TimeframeAnalysis, direction string) (int, []string) {
	analysis := analyses["4h"]
	if analysis == nil || analysis.Wyckoff == nil {
		return 0, nil
	}
	wy := analysis.Wyckoff

	if direction == Long {
		if wy.Phase == theory.PhaseAccumulation || wy.Phase == theory.PhaseMarkup || wy.SOS || wy.Spring {
			switch {
			case wy.SOS:
				return 15, []string{"Wyckoff: SOS detected"}
			case wy.Spring:
				return 15, []string{"Wyckoff: Spring detected"}
			default:
				return 15, []string{fmt.Sprintf("Wyckoff: %s phase", wy.Phase)}
			}
		}
		return 0, nil
	}

	if wy.Phase == theory.PhaseDistribution || wy.Phase == theory.PhaseMarkdown || wy.SOW || wy.Upthrust {
		switch {
		case wy.SOW:
			return 15, []string{"Wyckoff: SOW detected"}
		case wy.Upthrust:
			return 15, []string{"Wyckoff: Upthrust detected"}
		default:
			return 15, []string{fmt.Sprintf("Wyckoff: %s phase", wy.Phase)}
		}
	}
	return 0, nil
}

// scoreIndicators awards up to 20 points on the 4h indicators: RSI 7
// (full beyond 55/45, otherwise 4), MACD histogram sign 7, EMA
// alignment 6.
func scoreIndicators(analyses map[string]*theory.TimeframeAnalysis, direction string) (int, []string) {
	analysis := analyses["4h"]
	if analysis == nil {
		return 0, nil
	}
	score := 0
	var reasons []string
	ind := analysis.Indicators

	if ind.RSI != nil {
		rsi := *ind.RSI
		if direction == Long && rsi > 50 {
			if rsi > 55 {
				score += 7
			} else {
				score += 4
			}
			reasons = append(reasons, fmt.Sprintf("RSI: %.1f (>50)", rsi))
		} else if direction == Short && rsi < 50 {
			if rsi < 45 {
				score += 7
			} else {
				score += 4
			}
			reasons = append(reasons, fmt.Sprintf("RSI: %.1f (<50)", rsi))
		}
	}

	if ind.MACD != nil && ind.MACD.Histogram != nil {
		hist := *ind.MACD.Histogram
		if direction == Long && hist > 0 {
			score += 7
			reasons = append(reasons, "MACD: Bullish crossover")
		} else if direction == Short && hist < 0 {
			score += 7
			reasons = append(reasons, "MACD: Bearish crossover")
		}
	}

	if ind.EMA20 != nil && ind.EMA50 != nil && analysis.CurrentPrice > 0 {
		price := analysis.CurrentPrice
		if direction == Long && price > *ind.EMA20 && *ind.EMA20 > *ind.EMA50 {
			score += 6
			reasons = append(reasons, "EMA: Bullish alignment")
		} else if direction == Short && price < *ind.EMA20 && *ind.EMA20 < *ind.EMA50 {
			score += 6
			reasons = append(reasons, "EMA: Bearish alignment")
		}
	}

	return score, reasons
}

// scoreVolume awards 10 points for a 4h volume spike.
func scoreVolume(analyses map[string]*theory.TimeframeAnalysis, _ string) (int, []string) {
	analysis := analyses["4h"]
	if analysis == nil || !analysis.Indicators.VolumeSpike {
		return 0, nil
	}
	return 10, []string{"Volume: Spike detected"}
}

// scoreDominance awards up to 15 points from the macro regime. The
// split differs for BTC and altcoins: alt longs lean entirely on a
// falling BTC dominance, alt shorts are paid for both dominances
// rising.
func scoreDominance(doc *store.AnalysisDocument, direction string, isBTC bool) (int, []string) {
	interp := doc.DominanceAnalysis.Interpretation
	score := 0
	var reasons []string

	if isBTC {
		if direction == Long {
			if interp.BTCDom == store.BTCDomFalling {
				score += 5
				reasons = append(reasons, "BTC.D: Falling (positive)")
			}
			if interp.USDTDom == store.USDTDomStable {
				score += 5
				reasons = append(reasons, "USDT.D: Stable/falling")
			}
		} else {
			if interp.BTCDom == store.BTCDomRising {
				score += 5
				reasons = append(reasons, "BTC.D: Rising (positive)")
			}
			if interp.USDTDom == store.USDTDomRising {
				score += 5
				reasons = append(reasons, "USDT.D: Rising (risk-off)")
			}
		}
		return score, reasons
	}

	if direction == Long {
		if interp.BTCDom == store.BTCDomFalling {
			score += 10
			reasons = append(reasons, "BTC.D: Falling (REQUIRED for ALT long)")
		}
		if interp.USDTDom != store.USDTDomRising {
			score += 5
			reasons = append(reasons, "USDT.D: Not rising")
		}
	} else {
		if interp.BTCDom == store.BTCDomRising {
			score += 8
			reasons = append(reasons, "BTC.D: Rising (strong short support)")
		}
		if interp.USDTDom == store.USDTDomRising {
			score += 7
			reasons = append(reasons, "USDT.D: Rising (strong short support)")
		}
	}
	return score, reasons
}

func dowFor(analyses map[string]*theory.TimeframeAnalysis, tf string) *theory.DowResult {
	analysis := analyses[tf]
	if analysis == nil {
		return nil
	}
	return analysis.Dow
}
