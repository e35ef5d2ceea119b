package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// staleAfter marks an analysis too old to trade on. The analyzer runs
// on every five-minute ingest cycle, so half an hour means several
// missed cycles.
const staleAfter = 30 * time.Minute

// outlookTimeframes is the fixed order in which per-timeframe trends
// are reported.
var outlookTimeframes = []string{"1h", "4h", "1d", "3d", "1w"}

// outlook is the composed overall-market view.
type outlook struct {
	Bias      string // LONG, SHORT or NEUTRAL
	Summary   string
	Emoji     string
	Lines     []string // per-timeframe trend markers
	Conflicts []string
	Stale     bool
	NoData    bool
}

// composeOutlook derives the market bias from BTC's Dow trends across
// the reporting timeframes. A majority of three fifths sets a strong
// bias, a plurality a mild one.
func composeOutlook(doc *store.AnalysisDocument, symbol string, now time.Time) outlook {
	if doc == nil {
		return outlook{Bias: "NEUTRAL", Summary: "No analysis data available", NoData: true}
	}

	analyses := doc.SymbolAnalyses[symbol]
	if len(analyses) == 0 {
		return outlook{Bias: "NEUTRAL", Summary: "No analysis data available", NoData: true}
	}

	var bullish, bearish, total int
	trends := make(map[string]theory.Trend)
	for _, tf := range outlookTimeframes {
		analysis := analyses[tf]
		if analysis == nil || analysis.Dow == nil {
			continue
		}
		trends[tf] = analysis.Dow.Trend
		total++
		switch analysis.Dow.Trend {
		case theory.TrendBullish:
			bullish++
		case theory.TrendBearish:
			bearish++
		}
	}
	if total == 0 {
		return outlook{Bias: "NEUTRAL", Summary: "No analysis data available", NoData: true}
	}

	out := outlook{Stale: now.Sub(doc.Timestamp) > staleAfter}

	bullishRatio := float64(bullish) / float64(total)
	bearishRatio := float64(bearish) / float64(total)
	switch {
	case bullishRatio >= 0.6:
		out.Bias, out.Summary, out.Emoji = "LONG", "Strong uptrend", "🟢"
	case bearishRatio >= 0.6:
		out.Bias, out.Summary, out.Emoji = "SHORT", "Strong downtrend", "🔴"
	case bullish > bearish:
		out.Bias, out.Summary, out.Emoji = "LONG", "Mild uptrend", "🟡"
	case bearish > bullish:
		out.Bias, out.Summary, out.Emoji = "SHORT", "Mild downtrend", "🟡"
	default:
		out.Bias, out.Summary, out.Emoji = "NEUTRAL", "Sideways market", "⚪"
	}

	for _, tf := range outlookTimeframes {
		trend, ok := trends[tf]
		if !ok {
			continue
		}
		out.Lines = append(out.Lines, fmt.Sprintf("%s:%s", tf, trendMarker(trend)))
		if (out.Bias == "LONG" && trend == theory.TrendBearish) ||
			(out.Bias == "SHORT" && trend == theory.TrendBullish) {
			out.Conflicts = append(out.Conflicts, fmt.Sprintf("%s %s against bias", tf, trend))
		}
	}
	return out
}

// formatOutlookMessage renders the standalone five-minute outlook post.
func formatOutlookMessage(doc *store.AnalysisDocument, symbol string, now time.Time) string {
	o := composeOutlook(doc, symbol, now)

	var b strings.Builder
	b.WriteString("📊 <b>MARKET OUTLOOK</b>\n\n")

	if o.NoData {
		b.WriteString("⚪ No analysis data available\n")
		return b.String()
	}
	if o.Stale {
		fmt.Fprintf(&b, "⚠️ Analysis is stale (last run %s)\n\n", doc.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(&b, "%s %s (%s)\n", o.Emoji, o.Summary, strings.Join(o.Lines, ", "))
	fmt.Fprintf(&b, "<b>Bias:</b> %s %s\n", biasMarker(o.Bias), o.Bias)
	fmt.Fprintf(&b, "<b>Sentiment:</b> %s (strength %d/100)\n", doc.Sentiment, doc.TrendStrength)

	if v := doc.DominanceAnalysis.BTCDominance; v != nil {
		fmt.Fprintf(&b, "<b>BTC.D:</b> %.2f%%\n", *v)
	}
	if v := doc.DominanceAnalysis.USDTDominance; v != nil {
		fmt.Fprintf(&b, "<b>USDT.D:</b> %.2f%%\n", *v)
	}
	if len(o.Conflicts) > 0 {
		fmt.Fprintf(&b, "<b>Conflicts:</b> %s\n", strings.Join(o.Conflicts, "; "))
	}
	return b.String()
}

func trendMarker(t theory.Trend) string {
	switch t {
	case theory.TrendBullish:
		return "🟢"
	case theory.TrendBearish:
		return "🔴"
	default:
		return "⚪"
	}
}

func biasMarker(bias string) string {
	switch bias {
	case "LONG":
		return "📈"
	case "SHORT":
		return "📉"
	default:
		return "➡️"
	}
}
