// Package analyzer implements the multi-theory analysis service. It reacts
// to fresh market snapshots, runs every theory across all symbols and
// timeframes, interprets dominance and derives the overall market
// sentiment from BTC's analyses.
package analyzer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// ServiceName identifies the analyzer in logs, metrics and the registry.
const ServiceName = "market_analyzer"

// Port is the analyzer's fixed HTTP surface port.
const Port = 8004

// Group is the analyzer's consumer group on market_data_updated.
const Group = "market_analyzer"

// btcSymbol anchors the market-wide sentiment.
const btcSymbol = "BTCUSDT"

// SnapshotReader loads the latest market snapshot.
type SnapshotReader interface {
	Latest(ctx context.Context) (*store.MarketSnapshot, error)
}

// AnalysisWriter persists analysis documents.
type AnalysisWriter interface {
	Insert(ctx context.Context, a *store.AnalysisDocument) error
}

// Publisher emits events to the bus.
type Publisher interface {
	Publish(ctx context.Context, p events.Payload) error
}

// Analyzer consumes snapshot announcements and produces analyses.
type Analyzer struct {
	cfg       *config.Config
	snapshots SnapshotReader
	analyses  AnalysisWriter
	bus       Publisher
	log       zerolog.Logger
}

func New(cfg *config.Config, snapshots SnapshotReader, analyses AnalysisWriter, bus Publisher) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		snapshots: snapshots,
		analyses:  analyses,
		bus:       bus,
		log:       config.NewServiceLogger(ServiceName),
	}
}

// HandleEvent processes one market_data_updated message.
func (a *Analyzer) HandleEvent(ctx context.Context, _ string, _ []byte) error {
	return a.AnalyzeMarket(ctx)
}

// AnalyzeMarket loads the latest snapshot, analyzes it, persists the
// document and announces completion. A missing snapshot is logged and
// acked; analyzing nothing is not a failure worth redelivery.
func (a *Analyzer) AnalyzeMarket(ctx context.Context) error {
	start := time.Now()
	log := a.log.With().Str("correlation_id", events.CorrelationID(ctx)).Logger()

	snapshot, err := a.snapshots.Latest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Msg("No market snapshot available")
		return nil
	}
	if err != nil {
		return err
	}

	doc := a.Analyze(snapshot)

	if err := a.analyses.Insert(ctx, doc); err != nil {
		metrics.RecordError(ServiceName, "database")
		return err
	}

	symbols := make([]string, 0, len(doc.SymbolAnalyses))
	for symbol := range doc.SymbolAnalyses {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	payload := &events.MarketAnalysisCompletedPayload{
		Timestamp:       doc.Timestamp.Format(time.RFC3339Nano),
		Sentiment:       doc.Sentiment,
		TrendStrength:   doc.TrendStrength,
		SymbolsAnalyzed: symbols,
		CorrelationID:   events.CorrelationID(ctx),
	}
	if err := a.bus.Publish(ctx, payload); err != nil {
		log.Error().Err(err).Msg("Failed to publish analysis event")
	}

	metrics.RecordProcessing(ServiceName, "analyze_market", time.Since(start).Seconds())
	log.Info().
		Str("sentiment", doc.Sentiment).
		Int("trend_strength", doc.TrendStrength).
		Int("symbols", len(symbols)).
		Msg("Market analysis completed")
	return nil
}

// Analyze builds the full analysis document for one snapshot. Pure given
// the snapshot; re-running on unchanged input differs only in Timestamp.
func (a *Analyzer) Analyze(snapshot *store.MarketSnapshot) *store.AnalysisDocument {
	symbolAnalyses := make(map[string]map[string]*theory.TimeframeAnalysis)
	for symbol, intervals := range snapshot.Candlesticks {
		for interval, candles := range intervals {
			res := theory.Analyze(interval, candles)
			if res == nil {
				continue // fewer than 20 candles
			}
			if symbolAnalyses[symbol] == nil {
				symbolAnalyses[symbol] = make(map[string]*theory.TimeframeAnalysis)
			}
			symbolAnalyses[symbol][interval] = res
		}
	}

	dominance := a.interpretDominance(&snapshot.Metrics)
	sentiment, strength, details := computeSentiment(symbolAnalyses[btcSymbol], dominance.Interpretation)

	return &store.AnalysisDocument{
		Timestamp:               time.Now().UTC(),
		SourceSnapshotTimestamp: snapshot.Timestamp,
		SymbolAnalyses:          symbolAnalyses,
		DominanceAnalysis:       dominance,
		Sentiment:               sentiment,
		TrendStrength:           strength,
		SentimentDetails:        details,
	}
}

// interpretDominance maps raw dominance values to their labels. Absent
// values leave the label empty.
func (a *Analyzer) interpretDominance(m *store.MarketMetrics) store.DominanceAnalysis {
	out := store.DominanceAnalysis{
		BTCDominance:  m.BTCDominance,
		USDTDominance: m.USDTDominance,
	}
	if m.BTCDominance != nil {
		switch {
		case *m.BTCDominance > 55:
			out.Interpretation.BTCDom = store.BTCDomRising
		case *m.BTCDominance < 45:
			out.Interpretation.BTCDom = store.BTCDomFalling
		default:
			out.Interpretation.BTCDom = store.BTCDomNeutral
		}
	}
	if m.USDTDominance != nil {
		if *m.USDTDominance > a.cfg.Thresholds.USDTDominanceRisk {
			out.Interpretation.USDTDom = store.USDTDomRising
		} else {
			out.Interpretation.USDTDom = store.USDTDomStable
		}
	}
	return out
}

// computeSentiment tallies weighted evidence from BTC's per-timeframe
// analyses plus the dominance bias. Dow trend and Wyckoff phase weigh 1,
// RSI side-of-50 and MACD histogram sign weigh 0.5, dominance weighs 1.
func computeSentiment(btcAnalyses map[string]*theory.TimeframeAnalysis, interp store.DominanceInterpretation) (string, int, store.SentimentDetails) {
	var bullish, bearish, total float64

	for _, analysis := range btcAnalyses {
		if dow := analysis.Dow; dow != nil {
			switch dow.Trend {
			case theory.TrendBullish:
				bullish++
			case theory.TrendBearish:
				bearish++
			}
			total++
		}
		if wy := analysis.Wyckoff; wy != nil {
			switch wy.Phase {
			case theory.PhaseAccumulation, theory.PhaseMarkup:
				bullish++
			case theory.PhaseDistribution, theory.PhaseMarkdown:
				bearish++
			}
			total++
		}
		if rsi := analysis.Indicators.RSI; rsi != nil {
			if *rsi > 50 {
				bullish += 0.5
			} else {
				bearish += 0.5
			}
			total += 0.5
		}
		// A histogram of exactly zero carries no direction and is not
		// counted as evidence.
		if macd := analysis.Indicators.MACD; macd != nil && macd.Histogram != nil && *macd.Histogram != 0 {
			if *macd.Histogram > 0 {
				bullish += 0.5
			} else {
				bearish += 0.5
			}
			total += 0.5
		}
	}

	switch interp.BTCDom {
	case store.BTCDomFalling:
		bullish++
	case store.BTCDomRising:
		bearish++
	}
	total++

	details := store.SentimentDetails{
		BullishSignals: bullish,
		BearishSignals: bearish,
		TotalSignals:   total,
	}

	if total == 0 {
		return "neutral", 0, details
	}

	ratio := bullish / total
	sentiment := "neutral"
	switch {
	case ratio > 0.6:
		sentiment = "bullish"
	case ratio < 0.4:
		sentiment = "bearish"
	}

	strength := int(abs(ratio-0.5) * 200)
	if strength > 100 {
		strength = 100
	}
	return sentiment, strength, details
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
