// Package scorer implements the signal scoring service. It reacts to
// completed market analyses, applies macro guardrails and a weighted
// multi-factor score per symbol and direction, and emits trading
// signals that clear the confidence threshold.
package scorer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// ServiceName identifies the scorer in logs, metrics and the registry.
const ServiceName = "signal_service"

// Port is the scorer's fixed HTTP surface port.
const Port = 8003

// Group is the scorer's consumer group on market_analysis_completed.
const Group = "signal_service"

const btcSymbol = "BTCUSDT"

// Score thresholds.
const (
	minScore  = 60
	highScore = 75
)

// AnalysisReader loads the latest analysis document.
type AnalysisReader interface {
	Latest(ctx context.Context) (*store.AnalysisDocument, error)
}

// SignalWriter persists signals. Insert returns store.ErrDuplicateSignal
// when the signal_id already exists.
type SignalWriter interface {
	Insert(ctx context.Context, s *store.Signal) error
}

// Publisher emits events to the bus.
type Publisher interface {
	Publish(ctx context.Context, p events.Payload) error
}

// SafetyChecker scores the funding/open-interest/liquidity category.
// The default implementation awards the category unconditionally; a
// real verifier can be swapped in without touching the scorer.
type SafetyChecker interface {
	Check(symbol string, analyses map[string]*theory.TimeframeAnalysis) (int, []string)
}

// BasicSafetyChecker awards the full category with a note that only
// basic checks ran.
type BasicSafetyChecker struct{}

func (BasicSafetyChecker) Check(string, map[string]*theory.TimeframeAnalysis) (int, []string) {
	return 10, []string{"Safety: Basic checks passed"}
}

// Scorer consumes analysis announcements and produces signals.
type Scorer struct {
	cfg      *config.Config
	analyses AnalysisReader
	signals  SignalWriter
	bus      Publisher
	safety   SafetyChecker
	log      zerolog.Logger
}

func New(cfg *config.Config, analyses AnalysisReader, signals SignalWriter, bus Publisher, safety SafetyChecker) *Scorer {
	if safety == nil {
		safety = BasicSafetyChecker{}
	}
	return &Scorer{
		cfg:      cfg,
		analyses: analyses,
		signals:  signals,
		bus:      bus,
		safety:   safety,
		log:      config.NewServiceLogger(ServiceName),
	}
}

// HandleEvent processes one market_analysis_completed message.
func (s *Scorer) HandleEvent(ctx context.Context, _ string, _ []byte) error {
	return s.GenerateSignals(ctx)
}

// GenerateSignals evaluates every symbol of the latest analysis and
// persists plus announces each signal that clears the threshold. A
// missing analysis is logged and acked. Per-signal write failures do
// not stop the pass; a failed write emits nothing for that signal.
func (s *Scorer) GenerateSignals(ctx context.Context) error {
	start := time.Now()
	log := s.log.With().Str("correlation_id", events.CorrelationID(ctx)).Logger()

	doc, err := s.analyses.Latest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Msg("No analysis available")
		return nil
	}
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(doc.SymbolAnalyses))
	for symbol := range doc.SymbolAnalyses {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	generated := 0
	for _, symbol := range symbols {
		signal := s.Evaluate(symbol, doc)
		if signal == nil {
			continue
		}

		if err := s.signals.Insert(ctx, signal); err != nil {
			if errors.Is(err, store.ErrDuplicateSignal) {
				log.Warn().Str("signal_id", signal.SignalID).Msg("Duplicate signal dropped")
				continue
			}
			metrics.RecordError(ServiceName, "database")
			log.Error().Err(err).Str("asset", symbol).Msg("Failed to store signal")
			continue
		}
		generated++

		payload := &events.SignalGeneratedPayload{
			Timestamp:     signal.Timestamp.Format(time.RFC3339Nano),
			SignalID:      signal.SignalID,
			Asset:         signal.Asset,
			Type:          signal.Type,
			Score:         signal.Score,
			Confidence:    signal.Confidence,
			CorrelationID: events.CorrelationID(ctx),
		}
		if err := s.bus.Publish(ctx, payload); err != nil {
			log.Error().Err(err).Str("signal_id", signal.SignalID).Msg("Failed to publish signal event")
		}

		log.Info().
			Str("asset", signal.Asset).
			Str("type", signal.Type).
			Int("score", signal.Score).
			Str("confidence", signal.Confidence).
			Msg("Signal generated")
	}

	metrics.RecordProcessing(ServiceName, "generate_signals", time.Since(start).Seconds())
	log.Info().Int("symbols", len(symbols)).Int("signals", generated).Msg("Signal pass completed")
	return nil
}

// Evaluate tries LONG then SHORT for one symbol and returns the first
// direction that clears the guardrails and the score threshold, or nil.
func (s *Scorer) Evaluate(symbol string, doc *store.AnalysisDocument) *store.Signal {
	analyses := doc.SymbolAnalyses[symbol]
	if len(analyses) == 0 {
		return nil
	}
	isBTC := symbol == btcSymbol

	for _, direction := range []string{Long, Short} {
		ok, reason := checkGuardrails(doc, direction, isBTC)
		if !ok {
			s.log.Debug().Str("asset", symbol).Str("type", direction).Str("reason", reason).Msg("Direction blocked")
			continue
		}

		trendScore, trendReasons := scoreTrend(analyses, direction)
		wyckoffScore, wyckoffReasons := scoreWyckoff(analyses, direction)
		indicatorScore, indicatorReasons := scoreIndicators(analyses, direction)
		volumeScore, volumeReasons := scoreVolume(analyses, direction)
		dominanceScore, dominanceReasons := scoreDominance(doc, direction, isBTC)
		safetyScore, safetyReasons := s.safety.Check(symbol, analyses)

		total := trendScore + wyckoffScore + indicatorScore + volumeScore + dominanceScore + safetyScore
		if total < minScore {
			continue
		}

		confidence := "MEDIUM"
		if total >= highScore {
			confidence = "HIGH"
		}

		price := currentPrice(analyses)
		if price <= 0 {
			continue
		}

		signal := &store.Signal{
			SignalID:   uuid.NewString(),
			Timestamp:  time.Now().UTC(),
			Asset:      symbol,
			Type:       direction,
			Score:      total,
			Confidence: confidence,
			EntryRange: store.Range{Min: price * 0.995, Max: price * 1.005},
			Reasons: map[string][]string{
				"trend":      trendReasons,
				"wyckoff":    wyckoffReasons,
				"indicators": indicatorReasons,
				"volume":     volumeReasons,
				"dominance":  dominanceReasons,
				"safety":     safetyReasons,
			},
			TimeframeAlignment: store.TimeframeAlignment{
				Primary:   alignment(trendScore >= 10),
				Secondary: alignment(trendScore >= 20),
				Minor:     alignment(trendScore >= 25),
			},
			LiquidityNote: "Basic check passed",
			FundingNote:   "Not checked (simplified)",
		}
		if direction == Long {
			signal.TakeProfit = []float64{price * 1.02, price * 1.05}
			signal.StopLoss = price * 0.98
		} else {
			signal.TakeProfit = []float64{price * 0.98, price * 0.95}
			signal.StopLoss = price * 1.02
		}
		return signal
	}
	return nil
}

// currentPrice prefers the 4h close, falling back to 1h.
func currentPrice(analyses map[string]*theory.TimeframeAnalysis) float64 {
	if a := analyses["4h"]; a != nil && a.CurrentPrice > 0 {
		return a.CurrentPrice
	}
	if a := analyses["1h"]; a != nil {
		return a.CurrentPrice
	}
	return 0
}

func alignment(aligned bool) string {
	if aligned {
		return "aligned"
	}
	return "partial"
}
