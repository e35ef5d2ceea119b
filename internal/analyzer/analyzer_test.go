package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

type fakeSnapshots struct {
	snapshot *store.MarketSnapshot
	err      error
}

func (f *fakeSnapshots) Latest(context.Context) (*store.MarketSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

type captureAnalyses struct {
	docs []*store.AnalysisDocument
	err  error
}

func (c *captureAnalyses) Insert(_ context.Context, a *store.AnalysisDocument) error {
	if c.err != nil {
		return c.err
	}
	c.docs = append(c.docs, a)
	return nil
}

type captureBus struct {
	published []events.Payload
}

func (c *captureBus) Publish(_ context.Context, p events.Payload) error {
	c.published = append(c.published, p)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func trendingCandles(n int, up bool) []theory.Candle {
	out := make([]theory.Candle, n)
	price := 100.0
	for i := range out {
		if up {
			price *= 1.005
		} else {
			price *= 0.995
		}
		out[i] = theory.Candle{Open: price, High: price * 1.01, Low: price * 0.99, Close: price, Volume: 100}
	}
	return out
}

func f64(v float64) *float64 { return &v }

func sampleSnapshot() *store.MarketSnapshot {
	return &store.MarketSnapshot{
		ID:        "market_1",
		Timestamp: time.Now().UTC(),
		Prices:    map[string]float64{"BTCUSDT": 65000},
		Candlesticks: map[string]map[string][]theory.Candle{
			"BTCUSDT": {
				"4h": trendingCandles(60, true),
				"1h": trendingCandles(10, true), // too short, skipped
			},
			"ETHUSDT": {
				"4h": trendingCandles(60, false),
			},
		},
		Metrics: store.MarketMetrics{
			BTCDominance:  f64(56.0),
			USDTDominance: f64(4.2),
		},
	}
}

func TestAnalyzeSkipsShortSeries(t *testing.T) {
	a := New(testConfig(t), nil, nil, nil)
	doc := a.Analyze(sampleSnapshot())

	require.Contains(t, doc.SymbolAnalyses, "BTCUSDT")
	assert.Contains(t, doc.SymbolAnalyses["BTCUSDT"], "4h")
	assert.NotContains(t, doc.SymbolAnalyses["BTCUSDT"], "1h")
	assert.Contains(t, doc.SymbolAnalyses, "ETHUSDT")
}

func TestAnalyzeIsDeterministicModuloTimestamp(t *testing.T) {
	a := New(testConfig(t), nil, nil, nil)
	snap := sampleSnapshot()

	first := a.Analyze(snap)
	second := a.Analyze(snap)

	second.Timestamp = first.Timestamp
	assert.Equal(t, first, second)
}

func TestInterpretDominance(t *testing.T) {
	a := New(testConfig(t), nil, nil, nil)

	tests := []struct {
		name     string
		btc      *float64
		usdt     *float64
		wantBTC  string
		wantUSDT string
	}{
		{"btc rising", f64(56), f64(4), store.BTCDomRising, store.USDTDomStable},
		{"btc falling", f64(44), f64(4), store.BTCDomFalling, store.USDTDomStable},
		{"btc neutral", f64(50), f64(4), store.BTCDomNeutral, store.USDTDomStable},
		{"usdt risk off", f64(50), f64(5.5), store.BTCDomNeutral, store.USDTDomRising},
		{"absent values", nil, nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.interpretDominance(&store.MarketMetrics{
				BTCDominance: tt.btc, USDTDominance: tt.usdt,
			})
			assert.Equal(t, tt.wantBTC, got.Interpretation.BTCDom)
			assert.Equal(t, tt.wantUSDT, got.Interpretation.USDTDom)
		})
	}
}

func TestInterpretDominanceThresholdIsConfigurable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds.USDTDominanceRisk = 8.0
	a := New(cfg, nil, nil, nil)

	got := a.interpretDominance(&store.MarketMetrics{USDTDominance: f64(6.0)})
	assert.Equal(t, store.USDTDomStable, got.Interpretation.USDTDom)

	got = a.interpretDominance(&store.MarketMetrics{USDTDominance: f64(9.0)})
	assert.Equal(t, store.USDTDomRising, got.Interpretation.USDTDom)
}

func TestComputeSentimentBullish(t *testing.T) {
	analyses := map[string]*theory.TimeframeAnalysis{
		"4h": {
			Dow:     &theory.DowResult{Trend: theory.TrendBullish},
			Wyckoff: &theory.WyckoffResult{Phase: theory.PhaseMarkup},
			Indicators: theory.IndicatorSet{
				RSI:  f64(62),
				MACD: &theory.MACDResult{Line: 1, Histogram: f64(0.5)},
			},
		},
	}
	sentiment, strength, details := computeSentiment(analyses, store.DominanceInterpretation{
		BTCDom: store.BTCDomFalling,
	})

	// Evidence: dow 1 + wyckoff 1 + rsi 0.5 + macd 0.5 + dominance 1,
	// all bullish.
	assert.Equal(t, "bullish", sentiment)
	assert.Equal(t, 100, strength)
	assert.Equal(t, 4.0, details.TotalSignals)
	assert.Equal(t, 4.0, details.BullishSignals)
}

func TestComputeSentimentNeutralWithoutEvidence(t *testing.T) {
	sentiment, strength, details := computeSentiment(nil, store.DominanceInterpretation{})
	assert.Equal(t, "neutral", sentiment)
	assert.Equal(t, 0, strength)
	assert.Equal(t, 1.0, details.TotalSignals, "dominance always counts as evidence")
}

func TestComputeSentimentZeroHistogramIsNotEvidence(t *testing.T) {
	analyses := map[string]*theory.TimeframeAnalysis{
		"4h": {
			Indicators: theory.IndicatorSet{
				MACD: &theory.MACDResult{Line: 0, Histogram: f64(0)},
			},
		},
	}
	_, _, details := computeSentiment(analyses, store.DominanceInterpretation{})

	assert.Equal(t, 1.0, details.TotalSignals, "only dominance counts; a flat histogram adds nothing")
	assert.Zero(t, details.BearishSignals)
}

func TestComputeSentimentBearish(t *testing.T) {
	analyses := map[string]*theory.TimeframeAnalysis{
		"4h": {
			Dow:     &theory.DowResult{Trend: theory.TrendBearish},
			Wyckoff: &theory.WyckoffResult{Phase: theory.PhaseMarkdown},
			Indicators: theory.IndicatorSet{
				RSI:  f64(35),
				MACD: &theory.MACDResult{Line: -1, Histogram: f64(-0.5)},
			},
		},
	}
	sentiment, _, _ := computeSentiment(analyses, store.DominanceInterpretation{
		BTCDom: store.BTCDomRising,
	})
	assert.Equal(t, "bearish", sentiment)
}

func TestAnalyzeMarketPersistsAndPublishes(t *testing.T) {
	cfg := testConfig(t)
	snaps := &fakeSnapshots{snapshot: sampleSnapshot()}
	analyses := &captureAnalyses{}
	bus := &captureBus{}

	a := New(cfg, snaps, analyses, bus)
	ctx := events.WithCorrelationID(context.Background(), "corr-42")
	require.NoError(t, a.AnalyzeMarket(ctx))

	require.Len(t, analyses.docs, 1)
	require.Len(t, bus.published, 1)

	payload := bus.published[0].(*events.MarketAnalysisCompletedPayload)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, payload.SymbolsAnalyzed)
	assert.Equal(t, "corr-42", payload.CorrelationID)
	assert.Contains(t, []string{"bullish", "bearish", "neutral"}, payload.Sentiment)
}

func TestAnalyzeMarketNoSnapshotIsNotAnError(t *testing.T) {
	a := New(testConfig(t), &fakeSnapshots{err: store.ErrNotFound}, &captureAnalyses{}, &captureBus{})
	assert.NoError(t, a.AnalyzeMarket(context.Background()))
}

func TestAnalyzeMarketDatabaseFailureSuppressesEvent(t *testing.T) {
	bus := &captureBus{}
	a := New(testConfig(t),
		&fakeSnapshots{snapshot: sampleSnapshot()},
		&captureAnalyses{err: errors.New("write failed")},
		bus)

	require.Error(t, a.AnalyzeMarket(context.Background()))
	assert.Empty(t, bus.published)
}
