package store

import (
	"fmt"
	"time"

	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// MarketMetrics carries the macro metrics of one ingest cycle. Every field
// is independently nullable; a failed provider call leaves its field nil.
type MarketMetrics struct {
	BTCDominance    *float64 `bson:"btc_dominance,omitempty" json:"btc_dominance,omitempty"`
	USDTDominance   *float64 `bson:"usdt_dominance,omitempty" json:"usdt_dominance,omitempty"`
	TotalMarketCap  *float64 `bson:"total_market_cap,omitempty" json:"total_market_cap,omitempty"`
	Total2MarketCap *float64 `bson:"total2_market_cap,omitempty" json:"total2_market_cap,omitempty"`
	Total3MarketCap *float64 `bson:"total3_market_cap,omitempty" json:"total3_market_cap,omitempty"`
	BTCVolatility   *float64 `bson:"btc_volatility,omitempty" json:"btc_volatility,omitempty"`
}

// MarketSnapshot is one ingest cycle's output. Snapshots are append-only.
type MarketSnapshot struct {
	ID           string                                `bson:"_id" json:"_id"`
	Timestamp    time.Time                             `bson:"timestamp" json:"timestamp"`
	Prices       map[string]float64                    `bson:"prices" json:"prices"`
	Candlesticks map[string]map[string][]theory.Candle `bson:"candlesticks,omitempty" json:"candlesticks,omitempty"`
	Metrics      MarketMetrics                         `bson:"market_metrics" json:"market_metrics"`
}

// SnapshotID derives the snapshot _id from its scope and capture time.
// Scope is a symbol for per-symbol snapshots or "market" for full cycles.
func SnapshotID(scope string, ts time.Time) string {
	return fmt.Sprintf("%s_%d", scope, ts.Unix())
}

// DominanceInterpretation is the analyzer's read of the dominance metrics.
type DominanceInterpretation struct {
	BTCDom  string `bson:"btc_dom" json:"btc_dom"`
	USDTDom string `bson:"usdt_dom" json:"usdt_dom"`
}

// Dominance interpretation labels.
const (
	BTCDomRising  = "rising_money_into_btc_alts_weaken"
	BTCDomFalling = "falling_good_for_alts"
	BTCDomNeutral = "stable_or_neutral"

	USDTDomRising = "rising_risk_off_shorts_favored"
	USDTDomStable = "stable_or_falling"
)

// DominanceAnalysis pairs the raw dominance values with their interpretation.
type DominanceAnalysis struct {
	BTCDominance   *float64                `bson:"btc_dominance,omitempty" json:"btc_dominance,omitempty"`
	USDTDominance  *float64                `bson:"usdt_dominance,omitempty" json:"usdt_dominance,omitempty"`
	Interpretation DominanceInterpretation `bson:"interpretation" json:"interpretation"`
}

// SentimentDetails records the evidence tally behind a sentiment call.
type SentimentDetails struct {
	BullishSignals float64 `bson:"bullish_signals" json:"bullish_signals"`
	BearishSignals float64 `bson:"bearish_signals" json:"bearish_signals"`
	TotalSignals   float64 `bson:"total_signals" json:"total_signals"`
}

// AnalysisDocument is one analyzer pass over a snapshot. Append-only; the
// latest document is found by timestamp descending.
type AnalysisDocument struct {
	Timestamp               time.Time                                       `bson:"timestamp" json:"timestamp"`
	SourceSnapshotTimestamp time.Time                                       `bson:"source_snapshot_timestamp" json:"source_snapshot_timestamp"`
	SymbolAnalyses          map[string]map[string]*theory.TimeframeAnalysis `bson:"symbol_analyses" json:"symbol_analyses"`
	DominanceAnalysis       DominanceAnalysis                               `bson:"dominance_analysis" json:"dominance_analysis"`
	Sentiment               string                                          `bson:"sentiment" json:"sentiment"`
	TrendStrength           int                                             `bson:"trend_strength" json:"trend_strength"`
	SentimentDetails        SentimentDetails                                `bson:"sentiment_details" json:"sentiment_details"`
}

// Range is a closed price interval.
type Range struct {
	Min float64 `bson:"min" json:"min"`
	Max float64 `bson:"max" json:"max"`
}

// TimeframeAlignment summarizes trend agreement per horizon bucket.
type TimeframeAlignment struct {
	Primary   string `bson:"primary" json:"primary"`
	Secondary string `bson:"secondary" json:"secondary"`
	Minor     string `bson:"minor" json:"minor"`
}

// Signal is the scorer's core output. Deduplication is by the unique
// signal_id index at write time.
type Signal struct {
	SignalID           string              `bson:"signal_id" json:"signal_id"`
	Timestamp          time.Time           `bson:"timestamp" json:"timestamp"`
	Asset              string              `bson:"asset" json:"asset"`
	Type               string              `bson:"type" json:"type"` // LONG or SHORT
	Score              int                 `bson:"score" json:"score"`
	Confidence         string              `bson:"confidence" json:"confidence"` // HIGH or MEDIUM
	EntryRange         Range               `bson:"entry_range" json:"entry_range"`
	TakeProfit         []float64           `bson:"take_profit" json:"take_profit"`
	StopLoss           float64             `bson:"stop_loss" json:"stop_loss"`
	Reasons            map[string][]string `bson:"reasons" json:"reasons"`
	TimeframeAlignment TimeframeAlignment  `bson:"timeframe_alignment" json:"timeframe_alignment"`
	LiquidityNote      string              `bson:"liquidity_note,omitempty" json:"liquidity_note,omitempty"`
	FundingNote        string              `bson:"funding_note,omitempty" json:"funding_note,omitempty"`
}

// PriceUpdate is one monitor cycle's output.
type PriceUpdate struct {
	Timestamp    time.Time           `bson:"timestamp" json:"timestamp"`
	Prices       map[string]float64  `bson:"prices" json:"prices"`
	Volatilities []VolatilityEvent   `bson:"volatilities" json:"volatilities"`
	Message      string              `bson:"message" json:"message"`
}

// VolatilityEvent is one detected short-term movement.
type VolatilityEvent struct {
	Type      string  `bson:"type" json:"type"` // pump, dump, btc_movement
	Symbol    string  `bson:"symbol" json:"symbol"`
	ChangePct float64 `bson:"change_pct" json:"change_pct"`
	Timeframe string  `bson:"timeframe" json:"timeframe"` // 5m or 15m
}

// ServiceLog is a structured log record persisted for operator queries.
type ServiceLog struct {
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	Service       string    `bson:"service" json:"service"`
	Level         string    `bson:"level" json:"level"`
	Message       string    `bson:"message" json:"message"`
	CorrelationID string    `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
}
