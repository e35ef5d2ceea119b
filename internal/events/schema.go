package events

import (
	"encoding/json"
	"fmt"

	"github.com/cryptopulse/cryptopulse/internal/errs"
)

// Logical event names. Stream keys are derived as "events:<name>".
const (
	MarketDataUpdated       = "market_data_updated"
	MarketAnalysisCompleted = "market_analysis_completed"
	PriceUpdateReady        = "price_update_ready"
	SignalGenerated         = "signal_generated"
)

// StreamKey returns the Redis stream key for a logical event name.
func StreamKey(event string) string {
	return "events:" + event
}

// Payload is implemented by every typed event payload.
type Payload interface {
	EventName() string
	Validate() error
}

// MarketDataUpdatedPayload announces a persisted market snapshot.
type MarketDataUpdatedPayload struct {
	Timestamp       string   `json:"timestamp"`
	Coins           []string `json:"coins"`
	HasCandlesticks bool     `json:"has_candlesticks"`
	HasMetrics      bool     `json:"has_metrics"`
	CorrelationID   string   `json:"correlation_id,omitempty"`
}

func (p *MarketDataUpdatedPayload) EventName() string { return MarketDataUpdated }

func (p *MarketDataUpdatedPayload) Validate() error {
	if p.Timestamp == "" {
		return &errs.ValidationError{Field: "timestamp", Message: "required"}
	}
	if p.Coins == nil {
		return &errs.ValidationError{Field: "coins", Message: "required"}
	}
	return nil
}

// MarketAnalysisCompletedPayload announces a persisted analysis document.
type MarketAnalysisCompletedPayload struct {
	Timestamp       string   `json:"timestamp"`
	Sentiment       string   `json:"sentiment"`
	TrendStrength   int      `json:"trend_strength"`
	SymbolsAnalyzed []string `json:"symbols_analyzed"`
	CorrelationID   string   `json:"correlation_id,omitempty"`
}

func (p *MarketAnalysisCompletedPayload) EventName() string { return MarketAnalysisCompleted }

func (p *MarketAnalysisCompletedPayload) Validate() error {
	if p.Timestamp == "" {
		return &errs.ValidationError{Field: "timestamp", Message: "required"}
	}
	switch p.Sentiment {
	case "bullish", "bearish", "neutral":
	default:
		return &errs.ValidationError{Field: "sentiment", Value: p.Sentiment,
			Message: "must be bullish, bearish or neutral"}
	}
	if p.TrendStrength < 0 || p.TrendStrength > 100 {
		return &errs.ValidationError{Field: "trend_strength", Value: p.TrendStrength,
			Message: "must be in [0,100]"}
	}
	if p.SymbolsAnalyzed == nil {
		return &errs.ValidationError{Field: "symbols_analyzed", Message: "required"}
	}
	return nil
}

// Volatility describes one short-term price movement.
type Volatility struct {
	Type      string  `json:"type"` // pump, dump, btc_movement
	Symbol    string  `json:"symbol"`
	ChangePct float64 `json:"change_pct"`
	Timeframe string  `json:"timeframe"` // 5m or 15m
}

// PriceUpdateReadyPayload announces a persisted price update.
type PriceUpdateReadyPayload struct {
	Timestamp     string             `json:"timestamp"`
	Prices        map[string]float64 `json:"prices"`
	Volatilities  []Volatility       `json:"volatilities"`
	HasVolatility bool               `json:"has_volatility"`
	Message       string             `json:"message,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

func (p *PriceUpdateReadyPayload) EventName() string { return PriceUpdateReady }

func (p *PriceUpdateReadyPayload) Validate() error {
	if p.Timestamp == "" {
		return &errs.ValidationError{Field: "timestamp", Message: "required"}
	}
	if p.Prices == nil {
		return &errs.ValidationError{Field: "prices", Message: "required"}
	}
	for _, v := range p.Volatilities {
		switch v.Type {
		case "pump", "dump", "btc_movement":
		default:
			return &errs.ValidationError{Field: "volatilities.type", Value: v.Type,
				Message: "must be pump, dump or btc_movement"}
		}
	}
	return nil
}

// SignalGeneratedPayload announces a persisted trading signal.
type SignalGeneratedPayload struct {
	Timestamp     string `json:"timestamp"`
	SignalID      string `json:"signal_id"`
	Asset         string `json:"asset"`
	Type          string `json:"type"`       // LONG or SHORT
	Score         int    `json:"score"`      // [0,100]
	Confidence    string `json:"confidence"` // HIGH or MEDIUM
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (p *SignalGeneratedPayload) EventName() string { return SignalGenerated }

func (p *SignalGeneratedPayload) Validate() error {
	if p.Timestamp == "" {
		return &errs.ValidationError{Field: "timestamp", Message: "required"}
	}
	if p.SignalID == "" {
		return &errs.ValidationError{Field: "signal_id", Message: "required"}
	}
	if p.Asset == "" {
		return &errs.ValidationError{Field: "asset", Message: "required"}
	}
	if p.Type != "LONG" && p.Type != "SHORT" {
		return &errs.ValidationError{Field: "type", Value: p.Type,
			Message: "must be LONG or SHORT"}
	}
	if p.Score < 0 || p.Score > 100 {
		return &errs.ValidationError{Field: "score", Value: p.Score,
			Message: "must be in [0,100]"}
	}
	switch p.Confidence {
	case "HIGH", "MEDIUM":
	default:
		return &errs.ValidationError{Field: "confidence", Value: p.Confidence,
			Message: "must be HIGH or MEDIUM"}
	}
	return nil
}

// schemaFor returns an empty payload value for known events. Unknown events
// pass through without schema validation.
func schemaFor(event string) Payload {
	switch event {
	case MarketDataUpdated:
		return &MarketDataUpdatedPayload{}
	case MarketAnalysisCompleted:
		return &MarketAnalysisCompletedPayload{}
	case PriceUpdateReady:
		return &PriceUpdateReadyPayload{}
	case SignalGenerated:
		return &SignalGeneratedPayload{}
	default:
		return nil
	}
}

// ValidateRaw checks a raw JSON payload against the event's schema.
func ValidateRaw(event string, raw []byte) error {
	schema := schemaFor(event)
	if schema == nil {
		return nil
	}
	if err := json.Unmarshal(raw, schema); err != nil {
		return &errs.ValidationError{Field: "data",
			Message: fmt.Sprintf("malformed payload for %s: %v", event, err)}
	}
	return schema.Validate()
}
