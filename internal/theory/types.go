// Package theory implements the technical-analysis primitives used by the
// analyzer and scorer: classical indicators plus Dow, Wyckoff and Gann
// structure analysis. All functions are pure and do no I/O.
package theory

import "time"

// Candle is one OHLCV bar over a fixed interval, immutable once closed.
type Candle struct {
	OpenTime time.Time `json:"open_time" bson:"open_time"`
	Open     float64   `json:"open" bson:"open"`
	High     float64   `json:"high" bson:"high"`
	Low      float64   `json:"low" bson:"low"`
	Close    float64   `json:"close" bson:"close"`
	Volume   float64   `json:"volume" bson:"volume"`
}

// Trend is a directional bias.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Phase is a Wyckoff market phase. The zero value means no phase detected.
type Phase string

const (
	PhaseNone         Phase = ""
	PhaseAccumulation Phase = "ACCUMULATION"
	PhaseMarkup       Phase = "MARKUP"
	PhaseDistribution Phase = "DISTRIBUTION"
	PhaseMarkdown     Phase = "MARKDOWN"
)

// DowResult describes market structure under Dow theory.
type DowResult struct {
	Trend              Trend   `json:"trend" bson:"trend"`
	BOSUp              bool    `json:"bos_up" bson:"bos_up"`
	BOSDown            bool    `json:"bos_down" bson:"bos_down"`
	SwingHighCount     int     `json:"swing_high_count" bson:"swing_high_count"`
	SwingLowCount      int     `json:"swing_low_count" bson:"swing_low_count"`
	VolumeConfirmation bool    `json:"volume_confirmation" bson:"volume_confirmation"`
	TrendStrength      float64 `json:"trend_strength" bson:"trend_strength"`
}

// WyckoffResult describes accumulation/distribution structure.
type WyckoffResult struct {
	Phase         Phase   `json:"phase" bson:"phase"`
	Spring        bool    `json:"spring" bson:"spring"`
	Upthrust      bool    `json:"upthrust" bson:"upthrust"`
	SOS           bool    `json:"sos" bson:"sos"`
	SOW           bool    `json:"sow" bson:"sow"`
	PricePosition float64 `json:"price_position" bson:"price_position"`
	VolumeRatio   float64 `json:"volume_ratio" bson:"volume_ratio"`
	Strength      float64 `json:"strength" bson:"strength"`
}

// GannResult describes the 1x1 angle fit over the recent range.
type GannResult struct {
	Slope          float64 `json:"slope" bson:"slope"`
	Deviation      float64 `json:"deviation" bson:"deviation"`
	ReversalWindow bool    `json:"reversal_window" bson:"reversal_window"`
	PivotHigh      float64 `json:"pivot_high" bson:"pivot_high"`
	PivotLow       float64 `json:"pivot_low" bson:"pivot_low"`
}

// MACDResult carries the MACD line and, when enough history exists, the
// signal line and histogram.
type MACDResult struct {
	Line      float64  `json:"line" bson:"line"`
	Signal    *float64 `json:"signal" bson:"signal,omitempty"`
	Histogram *float64 `json:"histogram" bson:"histogram,omitempty"`
}

// IndicatorSet groups the classical indicators for one timeframe. Absent
// values are nil, never NaN.
type IndicatorSet struct {
	EMA20       *float64    `json:"ema20" bson:"ema20,omitempty"`
	EMA50       *float64    `json:"ema50" bson:"ema50,omitempty"`
	EMA200      *float64    `json:"ema200" bson:"ema200,omitempty"`
	RSI         *float64    `json:"rsi" bson:"rsi,omitempty"`
	MACD        *MACDResult `json:"macd" bson:"macd,omitempty"`
	VolumeSpike bool        `json:"volume_spike" bson:"volume_spike"`
}

// TimeframeAnalysis is the full theory output for one symbol and interval.
type TimeframeAnalysis struct {
	Interval     string         `json:"interval" bson:"interval"`
	Dow          *DowResult     `json:"dow" bson:"dow,omitempty"`
	Wyckoff      *WyckoffResult `json:"wyckoff" bson:"wyckoff,omitempty"`
	Gann         *GannResult    `json:"gann" bson:"gann,omitempty"`
	Indicators   IndicatorSet   `json:"indicators" bson:"indicators"`
	CurrentPrice float64        `json:"current_price" bson:"current_price"`
}

func ptr(v float64) *float64 { return &v }
