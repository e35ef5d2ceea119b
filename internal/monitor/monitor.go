// Package monitor implements the live price monitor: a one-minute poll
// of spot prices with short-term volatility detection over a rolling
// fifteen-minute window.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/binance"
	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/kernel"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
	"github.com/cryptopulse/cryptopulse/internal/resilience"
	"github.com/cryptopulse/cryptopulse/internal/store"
)

// ServiceName identifies the monitor in logs, metrics and the registry.
const ServiceName = "price_monitor"

// Port is the monitor's fixed HTTP surface port.
const Port = 8002

// Cadence is the price poll period.
const Cadence = time.Minute

// Volatility detection windows and thresholds, in percent.
const (
	historyWindow = 15 * time.Minute
	shortWindow   = 5 * time.Minute

	pumpThreshold5m  = 3.0
	pumpThreshold15m = 5.0
	btcThreshold15m  = 0.5
)

const btcSymbol = "BTCUSDT"

// PriceUpdateWriter persists price updates.
type PriceUpdateWriter interface {
	Insert(ctx context.Context, u *store.PriceUpdate) error
}

// Publisher emits events to the bus.
type Publisher interface {
	Publish(ctx context.Context, p events.Payload) error
}

type pricePoint struct {
	ts    time.Time
	price float64
}

// Monitor polls prices and detects short-term volatility. History lives
// in memory only; a restart starts the window empty.
type Monitor struct {
	cfg      *config.Config
	market   binance.MarketAPI
	updates  PriceUpdateWriter
	bus      Publisher
	breakers *resilience.BreakerSet
	retry    resilience.Policy
	history  map[string][]pricePoint
	now      func() time.Time
	log      zerolog.Logger
}

func New(cfg *config.Config, market binance.MarketAPI, updates PriceUpdateWriter, bus Publisher) *Monitor {
	return &Monitor{
		cfg:      cfg,
		market:   market,
		updates:  updates,
		bus:      bus,
		breakers: resilience.NewBreakerSet(cfg.Breaker),
		retry:    resilience.PolicyFromConfig(cfg.Retry),
		history:  make(map[string][]pricePoint),
		now:      time.Now,
		log:      config.NewServiceLogger(ServiceName),
	}
}

// Run executes poll cycles until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	return kernel.RunEvery(ctx, Cadence, func(cycleCtx context.Context) {
		if err := m.RunCycle(cycleCtx); err != nil {
			m.log.Error().Err(err).Msg("Price cycle failed")
		}
	})
}

// RunCycle polls every configured symbol once, records the samples in
// the rolling window and persists plus announces the update. A cycle
// with zero prices is skipped. A database write failure aborts the
// cycle without emitting.
func (m *Monitor) RunCycle(ctx context.Context) error {
	start := time.Now()
	now := m.now()
	ctx = events.WithCorrelationID(ctx, events.CorrelationID(ctx))
	log := m.log.With().Str("correlation_id", events.CorrelationID(ctx)).Logger()

	prices := make(map[string]float64, len(m.cfg.Coins))
	var volatilities []store.VolatilityEvent

	for _, symbol := range m.cfg.Coins {
		price, err := m.fetchPrice(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed")
			continue
		}
		prices[symbol] = price
		m.record(symbol, now, price)
		if v := m.detect(symbol, price, now); v != nil {
			volatilities = append(volatilities, *v)
			log.Info().
				Str("symbol", v.Symbol).
				Str("type", v.Type).
				Float64("change_pct", v.ChangePct).
				Str("timeframe", v.Timeframe).
				Msg("Volatility detected")
		}
	}

	if len(prices) == 0 {
		metrics.RecordError(ServiceName, "external_api")
		log.Warn().Msg("No prices fetched, skipping cycle")
		return nil
	}

	update := &store.PriceUpdate{
		Timestamp:    now.UTC(),
		Prices:       prices,
		Volatilities: volatilities,
		Message:      m.priceMessage(prices),
	}
	if err := m.updates.Insert(ctx, update); err != nil {
		// No event on a failed write; notifications must not outrun storage.
		metrics.RecordError(ServiceName, "database")
		return err
	}

	payload := &events.PriceUpdateReadyPayload{
		Timestamp:     update.Timestamp.Format(time.RFC3339Nano),
		Prices:        prices,
		Volatilities:  toEventVolatilities(volatilities),
		HasVolatility: len(volatilities) > 0,
		Message:       update.Message,
		CorrelationID: events.CorrelationID(ctx),
	}
	if err := m.bus.Publish(ctx, payload); err != nil {
		log.Error().Err(err).Msg("Failed to publish price update event")
	}

	metrics.RecordProcessing(ServiceName, "price_cycle", time.Since(start).Seconds())
	log.Info().
		Int("prices", len(prices)).
		Int("volatilities", len(volatilities)).
		Msg("Price cycle completed")
	return nil
}

func (m *Monitor) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	breaker := m.breakers.Get("binance")
	var price float64
	err := resilience.Retry(ctx, m.retry, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, m.cfg.DefaultTimeout)
			defer cancel()
			var err error
			price, err = m.market.TickerPrice(callCtx, symbol)
			return err
		})
	})
	return price, err
}

// record appends one sample to the symbol's window.
func (m *Monitor) record(symbol string, ts time.Time, price float64) {
	m.history[symbol] = append(m.history[symbol], pricePoint{ts: ts, price: price})
}

// detect trims the symbol's window to the last fifteen minutes and
// checks the movement rules. The five-minute rule fires first; BTC has
// a tighter fifteen-minute rule because a half-percent BTC move drags
// the whole market.
func (m *Monitor) detect(symbol string, current float64, now time.Time) *store.VolatilityEvent {
	cutoff := now.Add(-historyWindow)
	window := m.history[symbol][:0]
	for _, p := range m.history[symbol] {
		if !p.ts.Before(cutoff) {
			window = append(window, p)
		}
	}
	m.history[symbol] = window

	if len(window) < 2 {
		return nil
	}

	shortCutoff := now.Add(-shortWindow)
	var short []pricePoint
	for _, p := range window {
		if !p.ts.Before(shortCutoff) {
			short = append(short, p)
		}
	}
	if len(short) >= 2 {
		change := (current - short[0].price) / short[0].price * 100
		if change >= pumpThreshold5m || change <= -pumpThreshold5m {
			kind := "pump"
			if change < 0 {
				kind = "dump"
			}
			return &store.VolatilityEvent{Type: kind, Symbol: symbol, ChangePct: change, Timeframe: "5m"}
		}
	}

	change := (current - window[0].price) / window[0].price * 100
	if symbol == btcSymbol {
		if change >= btcThreshold15m || change <= -btcThreshold15m {
			return &store.VolatilityEvent{Type: "btc_movement", Symbol: symbol, ChangePct: change, Timeframe: "15m"}
		}
		return nil
	}
	if change >= pumpThreshold15m || change <= -pumpThreshold15m {
		kind := "pump"
		if change < 0 {
			kind = "dump"
		}
		return &store.VolatilityEvent{Type: kind, Symbol: symbol, ChangePct: change, Timeframe: "15m"}
	}
	return nil
}

// priceMessage renders the compact COIN:price|COIN:price line in the
// configured coin order.
func (m *Monitor) priceMessage(prices map[string]float64) string {
	parts := make([]string, 0, len(prices))
	for _, symbol := range m.cfg.Coins {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%.2f", strings.TrimSuffix(symbol, "USDT"), price))
	}
	return strings.Join(parts, "|")
}

func toEventVolatilities(in []store.VolatilityEvent) []events.Volatility {
	out := make([]events.Volatility, len(in))
	for i, v := range in {
		out[i] = events.Volatility{Type: v.Type, Symbol: v.Symbol, ChangePct: v.ChangePct, Timeframe: v.Timeframe}
	}
	return out
}
