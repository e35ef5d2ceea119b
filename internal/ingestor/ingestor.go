// Package ingestor implements the market-data ingest service: prices,
// multi-timeframe candles and macro metrics on a five-minute cadence.
package ingestor

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/binance"
	"github.com/cryptopulse/cryptopulse/internal/cmc"
	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/kernel"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
	"github.com/cryptopulse/cryptopulse/internal/resilience"
	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// ServiceName identifies the ingestor in logs, metrics and the registry.
const ServiceName = "ingestor"

// Port is the ingestor's fixed HTTP surface port.
const Port = 8001

// Cadence is the ingest cycle period.
const Cadence = 5 * time.Minute

const klineLimit = 500

// SnapshotWriter persists market snapshots.
type SnapshotWriter interface {
	Insert(ctx context.Context, s *store.MarketSnapshot) error
}

// Publisher emits events to the bus.
type Publisher interface {
	Publish(ctx context.Context, p events.Payload) error
}

// Ingestor runs ingest cycles.
type Ingestor struct {
	cfg       *config.Config
	market    binance.MarketAPI
	macro     cmc.API
	snapshots SnapshotWriter
	bus       Publisher
	breakers  *resilience.BreakerSet
	retry     resilience.Policy
	log       zerolog.Logger
}

func New(cfg *config.Config, market binance.MarketAPI, macro cmc.API, snapshots SnapshotWriter, bus Publisher) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		market:    market,
		macro:     macro,
		snapshots: snapshots,
		bus:       bus,
		breakers:  resilience.NewBreakerSet(cfg.Breaker),
		retry:     resilience.PolicyFromConfig(cfg.Retry),
		log:       config.NewServiceLogger(ServiceName),
	}
}

// Run executes ingest cycles until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	return kernel.RunEvery(ctx, Cadence, func(cycleCtx context.Context) {
		if err := i.RunCycle(cycleCtx); err != nil {
			i.log.Error().Err(err).Msg("Ingest cycle failed")
		}
	})
}

// RunCycle performs one ingest pass under a fresh correlation ID. Failed
// external calls leave their fields absent; the snapshot is still persisted
// and announced as long as any price was obtained. A database write failure
// aborts the cycle without emitting.
func (i *Ingestor) RunCycle(ctx context.Context) error {
	start := time.Now()
	ctx = events.WithCorrelationID(ctx, events.CorrelationID(ctx))
	log := i.log.With().Str("correlation_id", events.CorrelationID(ctx)).Logger()

	prices := i.fetchPrices(ctx, log)
	if len(prices) == 0 {
		metrics.RecordError(ServiceName, "external_api")
		log.Error().Msg("No prices obtained, skipping cycle")
		return nil
	}

	candles := i.fetchCandlesticks(ctx, log)
	macro := i.fetchMacroMetrics(ctx, log)

	snapshot := &store.MarketSnapshot{
		ID:           store.SnapshotID("market", start),
		Timestamp:    start.UTC(),
		Prices:       prices,
		Candlesticks: candles,
	}
	if macro != nil {
		snapshot.Metrics.BTCDominance = &macro.BTCDominance
		snapshot.Metrics.USDTDominance = &macro.USDTDominance
		snapshot.Metrics.TotalMarketCap = &macro.TotalMarketCap
	}
	if vol, ok := i.btcVolatility(candles); ok {
		snapshot.Metrics.BTCVolatility = &vol
	}

	if err := i.snapshots.Insert(ctx, snapshot); err != nil {
		// No event on a failed write; downstream must not analyze lost state.
		metrics.RecordError(ServiceName, "database")
		return err
	}

	coins := make([]string, 0, len(prices))
	for symbol := range prices {
		coins = append(coins, symbol)
	}
	sort.Strings(coins)

	payload := &events.MarketDataUpdatedPayload{
		Timestamp:       snapshot.Timestamp.Format(time.RFC3339Nano),
		Coins:           coins,
		HasCandlesticks: len(candles) > 0,
		HasMetrics:      macro != nil,
		CorrelationID:   events.CorrelationID(ctx),
	}
	if err := i.bus.Publish(ctx, payload); err != nil {
		// The next cycle carries fresh data; log and continue.
		log.Error().Err(err).Msg("Failed to publish market data event")
	}

	metrics.RecordProcessing(ServiceName, "ingest_cycle", time.Since(start).Seconds())
	log.Info().
		Int("prices", len(prices)).
		Bool("has_candlesticks", payload.HasCandlesticks).
		Bool("has_metrics", payload.HasMetrics).
		Msg("Ingest cycle completed")
	return nil
}

func (i *Ingestor) fetchPrices(ctx context.Context, log zerolog.Logger) map[string]float64 {
	breaker := i.breakers.Get("binance")
	prices := make(map[string]float64, len(i.cfg.Coins))

	for _, symbol := range i.cfg.Coins {
		var price float64
		err := resilience.Retry(ctx, i.retry, func(ctx context.Context) error {
			return breaker.Execute(ctx, func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, i.cfg.DefaultTimeout)
				defer cancel()
				var err error
				price, err = i.market.TickerPrice(callCtx, symbol)
				return err
			})
		})
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed")
			continue
		}
		prices[symbol] = price
	}
	return prices
}

func (i *Ingestor) fetchCandlesticks(ctx context.Context, log zerolog.Logger) map[string]map[string][]theory.Candle {
	breaker := i.breakers.Get("binance")
	out := make(map[string]map[string][]theory.Candle)

	for _, symbol := range i.cfg.Coins {
		for _, interval := range i.cfg.IngestTimeframes() {
			var candles []theory.Candle
			err := resilience.Retry(ctx, i.retry, func(ctx context.Context) error {
				return breaker.Execute(ctx, func(ctx context.Context) error {
					callCtx, cancel := context.WithTimeout(ctx, i.cfg.DefaultTimeout)
					defer cancel()
					var err error
					candles, err = i.market.Klines(callCtx, symbol, interval, klineLimit)
					return err
				})
			})
			if err != nil {
				log.Warn().Err(err).
					Str("symbol", symbol).
					Str("interval", interval).
					Msg("Candlestick fetch failed")
				continue
			}
			if out[symbol] == nil {
				out[symbol] = make(map[string][]theory.Candle)
			}
			out[symbol][interval] = candles
		}
	}
	return out
}

// fetchMacroMetrics uses a breaker keyed to the macro provider so a CMC
// outage never blocks price ingestion.
func (i *Ingestor) fetchMacroMetrics(ctx context.Context, log zerolog.Logger) *cmc.GlobalMetrics {
	breaker := i.breakers.Get("coinmarketcap")
	var out *cmc.GlobalMetrics
	err := resilience.Retry(ctx, i.retry, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, i.cfg.DefaultTimeout)
			defer cancel()
			var err error
			out, err = i.macro.GlobalMetrics(callCtx)
			return err
		})
	})
	if err != nil {
		log.Warn().Err(err).Msg("Macro metrics fetch failed")
		return nil
	}
	return out
}

// btcVolatility derives the 30-day annualized volatility from BTC daily
// candles.
func (i *Ingestor) btcVolatility(candles map[string]map[string][]theory.Candle) (float64, bool) {
	daily := candles["BTCUSDT"]["1d"]
	if len(daily) == 0 {
		return 0, false
	}
	if len(daily) > 30 {
		daily = daily[len(daily)-30:]
	}
	return theory.AnnualizedVolatility(theory.Closes(daily))
}
