package ingestor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopulse/cryptopulse/internal/cmc"
	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/store"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

type fakeMarket struct {
	prices    map[string]float64
	priceErr  error
	klines    []theory.Candle
	klinesErr error
}

func (f *fakeMarket) TickerPrice(_ context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return p, nil
}

func (f *fakeMarket) Klines(context.Context, string, string, int) ([]theory.Candle, error) {
	if f.klinesErr != nil {
		return nil, f.klinesErr
	}
	return f.klines, nil
}

type fakeMacro struct {
	metrics *cmc.GlobalMetrics
	err     error
	calls   int
}

func (f *fakeMacro) GlobalMetrics(context.Context) (*cmc.GlobalMetrics, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

type captureStore struct {
	snapshots []*store.MarketSnapshot
	err       error
}

func (c *captureStore) Insert(_ context.Context, s *store.MarketSnapshot) error {
	if c.err != nil {
		return c.err
	}
	c.snapshots = append(c.snapshots, s)
	return nil
}

type captureBus struct {
	published []events.Payload
	err       error
}

func (c *captureBus) Publish(_ context.Context, p events.Payload) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, p)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("COINS", "BTCUSDT,ETHUSDT")
	t.Setenv("RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("RETRY_INITIAL_DELAY", "0.001")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func dailyCandles(n int) []theory.Candle {
	out := make([]theory.Candle, n)
	price := 60000.0
	for i := range out {
		if i%2 == 0 {
			price *= 1.02
		} else {
			price *= 0.99
		}
		out[i] = theory.Candle{Close: price, Open: price, High: price, Low: price, Volume: 100}
	}
	return out
}

func TestRunCycleHappyPath(t *testing.T) {
	cfg := testConfig(t)
	market := &fakeMarket{
		prices: map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3000},
		klines: dailyCandles(40),
	}
	macro := &fakeMacro{metrics: &cmc.GlobalMetrics{
		BTCDominance: 54.2, USDTDominance: 4.8, TotalMarketCap: 2.4e12,
	}}
	st := &captureStore{}
	bus := &captureBus{}

	ing := New(cfg, market, macro, st, bus)
	require.NoError(t, ing.RunCycle(context.Background()))

	require.Len(t, st.snapshots, 1)
	snap := st.snapshots[0]
	assert.Equal(t, 65000.0, snap.Prices["BTCUSDT"])
	require.NotNil(t, snap.Metrics.BTCDominance)
	assert.Equal(t, 54.2, *snap.Metrics.BTCDominance)
	require.NotNil(t, snap.Metrics.BTCVolatility)
	assert.Positive(t, *snap.Metrics.BTCVolatility)
	assert.Contains(t, snap.ID, "market_")

	require.Len(t, bus.published, 1)
	payload := bus.published[0].(*events.MarketDataUpdatedPayload)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, payload.Coins)
	assert.True(t, payload.HasCandlesticks)
	assert.True(t, payload.HasMetrics)
	assert.NotEmpty(t, payload.CorrelationID)
}

func TestRunCycleProceedsWithoutMacroMetrics(t *testing.T) {
	cfg := testConfig(t)
	market := &fakeMarket{
		prices: map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3000},
		klines: dailyCandles(40),
	}
	macro := &fakeMacro{err: errors.New("cmc down")}
	st := &captureStore{}
	bus := &captureBus{}

	ing := New(cfg, market, macro, st, bus)
	require.NoError(t, ing.RunCycle(context.Background()))

	require.Len(t, st.snapshots, 1)
	assert.Nil(t, st.snapshots[0].Metrics.BTCDominance)

	require.Len(t, bus.published, 1)
	assert.False(t, bus.published[0].(*events.MarketDataUpdatedPayload).HasMetrics)
}

func TestRunCycleSkipsWithoutAnyPrices(t *testing.T) {
	cfg := testConfig(t)
	market := &fakeMarket{priceErr: errors.New("binance down")}
	st := &captureStore{}
	bus := &captureBus{}

	ing := New(cfg, market, &fakeMacro{}, st, bus)
	require.NoError(t, ing.RunCycle(context.Background()))

	assert.Empty(t, st.snapshots)
	assert.Empty(t, bus.published)
}

func TestRunCycleDatabaseFailureSuppressesEvent(t *testing.T) {
	cfg := testConfig(t)
	market := &fakeMarket{
		prices: map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3000},
		klines: dailyCandles(40),
	}
	st := &captureStore{err: errors.New("write failed")}
	bus := &captureBus{}

	ing := New(cfg, market, &fakeMacro{err: errors.New("skip")}, st, bus)
	require.Error(t, ing.RunCycle(context.Background()))

	assert.Empty(t, bus.published, "no event after a failed write")
}

func TestMacroBreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Breaker.FailureThreshold = 3
	cfg.Breaker.RecoveryTimeout = time.Minute

	market := &fakeMarket{
		prices: map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3000},
		klines: dailyCandles(40),
	}
	macro := &fakeMacro{err: errors.New("cmc down")}
	st := &captureStore{}
	bus := &captureBus{}

	ing := New(cfg, market, macro, st, bus)
	for i := 0; i < 5; i++ {
		require.NoError(t, ing.RunCycle(context.Background()))
	}

	// Once open, the breaker rejects without reaching the provider.
	assert.Equal(t, 3, macro.calls)
	assert.Len(t, st.snapshots, 5, "snapshots still persist with absent metrics")
	assert.Len(t, bus.published, 5)
}
