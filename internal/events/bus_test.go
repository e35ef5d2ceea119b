package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus(t *testing.T) (*Bus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewBus(rdb, "test_service"), rdb
}

func validPriceUpdate() *PriceUpdateReadyPayload {
	return &PriceUpdateReadyPayload{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Prices:        map[string]float64{"BTCUSDT": 65000.5},
		CorrelationID: "corr-1",
	}
}

func TestPublishAppendsEnvelope(t *testing.T) {
	bus, rdb := testBus(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, validPriceUpdate()))

	msgs, err := rdb.XRange(ctx, StreamKey(PriceUpdateReady), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, PriceUpdateReady, msgs[0].Values["event"])
	assert.NotEmpty(t, msgs[0].Values["timestamp"])

	var p PriceUpdateReadyPayload
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &p))
	assert.Equal(t, 65000.5, p.Prices["BTCUSDT"])
	assert.Equal(t, "corr-1", p.CorrelationID)
}

func TestPublishRejectsInvalidPayload(t *testing.T) {
	bus, rdb := testBus(t)
	ctx := context.Background()

	p := validPriceUpdate()
	p.Prices = nil
	require.Error(t, bus.Publish(ctx, p))

	n, err := rdb.Exists(ctx, StreamKey(PriceUpdateReady)).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "invalid payload must not reach the stream")
}

func TestSubscribeAcksOnSuccess(t *testing.T) {
	bus, rdb := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, validPriceUpdate()))

	var handled atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Subscribe(ctx, []string{PriceUpdateReady}, "g1", "c1",
			func(hctx context.Context, event string, data []byte) error {
				assert.Equal(t, PriceUpdateReady, event)
				assert.Equal(t, "corr-1", CorrelationID(hctx))
				handled.Add(1)
				return nil
			})
	}()

	require.Eventually(t, func() bool { return handled.Load() == 1 },
		3*time.Second, 10*time.Millisecond)

	// Acked messages leave the pending set.
	assert.Eventually(t, func() bool {
		pending, err := rdb.XPending(ctx, StreamKey(PriceUpdateReady), "g1").Result()
		return err == nil && pending.Count == 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe loop did not exit after cancel")
	}
}

func TestSubscribeLeavesFailedMessagePending(t *testing.T) {
	bus, rdb := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Publish(ctx, validPriceUpdate()))

	var handled atomic.Int32
	go func() {
		_ = bus.Subscribe(ctx, []string{PriceUpdateReady}, "g1", "c1",
			func(context.Context, string, []byte) error {
				handled.Add(1)
				return errors.New("boom")
			})
	}()

	require.Eventually(t, func() bool { return handled.Load() >= 1 },
		3*time.Second, 10*time.Millisecond)
	cancel()

	pending, err := rdb.XPending(context.Background(), StreamKey(PriceUpdateReady), "g1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count, "failed message must stay pending")
}

func TestSubscribeAcksInvalidMessage(t *testing.T) {
	bus, rdb := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bypass Publish validation with a raw XADD.
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(SignalGenerated),
		Values: map[string]interface{}{
			"event":     SignalGenerated,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"data":      `{"timestamp":"x","signal_id":"s1","asset":"BTCUSDT","type":"SIDEWAYS","score":50,"confidence":"HIGH"}`,
		},
	}).Result()
	require.NoError(t, err)

	// A valid message behind the poison one; FIFO means the poison message
	// was dispatched first once this one is handled.
	valid := &SignalGeneratedPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SignalID:  "s2", Asset: "BTCUSDT", Type: "LONG", Score: 80, Confidence: "HIGH",
	}
	require.NoError(t, bus.Publish(ctx, valid))

	var handled atomic.Int32
	go func() {
		_ = bus.Subscribe(ctx, []string{SignalGenerated}, "g1", "c1",
			func(_ context.Context, _ string, data []byte) error {
				var p SignalGeneratedPayload
				require.NoError(t, json.Unmarshal(data, &p))
				assert.Equal(t, "s2", p.SignalID, "poison message must not reach the handler")
				handled.Add(1)
				return nil
			})
	}()

	require.Eventually(t, func() bool { return handled.Load() == 1 },
		3*time.Second, 10*time.Millisecond)

	// Both messages are acked, the poison one without a handler call.
	assert.Eventually(t, func() bool {
		pending, err := rdb.XPending(ctx, StreamKey(SignalGenerated), "g1").Result()
		return err == nil && pending.Count == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), handled.Load())
	cancel()
}

func TestSubscribeGroupCreateIsIdempotent(t *testing.T) {
	bus, rdb := testBus(t)

	require.NoError(t, rdb.XGroupCreateMkStream(context.Background(),
		StreamKey(MarketDataUpdated), "g1", "0").Err())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := bus.Subscribe(ctx, []string{MarketDataUpdated}, "g1", "c1",
		func(context.Context, string, []byte) error { return nil })
	assert.NoError(t, err, "existing group must not fail the subscription")
}

func TestValidateRaw(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		data    string
		wantErr bool
	}{
		{"valid signal", SignalGenerated,
			`{"timestamp":"t","signal_id":"s","asset":"BTCUSDT","type":"LONG","score":80,"confidence":"HIGH"}`, false},
		{"score out of range", SignalGenerated,
			`{"timestamp":"t","signal_id":"s","asset":"BTCUSDT","type":"LONG","score":180,"confidence":"HIGH"}`, true},
		{"missing timestamp", MarketDataUpdated,
			`{"coins":["BTCUSDT"],"has_candlesticks":true,"has_metrics":true}`, true},
		{"bad sentiment", MarketAnalysisCompleted,
			`{"timestamp":"t","sentiment":"sideways","trend_strength":10,"symbols_analyzed":[]}`, true},
		{"unknown event passes", "made_up_event", `{"whatever":1}`, false},
		{"malformed json", PriceUpdateReady, `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRaw(tt.event, []byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
