package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/errs"
)

var errBoom = errors.New("boom")

func fastBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		FailureWindow:    time.Second,
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker("api", fastBreakerConfig())
	ctx := context.Background()

	fail := func(context.Context) error { return errBoom }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}

	var called bool
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, errs.ErrCircuitOpen)
	assert.False(t, called, "open breaker must reject without calling")
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker("api", fastBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, func(context.Context) error { return errBoom })
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerSetReusesInstances(t *testing.T) {
	set := NewBreakerSet(fastBreakerConfig())
	assert.Same(t, set.Get("binance"), set.Get("binance"))
	assert.NotSame(t, set.Get("binance"), set.Get("telegram"))
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Policy{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		ExponentialBase: 2,
	}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Policy{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		ExponentialBase: 2,
	}, func(context.Context) error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, attempts)
}

func TestRetryNeverRetriesCircuitOpen(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Policy{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		ExponentialBase: 2,
	}, func(context.Context) error {
		attempts++
		return errs.ErrCircuitOpen
	})
	assert.ErrorIs(t, err, errs.ErrCircuitOpen)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsRetryableFilter(t *testing.T) {
	fatal := errors.New("fatal")
	attempts := 0
	err := Retry(context.Background(), Policy{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		ExponentialBase: 2,
		Retryable:       func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context) error {
		attempts++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, Policy{
		MaxAttempts:     100,
		InitialDelay:    20 * time.Millisecond,
		ExponentialBase: 2,
	}, func(context.Context) error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2)
}
