package resilience

import (
	"context"
	"time"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/errs"
)

// Policy controls retry behavior. Retryable filters which errors are worth
// another attempt; a nil filter retries everything except CircuitOpen.
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Retryable       func(error) bool
}

// PolicyFromConfig builds a Policy from the shared retry settings.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialDelay:    cfg.InitialDelay,
		MaxDelay:        cfg.MaxDelay,
		ExponentialBase: cfg.ExponentialBase,
	}
}

// Retry runs op with exponential backoff until it succeeds, the attempts
// are exhausted, the error is not retryable, or ctx is cancelled. A
// CircuitOpen outcome is never retried. Returns the final error.
func Retry(ctx context.Context, p Policy, op func(context.Context) error) error {
	log := config.NewLogger("retry")

	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.ExponentialBase <= 1 {
		p.ExponentialBase = 2
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if errs.IsCircuitOpen(err) {
			return errs.ErrCircuitOpen
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying after failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.ExponentialBase)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
