// Package resilience wraps external calls in circuit breakers and
// exponential-backoff retries.
package resilience

import (
	"context"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/errs"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
)

// Breaker guards one named external dependency. Open-state rejections are
// surfaced as errs.ErrCircuitOpen so the retry layer can refuse to retry
// them.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// BreakerSet lazily builds one Breaker per dependency name.
type BreakerSet struct {
	cfg config.BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewBreakerSet(cfg config.BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for a dependency, creating it on first use.
func (s *BreakerSet) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, s.cfg)
	s.breakers[name] = b
	return b
}

// NewBreaker builds a breaker with the configured failure threshold inside
// a sliding window and recovery timeout. Half-open permits one trial call.
func NewBreaker(name string, cfg config.BreakerConfig) *Breaker {
	log := config.NewLogger("breaker")
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.FailureWindow,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, stateValue(to))
			log.Warn().
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs op through the breaker. When the breaker is open the call is
// rejected with errs.ErrCircuitOpen without invoking op.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if errs.IsCircuitOpen(err) {
		return errs.ErrCircuitOpen
	}
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
