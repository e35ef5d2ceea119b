// Package kernel provides the shared service lifecycle: HTTP surface,
// registry heartbeat, optional tracing and signal-driven shutdown.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/registry"
)

// DependencyCheck probes one pooled client or external dependency.
type DependencyCheck func(ctx context.Context) error

// Service composes the shared lifecycle for one pipeline service.
type Service struct {
	Name string
	Port int

	cfg *config.Config
	reg *registry.Registry
	log zerolog.Logger

	mu        sync.Mutex
	deps      map[string]DependencyCheck
	lastCheck map[string]depStatus
	startedAt time.Time
}

type depStatus struct {
	Healthy   bool      `json:"-"`
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// New builds a Service. reg may be nil for processes that do not register
// (the gateway).
func New(name string, port int, cfg *config.Config, reg *registry.Registry) *Service {
	return &Service{
		Name:      name,
		Port:      port,
		cfg:       cfg,
		reg:       reg,
		log:       config.NewServiceLogger(name),
		deps:      make(map[string]DependencyCheck),
		lastCheck: make(map[string]depStatus),
	}
}

// AddDependency registers a named health probe for /health and /status.
func (s *Service) AddDependency(name string, check DependencyCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps[name] = check
}

// Run starts the HTTP surface, the registry heartbeat and the given worker
// loops, then blocks until a termination signal or a worker error. Workers
// must honor ctx cancellation; read blocks and ticker sleeps are bounded to
// about one second so shutdown latency stays low.
func (s *Service) Run(ctx context.Context, workers ...func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.startedAt = time.Now()

	shutdownTracing, err := initTracing(s.Name, &s.cfg.Observe)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownTracing()

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.router(),
	}
	g.Go(func() error {
		s.log.Info().Int("port", s.Port).Msg("HTTP surface listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http surface failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.reg != nil {
		host, _ := os.Hostname()
		if host == "" {
			host = "localhost"
		}
		g.Go(func() error {
			return s.reg.RunHeartbeat(ctx, &registry.Registration{
				Name:      s.Name,
				Host:      host,
				Port:      s.Port,
				HealthURL: fmt.Sprintf("http://%s:%d/health", host, s.Port),
			})
		})
	}

	for _, w := range workers {
		w := w
		g.Go(func() error { return w(ctx) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("Service stopped with error")
		return err
	}
	s.log.Info().Msg("Service stopped")
	return nil
}

// checkDependencies probes every dependency with a short timeout and
// caches the outcome for /status.
func (s *Service) checkDependencies(ctx context.Context) bool {
	s.mu.Lock()
	deps := make(map[string]DependencyCheck, len(s.deps))
	for name, check := range s.deps {
		deps[name] = check
	}
	s.mu.Unlock()

	allHealthy := true
	now := time.Now().UTC()
	for name, check := range deps {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(probeCtx)
		cancel()

		st := depStatus{Healthy: err == nil, Status: "healthy", LastCheck: now}
		if err != nil {
			st.Status = "unhealthy"
			allHealthy = false
		}
		s.mu.Lock()
		s.lastCheck[name] = st
		s.mu.Unlock()
	}
	return allHealthy
}

// RunEvery invokes fn on the given cadence until ctx is cancelled. The
// first run happens immediately.
func RunEvery(ctx context.Context, period time.Duration, fn func(ctx context.Context)) error {
	fn(ctx)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
