package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopulse/cryptopulse/internal/config"
)

func testService(t *testing.T, mutate func(*config.Config)) *Service {
	t.Helper()
	t.Setenv("ENVIRONMENT", "test")
	cfg, err := config.Load()
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}
	s := New("test-service", 8099, cfg, nil)
	s.startedAt = time.Now()
	return s
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthReflectsDependencies(t *testing.T) {
	s := testService(t, nil)
	s.AddDependency("redis", func(context.Context) error { return nil })

	w := get(t, s.router(), "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test-service", body["service"])

	s.AddDependency("mongo", func(context.Context) error { return errors.New("down") })
	w = get(t, s.router(), "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyUsesReadyKeywords(t *testing.T) {
	s := testService(t, nil)

	w := get(t, s.router(), "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")

	s.AddDependency("mongo", func(context.Context) error { return errors.New("down") })
	w = get(t, s.router(), "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")
}

func TestStatusReportsDependencies(t *testing.T) {
	s := testService(t, nil)
	s.AddDependency("redis", func(context.Context) error { return nil })
	s.AddDependency("mongo", func(context.Context) error { return errors.New("down") })

	w := get(t, s.router(), "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Service      string `json:"service"`
		Status       string `json:"status"`
		Dependencies map[string]struct {
			Status string `json:"status"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "healthy", body.Dependencies["redis"].Status)
	assert.Equal(t, "unhealthy", body.Dependencies["mongo"].Status)
}

func TestMetricsAPIKeyGate(t *testing.T) {
	s := testService(t, func(cfg *config.Config) {
		cfg.HTTP.APIKeyEnabled = true
		cfg.HTTP.APIKey = "secret"
	})
	h := s.router()

	w := get(t, h, "/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")

	w = get(t, h, "/metrics", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/metrics?api_key=secret", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health, ready and status stay open even with the gate on.
	w = get(t, h, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitSparesHealth(t *testing.T) {
	s := testService(t, func(cfg *config.Config) {
		cfg.HTTP.RateLimitEnabled = true
		cfg.HTTP.RateLimitPerMinute = 2
	})
	h := s.router()

	assert.Equal(t, http.StatusOK, get(t, h, "/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/metrics", nil).Code)

	w := get(t, h, "/metrics", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")

	// The operational endpoints are outside the limited group.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(t, h, "/health", nil).Code)
		assert.Equal(t, http.StatusOK, get(t, h, "/status", nil).Code)
	}
}

func TestRunEvery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = RunEvery(ctx, 10*time.Millisecond, func(context.Context) {
			runs.Add(1)
		})
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}
