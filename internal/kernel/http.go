package kernel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/cryptopulse/cryptopulse/internal/metrics"
)

// router builds the gin HTTP surface. /health, /ready and /status are
// never gated or rate-limited; /metrics honors the API-key and
// rate-limit settings.
func (s *Service) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestMetrics())

	r.GET("/health", func(c *gin.Context) {
		if s.checkDependencies(c.Request.Context()) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": s.Name})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "service": s.Name})
	})

	r.GET("/ready", func(c *gin.Context) {
		if s.checkDependencies(c.Request.Context()) {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "service": s.Name})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "service": s.Name})
	})

	r.GET("/status", func(c *gin.Context) {
		healthy := s.checkDependencies(c.Request.Context())

		s.mu.Lock()
		deps := make(map[string]depStatus, len(s.lastCheck))
		for name, st := range s.lastCheck {
			deps[name] = st
		}
		s.mu.Unlock()

		overall := "healthy"
		if !healthy {
			overall = "unhealthy"
		}
		c.JSON(http.StatusOK, gin.H{
			"service":        s.Name,
			"status":         overall,
			"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
			"dependencies":   deps,
		})
	})

	guarded := r.Group("/", s.apiKeyGate(), s.rateLimit())
	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// apiKeyGate rejects requests without a configured key when the gate is on.
// The key arrives in the X-API-Key header or the api_key query parameter.
func (s *Service) apiKeyGate() gin.HandlerFunc {
	cfg := s.cfg.HTTP
	allowed := make(map[string]struct{}, len(cfg.APIKeys)+1)
	if cfg.APIKey != "" {
		allowed[cfg.APIKey] = struct{}{}
	}
	for _, k := range cfg.APIKeys {
		allowed[k] = struct{}{}
	}

	return func(c *gin.Context) {
		if !cfg.APIKeyEnabled {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.Query("api_key")
		}
		if _, ok := allowed[key]; !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing or invalid API key",
			})
			return
		}
		c.Next()
	}
}

// rateLimit applies the per-minute surface limit with a token bucket.
func (s *Service) rateLimit() gin.HandlerFunc {
	cfg := s.cfg.HTTP
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }
	}
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

func (s *Service) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(
			s.Name,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}
