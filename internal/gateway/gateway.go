// Package gateway implements the API gateway: a thin reverse proxy that
// routes /api/<service>/<path> to the service resolved through the
// registry, with static port fallbacks when a service has not
// registered yet.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/registry"
)

// ServiceName identifies the gateway in logs. The gateway does not
// register itself; it is the entry point, not a pipeline service.
const ServiceName = "gateway"

// Port is the gateway's listen port.
const Port = 8000

// defaultPorts routes services that have not (yet) registered.
var defaultPorts = map[string]int{
	"ingestor":             8001,
	"price_monitor":        8002,
	"signal_service":       8003,
	"market_analyzer":      8004,
	"notification_service": 8005,
}

// Gateway proxies API requests to pipeline services.
type Gateway struct {
	reg *registry.Registry
	log zerolog.Logger
}

func New(reg *registry.Registry) *Gateway {
	return &Gateway{
		reg: reg,
		log: config.NewServiceLogger(ServiceName),
	}
}

// Router builds the gin engine serving /api/:service/*path plus the
// gateway's own health probe.
func (g *Gateway) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
	})
	router.Any("/api/:service/*path", g.proxy)
	return router
}

// proxy resolves the target service and forwards the request, stripping
// the /api/<service> prefix and propagating the correlation id.
func (g *Gateway) proxy(c *gin.Context) {
	service := c.Param("service")

	target, err := g.resolve(c.Request.Context(), service)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_service",
			"message": fmt.Sprintf("no route for service %q", service),
		})
		return
	}

	correlationID := c.GetHeader("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	director := rp.Director
	rp.Director = func(req *http.Request) {
		director(req)
		req.URL.Path = c.Param("path")
		req.Header.Set("X-Correlation-ID", correlationID)
	}
	rp.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		g.log.Error().Err(err).Str("service", service).Msg("Proxy request failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, `{"error":"bad_gateway","message":"service %s unreachable"}`, service)
	}

	rp.ServeHTTP(c.Writer, c.Request)
}

// resolve prefers a live registry entry and falls back to the static
// port map on localhost.
func (g *Gateway) resolve(ctx context.Context, service string) (*url.URL, error) {
	if g.reg != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if r, err := g.reg.Discover(lookupCtx, service); err == nil {
			return url.Parse(r.BaseURL())
		}
	}

	port, ok := defaultPorts[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	return url.Parse(fmt.Sprintf("http://localhost:%d", port))
}
