package kernel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/cryptopulse/cryptopulse/internal/config"
)

// initTracing installs a Jaeger-exporting tracer provider when tracing is
// enabled. The returned function flushes and shuts the provider down.
func initTracing(service string, cfg *config.ObserveConfig) (func(), error) {
	if !cfg.TracingEnabled || cfg.JaegerEndpoint == "" {
		return func() {}, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(
		jaeger.WithEndpoint(cfg.JaegerEndpoint),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
			attribute.String("pipeline", "cryptopulse"),
		)),
	)
	otel.SetTracerProvider(tp)

	log := config.NewLogger("tracing")
	log.Info().Str("endpoint", cfg.JaegerEndpoint).Msg("Tracing enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}, nil
}
