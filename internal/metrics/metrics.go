// Package metrics defines the Prometheus collectors shared by all services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptopulse_events_published_total",
		Help: "Events published to the bus by service and event name",
	}, []string{"service", "event"})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptopulse_events_consumed_total",
		Help: "Events consumed from the bus by service and event name",
	}, []string{"service", "event"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptopulse_errors_total",
		Help: "Errors by service and kind",
	}, []string{"service", "kind"})

	externalAPICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptopulse_external_api_calls_total",
		Help: "External API calls by api and outcome",
	}, []string{"api", "outcome"})

	externalAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptopulse_external_api_duration_seconds",
		Help:    "External API call latency by api",
		Buckets: prometheus.DefBuckets,
	}, []string{"api"})

	processingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptopulse_processing_duration_seconds",
		Help:    "Event or cycle processing latency by service and operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cryptopulse_http_request_duration_seconds",
		Help:    "HTTP surface request latency by service and path",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "path", "status"})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptopulse_notifications_sent_total",
		Help: "Chat notifications sent by channel and outcome",
	}, []string{"channel", "outcome"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cryptopulse_circuit_breaker_state",
		Help: "Circuit breaker state by dependency (0 closed, 1 half-open, 2 open)",
	}, []string{"dependency"})
)

// RecordEventPublished increments the published-events counter.
func RecordEventPublished(service, event string) {
	eventsPublished.WithLabelValues(service, event).Inc()
}

// RecordEventConsumed increments the consumed-events counter.
func RecordEventConsumed(service, event string) {
	eventsConsumed.WithLabelValues(service, event).Inc()
}

// RecordError increments the error counter. kind must be a bounded label,
// use errs.Kind to derive it from an error value.
func RecordError(service, kind string) {
	errorsTotal.WithLabelValues(service, kind).Inc()
}

// RecordExternalAPICall records one external call with its outcome and latency.
func RecordExternalAPICall(api, outcome string, seconds float64) {
	externalAPICalls.WithLabelValues(api, outcome).Inc()
	externalAPIDuration.WithLabelValues(api).Observe(seconds)
}

// RecordProcessing records one processing pass for a service operation.
func RecordProcessing(service, operation string, seconds float64) {
	processingDuration.WithLabelValues(service, operation).Observe(seconds)
}

// RecordHTTPRequest records one HTTP surface request.
func RecordHTTPRequest(service, path, status string, seconds float64) {
	requestDuration.WithLabelValues(service, path, status).Observe(seconds)
}

// RecordNotification records one chat send attempt.
func RecordNotification(channel, outcome string) {
	notificationsSent.WithLabelValues(channel, outcome).Inc()
}

// SetBreakerState publishes the numeric state of a circuit breaker.
func SetBreakerState(dependency string, state float64) {
	breakerState.WithLabelValues(dependency).Set(state)
}
