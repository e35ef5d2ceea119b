// Package errs defines the error taxonomy shared by all pipeline services.
package errs

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a protected call is rejected because its
// circuit breaker is open. The retry layer never retries this error.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ConfigurationError indicates an invalid or missing configuration value.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Key, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// DatabaseError wraps a failed document-store operation.
type DatabaseError struct {
	Operation  string
	Collection string
	Err        error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error (%s on %s): %v", e.Operation, e.Collection, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ExternalAPIError wraps a failed call to an external provider.
type ExternalAPIError struct {
	API        string
	StatusCode int
	Err        error
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("external API error (%s, status %d): %v", e.API, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("external API error (%s): %v", e.API, e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// EventPublishError wraps a failed event-bus publish.
type EventPublishError struct {
	Event string
	Err   error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("event publish error (%s): %v", e.Event, e.Err)
}

func (e *EventPublishError) Unwrap() error { return e.Err }

// ValidationError indicates a payload that failed schema validation.
// On the consumer side validation failures are acked, not redelivered.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error (%s=%v): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// IsCircuitOpen reports whether err represents a circuit-breaker rejection,
// either ours or one surfaced directly by gobreaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Kind returns a bounded label for metrics. Arbitrary errors map to "other"
// so the errors-by-kind counter keeps bounded cardinality.
func Kind(err error) string {
	var (
		ce *ConfigurationError
		de *DatabaseError
		ae *ExternalAPIError
		pe *EventPublishError
		ve *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case IsCircuitOpen(err):
		return "circuit_open"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &de):
		return "database"
	case errors.As(err, &ae):
		return "external_api"
	case errors.As(err, &pe):
		return "event_publish"
	case errors.As(err, &ve):
		return "validation"
	default:
		return "other"
	}
}
