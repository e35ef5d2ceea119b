package events

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID carried by ctx, minting a fresh
// one when none is present.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// HasCorrelationID reports whether ctx already carries a correlation ID.
func HasCorrelationID(ctx context.Context) bool {
	id, ok := ctx.Value(correlationKey{}).(string)
	return ok && id != ""
}
