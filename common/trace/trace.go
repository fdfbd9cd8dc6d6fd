// Package trace provides trace ID generation and context propagation so a
// gateway request can be correlated with the upstream calls made on its
// behalf.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// HeaderName is the HTTP header used to carry trace IDs between processes.
const HeaderName = "X-Trace-ID"

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

// NewID generates a unique trace ID.
func NewID() string {
	return "t_" + uuid.NewString()
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
