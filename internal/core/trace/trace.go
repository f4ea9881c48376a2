// Package trace carries per-run correlation identifiers through context.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// RunTrace identifies one unit of batch work (one pharmacy, one request).
type RunTrace struct {
	TraceID string
	CNPJ    string
}

type traceKey struct{}

// WithTrace adds RunTrace to context.
func WithTrace(ctx context.Context, t *RunTrace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// Get returns the RunTrace from context, or nil.
func Get(ctx context.Context) *RunTrace {
	if v, ok := ctx.Value(traceKey{}).(*RunTrace); ok {
		return v
	}
	return nil
}

// TraceID returns the trace id from context or generates a new one.
func TraceID(ctx context.Context) string {
	if t := Get(ctx); t != nil {
		return t.TraceID
	}
	return uuid.New().String()
}

// NewRunTrace creates a RunTrace for one pharmacy's processing attempt.
func NewRunTrace(cnpj string) *RunTrace {
	return &RunTrace{
		TraceID: uuid.New().String(),
		CNPJ:    cnpj,
	}
}
