package event

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

type correlation struct {
	traceID trace.TraceID
	spanID  trace.SpanID
}

// ContextWithCorrelation returns a context carrying trace and span IDs.
// Events recorded under it can be stamped via CorrelationFromContext.
func ContextWithCorrelation(ctx context.Context, traceID trace.TraceID, spanID trace.SpanID) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlation{traceID: traceID, spanID: spanID})
}

// CorrelationFromContext extracts trace and span IDs placed by
// ContextWithCorrelation. ok is false when the context carries none.
func CorrelationFromContext(ctx context.Context) (traceID trace.TraceID, spanID trace.SpanID, ok bool) {
	c, ok := ctx.Value(correlationKey{}).(correlation)
	if !ok {
		return trace.TraceID{}, trace.SpanID{}, false
	}
	return c.traceID, c.spanID, true
}
