package context

import (
	"context"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// TraceContext carries the correlation ids attached to log lines and
// journal entries.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace stores t in ctx.
func WithTrace(ctx context.Context, t TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, t)
}

// WithRequestID sets only the request id, keeping any trace ids already in ctx.
// Background tasks use their task id here.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	t, _ := ctx.Value(traceContextKey{}).(TraceContext)
	t.RequestID = requestID
	return WithTrace(ctx, t)
}

// GetTrace returns the correlation ids in ctx. An active OpenTelemetry span
// overrides the stored trace and span ids.
func GetTrace(ctx context.Context) (TraceContext, bool) {
	t, ok := ctx.Value(traceContextKey{}).(TraceContext)

	if sc := oteltrace.SpanContextFromContext(ctx); sc.IsValid() {
		t.TraceID = sc.TraceID().String()
		t.SpanID = sc.SpanID().String()
		ok = true
	}
	return t, ok
}

// GetRequestID returns the request id or "".
func GetRequestID(ctx context.Context) string {
	t, _ := ctx.Value(traceContextKey{}).(TraceContext)
	return t.RequestID
}
