package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	appctx "sompos/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

var (
	tracer     = otel.Tracer("sompos/http")
	propagator = propagation.TraceContext{}
)

// Trace continues an incoming W3C trace (traceparent) or starts a new one,
// and makes sure every request has a request id. When no tracer provider
// is installed the trace id falls back to X-Trace-ID or a fresh uuid.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.FullPath(),
			oteltrace.WithSpanKind(oteltrace.SpanKindServer),
			oteltrace.WithAttributes(attribute.String("http.request_id", requestID)),
		)
		defer span.End()

		tc := appctx.TraceContext{RequestID: requestID}
		switch sc := span.SpanContext(); {
		case sc.IsValid():
			tc.TraceID, tc.SpanID = sc.TraceID().String(), sc.SpanID().String()
		case c.GetHeader(HeaderTraceID) != "":
			tc.TraceID = c.GetHeader(HeaderTraceID)
		default:
			tc.TraceID = uuid.NewString()
		}

		c.Request = c.Request.WithContext(appctx.WithTrace(ctx, tc))
		c.Set("trace_id", tc.TraceID)
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}
