package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestGetTrace(t *testing.T) {
	ctx := context.Background()
	_, ok := GetTrace(ctx)
	assert.False(t, ok)

	ctx = WithTrace(ctx, TraceContext{TraceID: "t1", SpanID: "s1", RequestID: "r1"})
	got, ok := GetTrace(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", got.TraceID)
	assert.Equal(t, "r1", GetRequestID(ctx))

	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID: oteltrace.TraceID{1, 2, 3},
		SpanID:  oteltrace.SpanID{4, 5, 6},
	})
	ctx = oteltrace.ContextWithSpanContext(ctx, sc)

	got, _ = GetTrace(ctx)
	assert.Equal(t, sc.TraceID().String(), got.TraceID)
	assert.Equal(t, sc.SpanID().String(), got.SpanID)
	assert.Equal(t, "r1", got.RequestID)
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "task-1")
	assert.Equal(t, "task-1", GetRequestID(ctx))

	ctx = WithTrace(context.Background(), TraceContext{TraceID: "t1"})
	ctx = WithRequestID(ctx, "task-2")
	got, _ := GetTrace(ctx)
	assert.Equal(t, "t1", got.TraceID)
	assert.Equal(t, "task-2", got.RequestID)
}

func TestActorOr(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "system", ActorOr(ctx, "system"))

	ctx = WithActor(ctx, &ActorContext{ActorID: "cashier-7", StoreID: "s"})
	assert.Equal(t, "cashier-7", ActorOr(ctx, "system"))
	assert.Equal(t, "cashier-7", GetActorID(ctx))
}
