package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "sompos/internal/core/context"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{zap.New(core).Sugar()}, logs
}

func TestWithContext(t *testing.T) {
	l, logs := observed()

	ctx := appctx.WithRequestID(context.Background(), "req-1")
	ctx = appctx.WithActor(ctx, &appctx.ActorContext{ActorID: "cashier-7"})
	ctx = WithLogger(ctx, l)

	Info(ctx, "settled", "transaction_id", "t1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "cashier-7", fields["actor_id"])
	assert.Equal(t, "t1", fields["transaction_id"])
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "store_id")
}

func TestWithContext_NothingToAdd(t *testing.T) {
	l, _ := observed()
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, logs := observed()
	SetDefault(l)
	Warn(context.Background(), "drift corrected")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}
