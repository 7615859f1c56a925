package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/id"
)

func TestClient_ScheduleReconcileDeduplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	store, p1, p2 := id.New(), id.New(), id.New()

	require.NoError(t, c.ScheduleReconcile(ctx, store, []id.ID{p1, p2}))
	require.NoError(t, c.ScheduleReconcile(ctx, store, []id.ID{p2, p1}))

	pending, err := mr.List("asynq:{" + QueueReconcile + "}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, c.ScheduleReconcile(ctx, store, []id.ID{p1}))
	pending, err = mr.List("asynq:{" + QueueReconcile + "}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestClient_ScheduleReconcileNoProducts(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.ScheduleReconcile(context.Background(), id.New(), nil))
	assert.False(t, mr.Exists("asynq:{"+QueueReconcile+"}:pending"))
}
