package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/domain/settlement"
)

func TestLocal_ExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	first, err := l.Obtain(ctx, "settle:a", time.Minute, 0)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "settle:a", time.Minute, 20*time.Millisecond)
	assert.ErrorIs(t, err, settlement.ErrLockNotObtained)

	_, err = l.Obtain(ctx, "settle:b", time.Minute, 0)
	assert.NoError(t, err, "other keys are independent")

	require.NoError(t, first.Release(ctx))
	_, err = l.Obtain(ctx, "settle:a", time.Minute, 0)
	assert.NoError(t, err)
}

func TestLocal_ExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocal()
	l.now = func() time.Time { return now }

	stale, err := l.Obtain(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Obtain(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	// Releasing the stale lease must not free the new holder.
	require.NoError(t, stale.Release(ctx))
	_, err = l.Obtain(ctx, "k", time.Second, 0)
	assert.ErrorIs(t, err, settlement.ErrLockNotObtained)

	require.NoError(t, fresh.Release(ctx))
}
