package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/stock"
)

type fakeReconciler struct {
	drift    map[id.ID]types.Quantity
	failOn   id.ID
	calls    []id.ID
	allCalls int
}

func (f *fakeReconciler) Recompute(_ context.Context, storeID, productID id.ID) (stock.Aggregate, types.Quantity, error) {
	f.calls = append(f.calls, productID)
	if productID == f.failOn {
		return stock.Aggregate{}, 0, errors.New("boom")
	}
	return stock.Aggregate{StoreID: storeID, ProductID: productID}, f.drift[productID], nil
}

func (f *fakeReconciler) ReconcileAll(context.Context) (int, error) {
	f.allCalls++
	return 4, nil
}

type observation struct {
	scope     string
	corrected int
	err       error
}

func newTestHandlers(r Reconciler) (*Handlers, *[]observation) {
	var seen []observation
	h := NewHandlers(r, func(scope string, corrected int, err error) {
		seen = append(seen, observation{scope, corrected, err})
	})
	return h, &seen
}

func TestHandleReconcile(t *testing.T) {
	p1, p2 := id.New(), id.New()
	rec := &fakeReconciler{drift: map[id.ID]types.Quantity{p1: 1500}}
	h, seen := newTestHandlers(rec)

	task, err := NewReconcileTask(id.New(), []id.ID{p1, p2})
	require.NoError(t, err)

	require.NoError(t, h.HandleReconcile(context.Background(), task))
	assert.ElementsMatch(t, []id.ID{p1, p2}, rec.calls)
	require.Len(t, *seen, 1)
	assert.Equal(t, observation{scope: scopeProducts, corrected: 1}, (*seen)[0])
}

func TestHandleReconcile_PartialFailure(t *testing.T) {
	p1, p2 := id.New(), id.New()
	rec := &fakeReconciler{failOn: p1}
	h, seen := newTestHandlers(rec)

	task, err := NewReconcileTask(id.New(), []id.ID{p1, p2})
	require.NoError(t, err)

	err = h.HandleReconcile(context.Background(), task)
	require.Error(t, err)
	assert.Len(t, rec.calls, 2, "a failing product must not stop the rest")
	assert.Error(t, (*seen)[0].err)
}

func TestHandleReconcile_BadPayloadSkipsRetry(t *testing.T) {
	h, _ := newTestHandlers(&fakeReconciler{})

	err := h.HandleReconcile(context.Background(), asynq.NewTask(TaskReconcileProducts, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleReconcile(context.Background(), asynq.NewTask(TaskReconcileProducts, []byte(`{"product_ids":[]}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleReconcileAll(t *testing.T) {
	rec := &fakeReconciler{}
	h, seen := newTestHandlers(rec)

	require.NoError(t, h.HandleReconcileAll(context.Background(), NewReconcileAllTask()))
	assert.Equal(t, 1, rec.allCalls)
	assert.Equal(t, observation{scope: scopeAll, corrected: 4}, (*seen)[0])
}

func TestInline(t *testing.T) {
	p := id.New()
	rec := &fakeReconciler{drift: map[id.ID]types.Quantity{p: -1}}
	h, seen := newTestHandlers(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, NewInline(h).ScheduleReconcile(ctx, id.New(), []id.ID{p}))
	assert.Equal(t, []id.ID{p}, rec.calls)
	assert.Equal(t, 1, (*seen)[0].corrected)

	require.NoError(t, NewInline(h).ScheduleReconcile(ctx, id.New(), nil))
	assert.Len(t, rec.calls, 1)
}

func TestNewReconcileTask_SortsProducts(t *testing.T) {
	a, b := id.New(), id.New()
	store := id.New()

	t1, err := NewReconcileTask(store, []id.ID{a, b})
	require.NoError(t, err)
	t2, err := NewReconcileTask(store, []id.ID{b, a})
	require.NoError(t, err)

	assert.Equal(t, t1.Payload(), t2.Payload())
	assert.Equal(t, TaskReconcileProducts, t1.Type())
}
