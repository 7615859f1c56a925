package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/ledger"
	"sompos/internal/infrastructure/storage/memory"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func qty(s string) types.Quantity { return types.MustQuantity(s) }

type fixture struct {
	store   *memory.Store
	svc     *ledger.Service
	storeID id.ID
	product id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	return &fixture{
		store:   st,
		svc:     ledger.NewService(st.Batches()),
		storeID: id.New(),
		product: id.New(),
	}
}

func (f *fixture) receive(t *testing.T, q string, cost string, expiry *time.Time, created time.Time) ledger.Batch {
	t.Helper()
	b := ledger.Batch{
		ID:             id.New(),
		StoreID:        f.storeID,
		ProductID:      f.product,
		Quantity:       qty(q),
		UnitCost:       types.MustMoney(cost),
		Supplier:       "acme",
		ExpirationDate: expiry,
		CreatedAt:      created,
	}
	require.NoError(t, f.store.Batches().Create(context.Background(), &b))
	return b
}

func TestConsume_FIFOByExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	b1 := f.receive(t, "5", "2.00", date("2024-01-10"), now)
	b2 := f.receive(t, "5", "3.00", date("2024-01-05"), now.Add(time.Second))

	var plan ledger.ConsumptionPlan
	err := f.store.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		plan, err = f.svc.Consume(ctx, f.storeID, f.product, qty("7"))
		return err
	})
	require.NoError(t, err)

	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, b2.ID, plan.Allocations[0].BatchID)
	assert.Equal(t, qty("5"), plan.Allocations[0].Quantity)
	assert.True(t, plan.Allocations[0].Exhausted)
	assert.Equal(t, b1.ID, plan.Allocations[1].BatchID)
	assert.Equal(t, qty("2"), plan.Allocations[1].Quantity)
	assert.Equal(t, "19", plan.Cost().String())

	got2, err := f.store.Batches().Get(ctx, b2.ID)
	require.NoError(t, err)
	assert.False(t, got2.Active())
	assert.Equal(t, types.Quantity(0), got2.Quantity)

	got1, err := f.store.Batches().Get(ctx, b1.ID)
	require.NoError(t, err)
	assert.True(t, got1.Active())
	assert.Equal(t, qty("3"), got1.Quantity)
}

func TestConsume_NullExpiryLast(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	noExpiry := f.receive(t, "2", "1.00", nil, now.Add(-time.Hour))
	dated := f.receive(t, "2", "1.00", date("2030-01-01"), now)

	plan, err := f.svc.Consume(context.Background(), f.storeID, f.product, qty("3"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, dated.ID, plan.Allocations[0].BatchID)
	assert.Equal(t, noExpiry.ID, plan.Allocations[1].BatchID)
}

func TestConsume_ShortfallWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.receive(t, "5", "1.00", nil, time.Now().UTC())

	_, err := f.svc.Consume(ctx, f.storeID, f.product, qty("6"))
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "6.000", appErr.Details["requested"])
	assert.Equal(t, "5.000", appErr.Details["available"])

	got, err := f.store.Batches().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, qty("5"), got.Quantity)
}

func TestConsume_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Consume(context.Background(), f.storeID, f.product, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestConsume_ProratesAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.AddIncoming(ctx, ledger.Incoming{
		StoreID:   f.storeID,
		ProductID: f.product,
		Quantity:  qty("3"),
		UnitCost:  types.MustMoney("1.00"),
		Attributes: []ledger.Attribute{
			{Name: "color", Value: "red", Quantity: qty("1")},
			{Name: "color", Value: "blue", Quantity: qty("1")},
			{Name: "color", Value: "green", Quantity: qty("1")},
		},
	})
	require.NoError(t, err)

	plan, err := f.svc.Consume(ctx, f.storeID, f.product, qty("1"))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)

	var taken types.Quantity
	for _, a := range plan.Allocations[0].Attributes {
		taken += a.Quantity
	}
	assert.Equal(t, qty("1"), taken)

	got, err := f.store.Batches().Get(ctx, b.ID)
	require.NoError(t, err)
	var left types.Quantity
	for _, a := range got.Attributes {
		assert.GreaterOrEqual(t, a.Quantity, types.Quantity(0))
		left += a.Quantity
	}
	assert.Equal(t, got.Quantity, left)
	assert.Equal(t, qty("2"), left)
}

func TestAddIncoming_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddIncoming(ctx, ledger.Incoming{StoreID: f.storeID, ProductID: f.product, Quantity: 0})
	assert.Error(t, err)

	_, err = f.svc.AddIncoming(ctx, ledger.Incoming{
		StoreID: f.storeID, ProductID: f.product, Quantity: qty("2"), UnitCost: types.MustMoney("-1"),
	})
	assert.Error(t, err)

	_, err = f.svc.AddIncoming(ctx, ledger.Incoming{
		StoreID: f.storeID, ProductID: f.product, Quantity: qty("2"),
		Attributes: []ledger.Attribute{{Name: "size", Value: "L", Quantity: qty("1")}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("tops up active hint", func(t *testing.T) {
		f := newFixture(t)
		b := f.receive(t, "5", "2.00", nil, time.Now().UTC())
		_, err := f.svc.Consume(ctx, f.storeID, f.product, qty("2"))
		require.NoError(t, err)

		got, err := f.svc.Restore(ctx, ledger.RestoreRequest{
			StoreID: f.storeID, ProductID: f.product, Quantity: qty("2"), HintBatchID: &b.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
		assert.Equal(t, qty("5"), got.Quantity)
	})

	t.Run("exhausted hint creates return batch", func(t *testing.T) {
		f := newFixture(t)
		b := f.receive(t, "2", "2.50", date("2031-05-01"), time.Now().UTC())
		_, err := f.svc.Consume(ctx, f.storeID, f.product, qty("2"))
		require.NoError(t, err)

		got, err := f.svc.Restore(ctx, ledger.RestoreRequest{
			StoreID: f.storeID, ProductID: f.product, Quantity: qty("2"), HintBatchID: &b.ID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, b.ID, got.ID)
		assert.Equal(t, ledger.SupplierReturn, got.Supplier)
		assert.True(t, types.MustMoney("2.50").Equal(got.UnitCost))
		require.NotNil(t, got.ExpirationDate)
		assert.True(t, got.ExpirationDate.Equal(*b.ExpirationDate))

		avail, err := f.svc.Available(ctx, f.storeID, f.product)
		require.NoError(t, err)
		assert.Equal(t, qty("2"), avail)
	})

	t.Run("unknown hint uses request cost", func(t *testing.T) {
		f := newFixture(t)
		missing := id.New()
		got, err := f.svc.Restore(ctx, ledger.RestoreRequest{
			StoreID: f.storeID, ProductID: f.product, Quantity: qty("1"),
			HintBatchID: &missing, UnitCost: types.MustMoney("4.00"),
		})
		require.NoError(t, err)
		assert.True(t, types.MustMoney("4.00").Equal(got.UnitCost))
	})
}
