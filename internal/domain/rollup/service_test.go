package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/cash"
	"sompos/internal/domain/rollup"
	"sompos/internal/infrastructure/storage/memory"
)

func money(s string) types.Money { return types.MustMoney(s) }

func sampleSale(storeID id.ID, at time.Time) rollup.Sale {
	p1, p2 := id.New(), id.New()
	customer := id.New()
	return rollup.Sale{
		TransactionID: id.New(),
		StoreID:       storeID,
		At:            at,
		PaymentMethod: "debt",
		CustomerID:    &customer,
		Total:         money("50.00"),
		Cash:          money("20.00"),
		Debt:          money("30.00"),
		Lines: []rollup.SaleLine{
			{
				ProductID: p1, Quantity: types.NewQuantityFromInt(3), Revenue: money("30.00"), Cost: money("18.00"),
				UnitLabel: "system/pcs", Category: "drinks",
				Suppliers: []rollup.SupplierShare{
					{Supplier: "acme", Quantity: types.NewQuantityFromInt(2), Cost: money("12.00")},
					{Supplier: "globex", Quantity: types.NewQuantityFromInt(1), Cost: money("6.00")},
				},
			},
			{
				ProductID: p2, Quantity: types.NewQuantityFromInt(2), Revenue: money("20.00"), Cost: money("10.00"),
				UnitLabel: "system/pcs", Category: "drinks", SizeName: "XL",
				Suppliers: []rollup.SupplierShare{{Supplier: "acme", Quantity: types.NewQuantityFromInt(2), Cost: money("10.00")}},
			},
		},
	}
}

func TestApplySale_Buckets(t *testing.T) {
	st := memory.NewStore()
	svc := rollup.NewService(st.Rollups())
	ctx := context.Background()
	storeID := id.New()
	at := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	sale := sampleSale(storeID, at)

	applied, err := svc.ApplySale(ctx, sale)
	require.NoError(t, err)
	assert.True(t, applied)

	day := rollup.Day(at)
	get := func(dim rollup.Dimension, v string) rollup.Bucket {
		b, err := svc.Get(ctx, rollup.Key{Dimension: dim, StoreID: storeID, Day: day, Value: v})
		require.NoError(t, err)
		return b
	}

	ss := get(rollup.DimSalesSummary, "debt")
	assert.Equal(t, int64(1), ss.Transactions)
	assert.Equal(t, types.NewQuantityFromInt(5), ss.Quantity)
	assert.Equal(t, "50", ss.Revenue.String())

	cat := get(rollup.DimCategory, "drinks")
	assert.Equal(t, int64(1), cat.Transactions, "one transaction even with two lines")
	assert.Equal(t, int64(2), cat.ProductsCount)
	assert.Equal(t, "50", cat.AverageTransaction().String())

	unit := get(rollup.DimUnitType, "system/pcs")
	assert.Equal(t, "10", unit.AverageUnitPrice().String())

	size := get(rollup.DimSize, "XL")
	assert.Equal(t, types.NewQuantityFromInt(2), size.Quantity)

	acme := get(rollup.DimSupplier, "acme")
	assert.Equal(t, types.NewQuantityFromInt(4), acme.Quantity)
	assert.Equal(t, "40", acme.Revenue.String())
	assert.Equal(t, "22", acme.Cost.String())
	globex := get(rollup.DimSupplier, "globex")
	assert.Equal(t, "10", globex.Revenue.String())

	cust := get(rollup.DimCustomer, sale.CustomerID.String())
	assert.Equal(t, "30", cust.DebtAdded.String())

	fin := get(rollup.DimFinancial, "")
	assert.Equal(t, "20", fin.CashTotal.String())
	assert.Equal(t, "30", fin.DebtAdded.String())
	assert.Equal(t, "22", fin.Margin().String())
}

func TestApplySale_Idempotent(t *testing.T) {
	st := memory.NewStore()
	svc := rollup.NewService(st.Rollups())
	ctx := context.Background()
	storeID := id.New()
	sale := sampleSale(storeID, time.Now())

	for i := 0; i < 3; i++ {
		_, err := svc.ApplySale(ctx, sale)
		require.NoError(t, err)
	}

	b, err := svc.Get(ctx, rollup.Key{Dimension: rollup.DimSalesSummary, StoreID: storeID, Day: sale.At, Value: "debt"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Transactions)
	assert.Equal(t, "50", b.Revenue.String())
}

func TestApplyRefund_SeparateDimension(t *testing.T) {
	st := memory.NewStore()
	svc := rollup.NewService(st.Rollups())
	ctx := context.Background()
	storeID := id.New()
	sale := sampleSale(storeID, time.Now())

	_, err := svc.ApplySale(ctx, sale)
	require.NoError(t, err)
	refund := rollup.Refund{
		TransactionID: sale.TransactionID, StoreID: storeID, At: time.Now(),
		PaymentMethod: "debt", Total: sale.Total, Cash: sale.Cash, Quantity: types.NewQuantityFromInt(5),
	}
	applied, err := svc.ApplyRefund(ctx, refund)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = svc.ApplyRefund(ctx, refund)
	require.NoError(t, err)
	assert.False(t, applied)

	ss, err := svc.Get(ctx, rollup.Key{Dimension: rollup.DimSalesSummary, StoreID: storeID, Day: sale.At, Value: "debt"})
	require.NoError(t, err)
	assert.Equal(t, "50", ss.Revenue.String(), "historical bucket unchanged")

	rows, err := svc.List(ctx, rollup.Query{Dimension: rollup.DimRefund, StoreID: storeID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Transactions)
}

func TestLinkShiftClose(t *testing.T) {
	st := memory.NewStore()
	svc := rollup.NewService(st.Rollups())
	ctx := context.Background()
	storeID := id.New()
	closed := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)

	sc := cash.ShiftClose{StoreID: storeID, RegisterID: id.New(), ClosedAt: closed, Discrepancy: money("-2.50")}
	require.NoError(t, svc.LinkShiftClose(ctx, sc))
	require.NoError(t, svc.LinkShiftClose(ctx, sc))

	b, err := svc.Get(ctx, rollup.Key{Dimension: rollup.DimFinancial, StoreID: storeID, Day: closed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.ShiftsClosed)
	assert.Equal(t, "-2.5", b.Discrepancy.String())
}

func TestList_UnknownDimension(t *testing.T) {
	svc := rollup.NewService(memory.NewStore().Rollups())
	_, err := svc.List(context.Background(), rollup.Query{Dimension: "bogus", StoreID: id.New()})
	assert.Error(t, err)
}
