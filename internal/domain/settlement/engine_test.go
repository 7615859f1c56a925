package settlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/alarm"
	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/cash"
	"sompos/internal/domain/catalog"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/movement"
	"sompos/internal/domain/rollup"
	"sompos/internal/domain/settlement"
	"sompos/internal/domain/stock"
	"sompos/internal/infrastructure/lock"
	"sompos/internal/infrastructure/storage/memory"
)

func qty(s string) types.Quantity { return types.MustQuantity(s) }
func money(s string) types.Money  { return types.MustMoney(s) }

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

type observerSpy struct {
	mu        sync.Mutex
	contended int
	statuses  []string
}

func (o *observerSpy) Observe(_ string, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *observerSpy) LockContended(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.contended++
}

type env struct {
	store     *memory.Store
	engine    *settlement.Engine
	locker    *lock.Local
	alarms    *alarm.Recorder
	observer  *observerSpy
	ledger    *ledger.Service
	stock     *stock.Service
	movements *movement.Service
	cash      *cash.Service
	rollups   *rollup.Service
	storeID   id.ID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.NewStore()
	txm := st.TxManager()
	alarms := &alarm.Recorder{}

	e := &env{
		store:    st,
		locker:   lock.NewLocal(),
		alarms:   alarms,
		observer: &observerSpy{},
		storeID:  id.New(),
	}
	e.ledger = ledger.NewService(st.Batches())
	e.stock = stock.NewService(st.Stock(), st.Batches(), alarms, txm)
	e.movements = movement.NewService(st.Movements(), alarms)
	e.rollups = rollup.NewService(st.Rollups())
	e.cash = cash.NewService(st.Registers(), txm, e.rollups)

	cfg := settlement.DefaultConfig()
	cfg.LockWait = 20 * time.Millisecond
	e.engine = settlement.NewEngine(settlement.Deps{
		Tx:        txm,
		Catalog:   st.Catalog(),
		Ledger:    e.ledger,
		Stock:     e.stock,
		Movements: e.movements,
		Cash:      e.cash,
		Rollups:   e.rollups,
		Markers:   st.Markers(),
		Locker:    e.locker,
		Journal:   st.Journal(),
		Events:    st.Events(),
		Observer:  e.observer,
	}, cfg).WithClock(func() time.Time { return saleTime })
	return e
}

func (e *env) product(t *testing.T, unit catalog.Unit) catalog.Product {
	t.Helper()
	p := catalog.Product{
		ID:            id.New(),
		StoreID:       e.storeID,
		Name:          "widget",
		Unit:          unit,
		Size:          &catalog.Label{ID: id.New(), Name: "M"},
		Category:      &catalog.Label{ID: id.New(), Name: "tools"},
		PurchasePrice: money("2.50"),
	}
	e.store.Catalog().AddProduct(p)
	return p
}

var saleTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var pieces = catalog.Unit{Kind: catalog.UnitKindSystem, Code: "pcs", Display: "pcs"}

func (e *env) receive(t *testing.T, p catalog.Product, q, cost, supplier string, expiry *time.Time) ledger.Batch {
	t.Helper()
	res, err := e.engine.Receive(context.Background(), settlement.ReceiveRequest{
		Incoming: ledger.Incoming{
			StoreID:        e.storeID,
			ProductID:      p.ID,
			Quantity:       qty(q),
			UnitCost:       money(cost),
			Supplier:       supplier,
			ExpirationDate: expiry,
		},
		Actor: "stocker",
	})
	require.NoError(t, err)
	return res.Batch
}

func (e *env) openRegister(t *testing.T, target string) cash.Register {
	t.Helper()
	reg, err := e.cash.Open(context.Background(), e.storeID, money(target), "cashier")
	require.NoError(t, err)
	return reg
}

func (e *env) sale(method settlement.PaymentMethod, lines ...settlement.LineItem) settlement.Transaction {
	return settlement.Transaction{
		ID:            id.New(),
		StoreID:       e.storeID,
		Items:         lines,
		PaymentMethod: method,
		CashierID:     "cashier",
		CreatedAt:     saleTime,
	}
}

func line(p catalog.Product, q, price string) settlement.LineItem {
	return settlement.LineItem{ID: id.New(), ProductID: p.ID, Quantity: qty(q), Price: money(price)}
}

func (e *env) aggregate(t *testing.T, p catalog.Product) types.Quantity {
	t.Helper()
	agg, err := e.stock.Get(context.Background(), e.storeID, p.ID)
	require.NoError(t, err)
	return agg.Quantity
}

func (e *env) available(t *testing.T, p catalog.Product) types.Quantity {
	t.Helper()
	q, err := e.ledger.Available(context.Background(), e.storeID, p.ID)
	require.NoError(t, err)
	return q
}

func (e *env) bucket(t *testing.T, dim rollup.Dimension, value string) rollup.Bucket {
	t.Helper()
	b, err := e.rollups.Get(context.Background(), rollup.Key{
		Dimension: dim, StoreID: e.storeID, Day: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Value: value,
	})
	require.NoError(t, err)
	return b
}

func TestSettle_CashSale(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	early := e.receive(t, p, "5", "2.00", "acme", day("2024-06-01"))
	e.receive(t, p, "5", "3.00", "globex", day("2024-09-01"))
	reg := e.openRegister(t, "100.00")

	tx := e.sale(settlement.PaymentCash, line(p, "3", "10.00"))
	res, err := e.engine.Settle(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, settlement.StatusSettled, res.Status)
	assert.Equal(t, "30", res.Total.String())
	assert.Equal(t, "30", res.Payment.Cash.String())
	assert.Equal(t, "30", res.CashApplied.String())
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "6", res.Lines[0].Cost.String())
	require.Len(t, res.Lines[0].Allocations, 1)
	assert.Equal(t, early.ID, res.Lines[0].Allocations[0].BatchID)

	assert.Equal(t, qty("7"), e.aggregate(t, p))
	assert.Equal(t, qty("7"), e.available(t, p))

	mv := res.Lines[0].Movement
	assert.Equal(t, movement.OperationSale, mv.OperationType)
	assert.Equal(t, qty("10"), mv.QuantityBefore)
	assert.Equal(t, qty("7"), mv.QuantityAfter)
	assert.Equal(t, movement.SaleReference(tx.ID, tx.Items[0].ID), mv.ReferenceID)
	require.NotNil(t, mv.SalePriceAtTime)
	assert.Equal(t, "10", mv.SalePriceAtTime.String())
	require.NotNil(t, mv.PurchasePriceAtTime)
	assert.Equal(t, "2", mv.PurchasePriceAtTime.String())

	got, err := e.cash.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "130", got.CurrentBalance.String())

	summary := e.bucket(t, rollup.DimSalesSummary, "cash")
	assert.Equal(t, "30", summary.Revenue.String())
	assert.Equal(t, int64(1), summary.Transactions)
	assert.Equal(t, "6", e.bucket(t, rollup.DimSupplier, "acme").Cost.String())
	assert.Equal(t, int64(1), e.bucket(t, rollup.DimCategory, "tools").ProductsCount)
	assert.Equal(t, qty("3"), e.bucket(t, rollup.DimUnitType, "system/pcs").Quantity)

	journal := e.store.Journal().Entries(tx.ID)
	require.Len(t, journal, 2)
	assert.Equal(t, settlement.ActionCreated, journal[0].Action)
	assert.Equal(t, settlement.ActionSettled, journal[1].Action)
}

func TestSettle_ReplayIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "10", "2.00", "acme", nil)
	reg := e.openRegister(t, "0")

	tx := e.sale(settlement.PaymentCash, line(p, "2", "5.00"))
	first, err := e.engine.Settle(ctx, tx)
	require.NoError(t, err)

	second, err := e.engine.Settle(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusAlreadySettled, second.Status)
	assert.Equal(t, first.Lines[0].Movement.ID, second.Lines[0].Movement.ID)

	assert.Equal(t, qty("8"), e.aggregate(t, p))
	got, err := e.cash.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", got.CurrentBalance.String())
	assert.Equal(t, int64(1), e.bucket(t, rollup.DimSalesSummary, "cash").Transactions)

	settled := 0
	for _, ev := range e.store.Events().Published() {
		if ev.EventType == settlement.EventSaleSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
}

func (e *env) assertNoBucket(t *testing.T, dim rollup.Dimension, value string) {
	t.Helper()
	_, err := e.rollups.Get(context.Background(), rollup.Key{
		Dimension: dim, StoreID: e.storeID, Day: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Value: value,
	})
	assert.True(t, apperror.IsNotFound(err), "bucket %s/%s should not exist: %v", dim, value, err)
}

func TestSettle_ShortfallLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	plenty := e.product(t, pieces)
	scarce := e.product(t, pieces)
	e.receive(t, plenty, "10", "1.00", "acme", nil)
	e.receive(t, scarce, "1", "1.00", "acme", nil)
	reg := e.openRegister(t, "50.00")
	eventsBefore := len(e.store.Events().Published())

	tx := e.sale(settlement.PaymentCash, line(plenty, "4", "2.00"), line(scarce, "2", "2.00"))
	_, err := e.engine.Settle(ctx, tx)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	got, err := e.cash.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", got.CurrentBalance.String())
	history, err := e.cash.History(ctx, reg.ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "only the opening entry")

	e.assertNoBucket(t, rollup.DimSalesSummary, "cash")
	e.assertNoBucket(t, rollup.DimFinancial, "")
	e.assertNoBucket(t, rollup.DimProduct, plenty.ID.String())
	e.assertNoBucket(t, rollup.DimCategory, "tools")

	assert.Equal(t, qty("10"), e.available(t, plenty))
	assert.Equal(t, qty("10"), e.aggregate(t, plenty))
	assert.Equal(t, qty("1"), e.available(t, scarce))

	_, err = e.store.Markers().Get(ctx, tx.ID)
	assert.True(t, apperror.IsNotFound(err))
	_, err = e.store.Movements().GetByReference(ctx, movement.SaleReference(tx.ID, tx.Items[0].ID))
	assert.True(t, apperror.IsNotFound(err))
	assert.Len(t, e.store.Events().Published(), eventsBefore)
}

func TestSettle_ConcurrentSalesNeverOversell(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "5", "1.00", "acme", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.engine.Settle(ctx, e.sale(settlement.PaymentCard, line(p, "3", "4.00")))
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, qty("2"), e.aggregate(t, p))
	assert.Equal(t, qty("2"), e.available(t, p))
}

func TestSettle_ConcurrentSalesRollUpOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "100", "1.00", "acme", nil)
	reg := e.openRegister(t, "10.00")

	const buyers = 20
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.engine.Settle(ctx, e.sale(settlement.PaymentCash, line(p, "1", "5.00")))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	summary := e.bucket(t, rollup.DimSalesSummary, "cash")
	assert.Equal(t, int64(buyers), summary.Transactions)
	assert.Equal(t, "100", summary.Revenue.String())
	assert.Equal(t, qty("20"), summary.Quantity)

	product := e.bucket(t, rollup.DimProduct, p.ID.String())
	assert.Equal(t, qty("20"), product.Quantity)
	assert.Equal(t, "100", product.Revenue.String())

	financial := e.bucket(t, rollup.DimFinancial, "")
	assert.Equal(t, "100", financial.CashTotal.String())
	assert.Equal(t, int64(1), e.bucket(t, rollup.DimCategory, "tools").ProductsCount)

	got, err := e.cash.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "110", got.CurrentBalance.String())
	assert.Equal(t, qty("80"), e.aggregate(t, p))
}

func TestSettle_LockContention(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "5", "1.00", "acme", nil)

	tx := e.sale(settlement.PaymentCard, line(p, "1", "4.00"))
	held, err := e.locker.Obtain(ctx, "settle:"+tx.ID.String(), time.Minute, 0)
	require.NoError(t, err)

	_, err = e.engine.Settle(ctx, tx)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyProcessing))
	assert.Equal(t, 1, e.observer.contended)
	assert.Equal(t, qty("5"), e.aggregate(t, p))

	require.NoError(t, held.Release(ctx))
	res, err := e.engine.Settle(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusSettled, res.Status)
}

func TestSettle_ConvertsUnits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	kg := catalog.Unit{Kind: catalog.UnitKindSystem, Code: "kg", Display: "kg", AllowDecimal: true}
	p := e.product(t, kg)
	e.receive(t, p, "2", "4.00", "acme", nil)

	li := line(p, "500", "0.01")
	li.Unit = "g"
	res, err := e.engine.Settle(ctx, e.sale(settlement.PaymentCard, li))
	require.NoError(t, err)

	assert.Equal(t, qty("0.5"), res.Lines[0].Quantity)
	assert.Equal(t, "5", res.Total.String())
	assert.Equal(t, "2", res.Lines[0].Cost.String())
	assert.Equal(t, qty("1.5"), e.aggregate(t, p))
}

func TestSettle_RejectsFractionalPieces(t *testing.T) {
	e := newEnv(t)
	p := e.product(t, pieces)
	e.receive(t, p, "5", "1.00", "acme", nil)

	_, err := e.engine.Settle(context.Background(), e.sale(settlement.PaymentCard, line(p, "1.5", "4.00")))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, qty("5"), e.aggregate(t, p))
}

func TestSettle_CashWithoutOpenRegister(t *testing.T) {
	e := newEnv(t)
	p := e.product(t, pieces)
	e.receive(t, p, "5", "1.00", "acme", nil)

	res, err := e.engine.Settle(context.Background(), e.sale(settlement.PaymentCash, line(p, "1", "4.00")))
	require.NoError(t, err)
	assert.True(t, res.CashApplied.IsZero())
	assert.Equal(t, "4", res.Payment.Cash.String())
}

func TestReverse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	first := e.receive(t, p, "2", "2.00", "acme", day("2024-06-01"))
	e.receive(t, p, "5", "3.00", "globex", day("2024-09-01"))
	reg := e.openRegister(t, "50.00")

	tx := e.sale(settlement.PaymentCash, line(p, "3", "10.00"))
	_, err := e.engine.Settle(ctx, tx)
	require.NoError(t, err)

	res, err := e.engine.Reverse(ctx, tx.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusReversed, res.Status)
	assert.Equal(t, "30", res.CashRefunded.String())
	require.Len(t, res.Movements, 1)
	assert.Equal(t, movement.OperationReturn, res.Movements[0].OperationType)
	assert.Equal(t, qty("3"), res.Movements[0].QuantityDelta)

	assert.Equal(t, qty("7"), e.aggregate(t, p))
	assert.Equal(t, qty("7"), e.available(t, p))

	// The exhausted batch comes back as a return batch with its cost.
	restored, err := e.store.Batches().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, restored.Active())
	active, err := e.ledger.ListActive(ctx, e.storeID, p.ID)
	require.NoError(t, err)
	var returned *ledger.Batch
	for i := range active {
		if active[i].Supplier == ledger.SupplierReturn {
			returned = &active[i]
		}
	}
	require.NotNil(t, returned)
	assert.Equal(t, qty("2"), returned.Quantity)
	assert.Equal(t, "2", returned.UnitCost.String())

	got, err := e.cash.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", got.CurrentBalance.String())

	refund := e.bucket(t, rollup.DimRefund, "cash")
	assert.Equal(t, "30", refund.Revenue.String())
	assert.Equal(t, "30", e.bucket(t, rollup.DimSalesSummary, "cash").Revenue.String(), "sales buckets only grow")

	again, err := e.engine.Reverse(ctx, tx.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusAlreadyReversed, again.Status)
	assert.Equal(t, qty("7"), e.aggregate(t, p))

	_, err = e.engine.Reverse(ctx, id.New(), "manager")
	assert.True(t, apperror.IsNotFound(err))
}

func TestReverse_ClosedRegisterRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "5", "1.00", "acme", nil)
	reg := e.openRegister(t, "0")

	tx := e.sale(settlement.PaymentCash, line(p, "2", "3.00"))
	_, err := e.engine.Settle(ctx, tx)
	require.NoError(t, err)
	_, err = e.cash.Close(ctx, reg.ID, money("6.00"), "cashier", "")
	require.NoError(t, err)

	_, err = e.engine.Reverse(ctx, tx.ID, "manager")
	assert.True(t, apperror.HasCode(err, apperror.CodeRegisterClosed))

	assert.Equal(t, qty("3"), e.aggregate(t, p))
	m, err := e.store.Markers().Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.MarkerSettled, m.Status)
}

func TestAdjust(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "4", "2.00", "acme", nil)

	down, err := e.engine.Adjust(ctx, settlement.AdjustRequest{
		StoreID: e.storeID, ProductID: p.ID, Delta: qty("-3"), Reason: "damaged", Actor: "manager",
	})
	require.NoError(t, err)
	require.NotNil(t, down.Plan)
	assert.Equal(t, qty("3"), down.Plan.Total())
	assert.Equal(t, movement.OperationCorrection, down.Movement.OperationType)
	assert.Equal(t, movement.CorrectionReference(down.CorrectionID), down.Movement.ReferenceID)
	assert.Equal(t, qty("1"), e.aggregate(t, p))

	up, err := e.engine.Adjust(ctx, settlement.AdjustRequest{
		StoreID: e.storeID, ProductID: p.ID, Delta: qty("2"), Reason: "found in back room", Actor: "manager",
	})
	require.NoError(t, err)
	require.NotNil(t, up.Batch)
	assert.Equal(t, ledger.SupplierCorrection, up.Batch.Supplier)
	assert.Equal(t, "2.5", up.Batch.UnitCost.String(), "falls back to purchase price")
	assert.Equal(t, qty("3"), e.aggregate(t, p))

	_, err = e.engine.Adjust(ctx, settlement.AdjustRequest{
		StoreID: e.storeID, ProductID: p.ID, Delta: qty("-10"), Reason: "shrinkage",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	_, err = e.engine.Adjust(ctx, settlement.AdjustRequest{StoreID: e.storeID, ProductID: p.ID, Reason: "noop"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestAggregateMatchesBatchesAfterMixedOperations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.product(t, pieces)
	e.receive(t, p, "6", "1.00", "acme", nil)
	e.receive(t, p, "4", "1.50", "globex", day("2024-07-01"))
	e.openRegister(t, "20.00")

	a := e.sale(settlement.PaymentCash, line(p, "3", "5.00"))
	b := e.sale(settlement.PaymentCard, line(p, "4", "5.00"))
	for _, tx := range []settlement.Transaction{a, b} {
		_, err := e.engine.Settle(ctx, tx)
		require.NoError(t, err)
	}
	_, err := e.engine.Reverse(ctx, a.ID, "manager")
	require.NoError(t, err)
	_, err = e.engine.Adjust(ctx, settlement.AdjustRequest{
		StoreID: e.storeID, ProductID: p.ID, Delta: qty("-1"), Reason: "sample",
	})
	require.NoError(t, err)

	agg, drift, err := e.stock.Recompute(ctx, e.storeID, p.ID)
	require.NoError(t, err)
	assert.Zero(t, drift)
	assert.Equal(t, qty("5"), agg.Quantity)
	assert.Zero(t, e.alarms.Count(alarm.KindStockDrift))
	assert.Zero(t, e.alarms.Count(alarm.KindNegativeStock))
}
