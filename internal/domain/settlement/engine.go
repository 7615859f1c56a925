package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/tx"
	"sompos/internal/core/types"
	"sompos/internal/domain/cash"
	"sompos/internal/domain/catalog"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/movement"
	"sompos/internal/domain/rollup"
	"sompos/internal/domain/stock"
	"sompos/pkg/logger"
)

var tracer = otel.Tracer("sompos/settlement")

// Config tunes locking and retries.
type Config struct {
	LockTTL      time.Duration
	LockWait     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LockTTL:      30 * time.Second,
		LockWait:     5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 50 * time.Millisecond,
	}
}

// Deps wires the engine. Journal, Events, Reconciler and Observer are optional.
type Deps struct {
	Tx         tx.Manager
	Catalog    catalog.Provider
	Ledger     *ledger.Service
	Stock      *stock.Service
	Movements  *movement.Service
	Cash       *cash.Service
	Rollups    *rollup.Service
	Markers    MarkerRepository
	Locker     Locker
	Journal    Journal
	Events     Events
	Reconciler ReconcileScheduler
	Observer   Observer
}

// Engine orchestrates settlement and reversal.
type Engine struct {
	Deps
	cfg Config
	now func() time.Time
}

// NewEngine creates a settlement engine.
func NewEngine(d Deps, cfg Config) *Engine {
	if d.Journal == nil {
		d.Journal = nopJournal{}
	}
	if d.Events == nil {
		d.Events = nopEvents{}
	}
	if d.Reconciler == nil {
		d.Reconciler = nopScheduler{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Engine{Deps: d, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func lockKey(txID id.ID) string { return "settle:" + txID.String() }

// --- Settle ---

// Settle applies a sale exactly once. A replay of a settled transaction returns
// the stored result with status already_settled.
func (e *Engine) Settle(ctx context.Context, t Transaction) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "settlement.settle",
		trace.WithAttributes(attribute.String("transaction.id", t.ID.String())))
	defer span.End()

	start := time.Now()
	defer func() { e.Observer.Observe("settle", outcome(string(res.Status), err), time.Since(start)) }()

	if err := t.Validate(); err != nil {
		return Result{}, err
	}
	pay, err := t.NormalizePayment()
	if err != nil {
		return Result{}, err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = e.now()
	}

	if m, err := e.Markers.Get(ctx, t.ID); err == nil {
		return replayResult(m), nil
	} else if !apperror.IsNotFound(err) {
		return Result{}, fmt.Errorf("get marker: %w", err)
	}

	lock, err := e.obtain(ctx, "settle", lockKey(t.ID))
	if err != nil {
		return Result{}, err
	}
	defer e.release(ctx, lock)

	err = e.withRetry(ctx, func() error {
		return e.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			res, err = e.settleTx(ctx, t, pay)
			return err
		})
	})
	if err != nil {
		logger.Warn(ctx, "settlement failed", "transaction_id", t.ID, "error", err)
		return Result{}, err
	}

	if res.Status == StatusSettled {
		e.scheduleReconcile(ctx, t.StoreID, productIDs(res.Lines))
		logger.Info(ctx, "transaction settled",
			"transaction_id", t.ID,
			"store_id", t.StoreID,
			"total", res.Total.String(),
			"lines", len(res.Lines),
		)
	}
	return res, nil
}

func replayResult(m Marker) Result {
	r := m.Result
	r.Status = StatusAlreadySettled
	return r
}

type preparedLine struct {
	item    LineItem
	product catalog.Product
	baseQty types.Quantity
	plan    ledger.ConsumptionPlan
}

func (e *Engine) settleTx(ctx context.Context, t Transaction, pay Payment) (Result, error) {
	if m, err := e.Markers.GetForUpdate(ctx, t.ID); err == nil {
		return replayResult(m), nil
	} else if !apperror.IsNotFound(err) {
		return Result{}, fmt.Errorf("get marker: %w", err)
	}

	lines, err := e.prepare(ctx, t)
	if err != nil {
		return Result{}, err
	}

	// Consume everything first; any shortfall aborts before stock rows move.
	for i := range lines {
		l := &lines[i]
		l.plan, err = e.Ledger.Consume(ctx, t.StoreID, l.product.ID, l.baseQty)
		if err != nil {
			return Result{}, err
		}
	}

	res := Result{
		TransactionID: t.ID,
		Status:        StatusSettled,
		Total:         t.Total(),
		Payment:       pay,
		SettledAt:     e.now(),
	}
	sale := rollup.Sale{
		TransactionID: t.ID,
		StoreID:       t.StoreID,
		At:            t.CreatedAt,
		PaymentMethod: string(t.PaymentMethod),
		CustomerID:    t.CustomerID,
		Total:         res.Total,
		Cash:          pay.Cash,
		Card:          pay.Card,
		Transfer:      pay.Transfer,
		Debt:          pay.Debt,
	}

	for _, l := range lines {
		lr, err := e.recordSaleLine(ctx, t, l)
		if err != nil {
			return Result{}, err
		}
		res.Lines = append(res.Lines, lr)
		sale.Lines = append(sale.Lines, saleLine(l, lr))
	}

	res.CashApplied, err = e.Cash.SettleSale(ctx, t.StoreID, t.ID, pay.Cash, t.CashierID)
	if err != nil {
		return Result{}, fmt.Errorf("settle cash: %w", err)
	}

	if _, err := e.Rollups.ApplySale(ctx, sale); err != nil {
		return Result{}, fmt.Errorf("apply rollups: %w", err)
	}

	if err := e.Markers.Insert(ctx, Marker{
		TransactionID: t.ID,
		StoreID:       t.StoreID,
		Status:        MarkerSettled,
		Transaction:   t,
		Result:        res,
		SettledAt:     res.SettledAt,
	}); err != nil {
		return Result{}, fmt.Errorf("insert marker: %w", err)
	}

	if err := e.Journal.Record(ctx, JournalEntry{
		EntityType: "transaction", EntityID: t.ID, Action: ActionCreated, Actor: t.CashierID,
		Details: map[string]any{
			"payment_method": t.PaymentMethod,
			"items":          len(t.Items),
			"total":          res.Total.String(),
		},
	}); err != nil {
		return Result{}, fmt.Errorf("journal: %w", err)
	}
	if err := e.Journal.Record(ctx, JournalEntry{
		EntityType: "transaction", EntityID: t.ID, Action: ActionSettled, Actor: t.CashierID,
		Details: map[string]any{"result": res},
	}); err != nil {
		return Result{}, fmt.Errorf("journal: %w", err)
	}

	if err := e.Events.Publish(ctx, Event{
		AggregateType: "transaction", AggregateID: t.ID, EventType: EventSaleSettled, Payload: res,
	}); err != nil {
		return Result{}, fmt.Errorf("publish event: %w", err)
	}
	return res, nil
}

// prepare loads products, converts quantities to the product unit, checks unit
// rules and orders lines by product id so concurrent sales lock rows in the same order.
func (e *Engine) prepare(ctx context.Context, t Transaction) ([]preparedLine, error) {
	ids := make([]id.ID, 0, len(t.Items))
	seen := make(map[id.ID]struct{})
	for _, li := range t.Items {
		if _, ok := seen[li.ProductID]; !ok {
			seen[li.ProductID] = struct{}{}
			ids = append(ids, li.ProductID)
		}
	}
	products, err := e.Catalog.GetProducts(ctx, t.StoreID, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]preparedLine, 0, len(t.Items))
	for _, li := range t.Items {
		p, ok := products[li.ProductID]
		if !ok {
			return nil, apperror.NewNotFound("product", li.ProductID.String())
		}
		qty, err := catalog.Convert(li.Quantity, li.Unit, p.Unit.Code)
		if err != nil {
			return nil, err
		}
		if err := p.Unit.ValidateQuantity(qty); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				return nil, appErr.WithDetail("item_id", li.ID.String())
			}
			return nil, err
		}
		lines = append(lines, preparedLine{item: li, product: p, baseQty: qty})
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if c := id.Compare(lines[i].product.ID, lines[j].product.ID); c != 0 {
			return c < 0
		}
		return id.Less(lines[i].item.ID, lines[j].item.ID)
	})
	return lines, nil
}

func (e *Engine) recordSaleLine(ctx context.Context, t Transaction, l preparedLine) (LineResult, error) {
	sd, err := e.Stock.ApplyDelta(ctx, t.StoreID, l.product.ID, -l.baseQty)
	if err != nil {
		return LineResult{}, err
	}
	if sd.Clamped {
		return LineResult{}, apperror.NewConsistencyAlarm("negative_stock",
			"stock aggregate would go negative while batches covered the sale").
			WithDetail("product_id", l.product.ID.String()).
			WithDetail("before", sd.Before.String()).
			WithDetail("requested", l.baseQty.String())
	}

	revenue := l.item.Amount()
	unitPrice := types.RoundMoney(revenue.Div(l.baseQty.Decimal()))
	purchase := l.plan.AverageUnitCost()

	rec := movement.Record{
		ID:                  id.New(),
		StoreID:             t.StoreID,
		ProductID:           l.product.ID,
		QuantityBefore:      sd.Before,
		QuantityAfter:       sd.Before - l.baseQty,
		QuantityDelta:       -l.baseQty,
		OperationType:       movement.OperationSale,
		ReferenceID:         movement.SaleReference(t.ID, l.item.ID),
		Actor:               t.CashierID,
		SalePriceAtTime:     &unitPrice,
		PurchasePriceAtTime: &purchase,
		CreatedAt:           e.now(),
	}
	if len(l.plan.Allocations) > 0 {
		b := l.plan.Allocations[0].BatchID
		rec.BatchID = &b
	}
	if l.product.Size != nil {
		s := l.product.Size.ID
		rec.SizeID = &s
	}
	rec, err = e.Movements.Append(ctx, rec)
	if err != nil {
		return LineResult{}, err
	}

	return LineResult{
		ItemID:       l.item.ID,
		ProductID:    l.product.ID,
		Quantity:     l.baseQty,
		Revenue:      revenue,
		Cost:         l.plan.Cost(),
		Movement:     rec,
		Allocations:  l.plan.Allocations,
		UnitPrice:    unitPrice,
		PurchaseCost: purchase,
	}, nil
}

func saleLine(l preparedLine, lr LineResult) rollup.SaleLine {
	sl := rollup.SaleLine{
		ProductID: lr.ProductID,
		Quantity:  lr.Quantity,
		Revenue:   lr.Revenue,
		Cost:      lr.Cost,
		UnitLabel: l.product.Unit.TypeLabel(),
		Category:  l.product.CategoryName(),
	}
	if l.product.Size != nil {
		sl.SizeName = l.product.Size.Name
	}
	for _, sh := range l.plan.BySupplier() {
		sl.Suppliers = append(sl.Suppliers, rollup.SupplierShare{
			Supplier: sh.Supplier,
			Quantity: sh.Quantity,
			Cost:     sh.Cost,
		})
	}
	return sl
}

// --- Reverse ---

// Reverse undoes a settled sale: stock goes back to the batches it came from,
// cash is paid out and refund rollups are recorded. Reversing twice is a no-op.
func (e *Engine) Reverse(ctx context.Context, txID id.ID, actor string) (res ReverseResult, err error) {
	ctx, span := tracer.Start(ctx, "settlement.reverse",
		trace.WithAttributes(attribute.String("transaction.id", txID.String())))
	defer span.End()

	start := time.Now()
	defer func() { e.Observer.Observe("reverse", outcome(string(res.Status), err), time.Since(start)) }()

	m, err := e.Markers.Get(ctx, txID)
	if apperror.IsNotFound(err) {
		return ReverseResult{}, apperror.NewNotFound("transaction", txID.String())
	}
	if err != nil {
		return ReverseResult{}, fmt.Errorf("get marker: %w", err)
	}
	if m.Status == MarkerReversed {
		return alreadyReversed(m), nil
	}

	lock, err := e.obtain(ctx, "reverse", lockKey(txID))
	if err != nil {
		return ReverseResult{}, err
	}
	defer e.release(ctx, lock)

	err = e.withRetry(ctx, func() error {
		return e.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			var err error
			res, err = e.reverseTx(ctx, txID, actor)
			return err
		})
	})
	if err != nil {
		logger.Warn(ctx, "reversal failed", "transaction_id", txID, "error", err)
		return ReverseResult{}, err
	}

	if res.Status == StatusReversed {
		e.scheduleReconcile(ctx, m.StoreID, productIDs(m.Result.Lines))
		logger.Info(ctx, "transaction reversed",
			"transaction_id", txID,
			"store_id", m.StoreID,
			"cash_refunded", res.CashRefunded.String(),
		)
	}
	return res, nil
}

func alreadyReversed(m Marker) ReverseResult {
	r := ReverseResult{TransactionID: m.TransactionID, Status: StatusAlreadyReversed, CashRefunded: m.Result.Payment.Cash}
	if m.ReversedAt != nil {
		r.ReversedAt = *m.ReversedAt
	}
	return r
}

func (e *Engine) reverseTx(ctx context.Context, txID id.ID, actor string) (ReverseResult, error) {
	m, err := e.Markers.GetForUpdate(ctx, txID)
	if apperror.IsNotFound(err) {
		return ReverseResult{}, apperror.NewNotFound("transaction", txID.String())
	}
	if err != nil {
		return ReverseResult{}, fmt.Errorf("get marker: %w", err)
	}
	if m.Status == MarkerReversed {
		return alreadyReversed(m), nil
	}

	now := e.now()
	res := ReverseResult{TransactionID: txID, Status: StatusReversed, ReversedAt: now}
	var returned types.Quantity

	for _, line := range m.Result.Lines {
		var hint *id.ID
		for _, a := range line.Allocations {
			batchID := a.BatchID
			if hint == nil {
				hint = &batchID
			}
			if _, err := e.Ledger.Restore(ctx, ledger.RestoreRequest{
				StoreID:        m.StoreID,
				ProductID:      line.ProductID,
				Quantity:       a.Quantity,
				HintBatchID:    &batchID,
				UnitCost:       a.UnitCost,
				ExpirationDate: a.ExpirationDate,
				Attributes:     a.Attributes,
			}); err != nil {
				return ReverseResult{}, fmt.Errorf("restore batch %s: %w", batchID, err)
			}
		}

		sd, err := e.Stock.ApplyDelta(ctx, m.StoreID, line.ProductID, line.Quantity)
		if err != nil {
			return ReverseResult{}, err
		}
		unitPrice, purchase := line.UnitPrice, line.PurchaseCost
		rec, err := e.Movements.Append(ctx, movement.Record{
			ID:                  id.New(),
			StoreID:             m.StoreID,
			ProductID:           line.ProductID,
			QuantityBefore:      sd.Before,
			QuantityAfter:       sd.After,
			QuantityDelta:       line.Quantity,
			OperationType:       movement.OperationReturn,
			ReferenceID:         movement.ReturnReference(txID, line.ItemID),
			Actor:               actor,
			BatchID:             hint,
			SizeID:              line.Movement.SizeID,
			SalePriceAtTime:     &unitPrice,
			PurchasePriceAtTime: &purchase,
			CreatedAt:           now,
		})
		if err != nil {
			return ReverseResult{}, err
		}
		res.Movements = append(res.Movements, rec)
		returned += line.Quantity
	}

	cashPart := m.Result.Payment.Cash
	if err := e.Cash.RefundSale(ctx, m.StoreID, txID, cashPart, actor); err != nil {
		return ReverseResult{}, err
	}
	res.CashRefunded = types.RoundMoney(cashPart)

	if _, err := e.Rollups.ApplyRefund(ctx, rollup.Refund{
		TransactionID: txID,
		StoreID:       m.StoreID,
		At:            now,
		PaymentMethod: string(m.Transaction.PaymentMethod),
		Total:         m.Result.Total,
		Cash:          res.CashRefunded,
		Quantity:      returned,
	}); err != nil {
		return ReverseResult{}, fmt.Errorf("apply refund rollups: %w", err)
	}

	m.Status = MarkerReversed
	m.ReversedAt = &now
	m.ReversedBy = actor
	if err := e.Markers.Update(ctx, m); err != nil {
		return ReverseResult{}, fmt.Errorf("update marker: %w", err)
	}

	if err := e.Journal.Record(ctx, JournalEntry{
		EntityType: "transaction", EntityID: txID, Action: ActionReversed, Actor: actor,
		Details: map[string]any{"cash_refunded": res.CashRefunded.String(), "quantity": returned.String()},
	}); err != nil {
		return ReverseResult{}, fmt.Errorf("journal: %w", err)
	}
	if err := e.Events.Publish(ctx, Event{
		AggregateType: "transaction", AggregateID: txID, EventType: EventSaleReversed, Payload: res,
	}); err != nil {
		return ReverseResult{}, fmt.Errorf("publish event: %w", err)
	}
	return res, nil
}

// --- Receive / Adjust ---

// ReceiveRequest is an incoming lot from a supplier.
type ReceiveRequest struct {
	ledger.Incoming
	Actor string `json:"-"`
	Notes string `json:"notes,omitempty"`
}

// ReceiveResult is the created batch and its INCOMING movement.
type ReceiveResult struct {
	Batch    ledger.Batch    `json:"batch"`
	Movement movement.Record `json:"movement"`
}

// Receive books an incoming lot: new batch, aggregate increase and movement.
func (e *Engine) Receive(ctx context.Context, req ReceiveRequest) (res ReceiveResult, err error) {
	ctx, span := tracer.Start(ctx, "settlement.receive")
	defer span.End()

	start := time.Now()
	defer func() { e.Observer.Observe("receive", outcome("received", err), time.Since(start)) }()

	if err := req.Validate(); err != nil {
		return ReceiveResult{}, err
	}
	if _, err := e.product(ctx, req.StoreID, req.ProductID); err != nil {
		return ReceiveResult{}, err
	}

	err = e.withRetry(ctx, func() error {
		return e.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			b, err := e.Ledger.AddIncoming(ctx, req.Incoming)
			if err != nil {
				return err
			}
			sd, err := e.Stock.ApplyDelta(ctx, req.StoreID, req.ProductID, b.Quantity)
			if err != nil {
				return err
			}
			cost := b.UnitCost
			batchID := b.ID
			rec, err := e.Movements.Append(ctx, movement.Record{
				ID:                  id.New(),
				StoreID:             req.StoreID,
				ProductID:           req.ProductID,
				QuantityBefore:      sd.Before,
				QuantityAfter:       sd.After,
				QuantityDelta:       b.Quantity,
				OperationType:       movement.OperationIncoming,
				ReferenceID:         movement.IncomingReference(b.ID),
				Actor:               req.Actor,
				BatchID:             &batchID,
				PurchasePriceAtTime: &cost,
				Notes:               req.Notes,
				CreatedAt:           e.now(),
			})
			if err != nil {
				return err
			}
			res = ReceiveResult{Batch: b, Movement: rec}

			if err := e.Journal.Record(ctx, JournalEntry{
				EntityType: "batch", EntityID: b.ID, Action: ActionReceived, Actor: req.Actor,
				Details: map[string]any{"product_id": b.ProductID, "quantity": b.Quantity.String(), "supplier": b.Supplier},
			}); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			return e.Events.Publish(ctx, Event{
				AggregateType: "batch", AggregateID: b.ID, EventType: EventStockReceived, Payload: res,
			})
		})
	})
	if err != nil {
		return ReceiveResult{}, err
	}
	e.scheduleReconcile(ctx, req.StoreID, []id.ID{req.ProductID})
	return res, nil
}

// AdjustRequest is a manual stock correction. A negative delta consumes FIFO,
// a positive one creates a correction batch.
type AdjustRequest struct {
	StoreID   id.ID          `json:"store_id"`
	ProductID id.ID          `json:"product_id"`
	Delta     types.Quantity `json:"delta"`
	Reason    string         `json:"reason"`
	// UnitCost prices a positive correction; zero falls back to the product purchase price.
	UnitCost types.Money `json:"unit_cost"`
	Actor    string      `json:"-"`
}

// AdjustResult describes an applied correction.
type AdjustResult struct {
	CorrectionID id.ID                   `json:"correction_id"`
	Movement     movement.Record         `json:"movement"`
	Plan         *ledger.ConsumptionPlan `json:"plan,omitempty"`
	Batch        *ledger.Batch           `json:"batch,omitempty"`
}

// Adjust applies a stock correction.
func (e *Engine) Adjust(ctx context.Context, req AdjustRequest) (res AdjustResult, err error) {
	ctx, span := tracer.Start(ctx, "settlement.adjust")
	defer span.End()

	start := time.Now()
	defer func() { e.Observer.Observe("adjust", outcome("adjusted", err), time.Since(start)) }()

	if id.IsNil(req.StoreID) || id.IsNil(req.ProductID) {
		return AdjustResult{}, apperror.NewValidation("store_id and product_id are required")
	}
	if req.Delta.IsZero() {
		return AdjustResult{}, apperror.NewValidation("correction delta must not be zero")
	}
	if req.Reason == "" {
		return AdjustResult{}, apperror.NewValidation("correction reason is required")
	}
	p, err := e.product(ctx, req.StoreID, req.ProductID)
	if err != nil {
		return AdjustResult{}, err
	}

	err = e.withRetry(ctx, func() error {
		return e.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
			res = AdjustResult{CorrectionID: id.New()}
			var batchID *id.ID
			var cost types.Money

			if req.Delta.IsNegative() {
				plan, err := e.Ledger.Consume(ctx, req.StoreID, req.ProductID, req.Delta.Abs())
				if err != nil {
					return err
				}
				res.Plan = &plan
				cost = plan.AverageUnitCost()
				if len(plan.Allocations) > 0 {
					b := plan.Allocations[0].BatchID
					batchID = &b
				}
			} else {
				cost = req.UnitCost
				if cost.IsZero() {
					cost = p.PurchasePrice
				}
				b, err := e.Ledger.AddIncoming(ctx, ledger.Incoming{
					StoreID:   req.StoreID,
					ProductID: req.ProductID,
					Quantity:  req.Delta,
					UnitCost:  cost,
					Supplier:  ledger.SupplierCorrection,
				})
				if err != nil {
					return err
				}
				res.Batch = &b
				batchID = &b.ID
				cost = b.UnitCost
			}

			sd, err := e.Stock.ApplyDelta(ctx, req.StoreID, req.ProductID, req.Delta)
			if err != nil {
				return err
			}
			if sd.Clamped {
				return apperror.NewConsistencyAlarm("negative_stock", "correction would drive stock aggregate negative").
					WithDetail("product_id", req.ProductID.String()).
					WithDetail("before", sd.Before.String()).
					WithDetail("delta", req.Delta.String())
			}

			res.Movement, err = e.Movements.Append(ctx, movement.Record{
				ID:                  id.New(),
				StoreID:             req.StoreID,
				ProductID:           req.ProductID,
				QuantityBefore:      sd.Before,
				QuantityAfter:       sd.After,
				QuantityDelta:       req.Delta,
				OperationType:       movement.OperationCorrection,
				ReferenceID:         movement.CorrectionReference(res.CorrectionID),
				Actor:               req.Actor,
				BatchID:             batchID,
				PurchasePriceAtTime: &cost,
				Notes:               req.Reason,
				CreatedAt:           e.now(),
			})
			if err != nil {
				return err
			}

			if err := e.Journal.Record(ctx, JournalEntry{
				EntityType: "correction", EntityID: res.CorrectionID, Action: ActionAdjusted, Actor: req.Actor,
				Details: map[string]any{"product_id": req.ProductID, "delta": req.Delta.String(), "reason": req.Reason},
			}); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			return e.Events.Publish(ctx, Event{
				AggregateType: "correction", AggregateID: res.CorrectionID, EventType: EventStockCorrected, Payload: res,
			})
		})
	})
	if err != nil {
		return AdjustResult{}, err
	}
	logger.Info(ctx, "stock corrected",
		"correction_id", res.CorrectionID,
		"product_id", req.ProductID,
		"delta", req.Delta.String(),
	)
	e.scheduleReconcile(ctx, req.StoreID, []id.ID{req.ProductID})
	return res, nil
}

func (e *Engine) product(ctx context.Context, storeID, productID id.ID) (catalog.Product, error) {
	ps, err := e.Catalog.GetProducts(ctx, storeID, []id.ID{productID})
	if err != nil {
		return catalog.Product{}, err
	}
	p, ok := ps[productID]
	if !ok {
		return catalog.Product{}, apperror.NewNotFound("product", productID.String())
	}
	return p, nil
}

// --- helpers ---

type nopLock struct{}

func (nopLock) Release(context.Context) error { return nil }

func (e *Engine) obtain(ctx context.Context, op, key string) (Lock, error) {
	if e.Locker == nil {
		return nopLock{}, nil
	}
	l, err := e.Locker.Obtain(ctx, key, e.cfg.LockTTL, e.cfg.LockWait)
	if errors.Is(err, ErrLockNotObtained) {
		e.Observer.LockContended(op)
		return nil, apperror.NewAlreadyProcessing(key)
	}
	if err != nil {
		return nil, apperror.NewLockUnavailable(err)
	}
	return l, nil
}

func (e *Engine) release(ctx context.Context, l Lock) {
	// The request context may already be cancelled.
	if err := l.Release(context.WithoutCancel(ctx)); err != nil {
		logger.Warn(ctx, "failed to release settlement lock", "error", err)
	}
}

// withRetry reruns fn on serialization failures.
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !apperror.IsConcurrentModification(err) || attempt >= e.cfg.MaxRetries {
			return err
		}
		logger.Debug(ctx, "retrying after concurrent modification", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
}

func (e *Engine) scheduleReconcile(ctx context.Context, storeID id.ID, products []id.ID) {
	if len(products) == 0 {
		return
	}
	if err := e.Reconciler.ScheduleReconcile(ctx, storeID, products); err != nil {
		logger.Warn(ctx, "failed to schedule stock reconcile", "store_id", storeID, "error", err)
	}
}

func productIDs(lines []LineResult) []id.ID {
	out := make([]id.ID, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.ProductID)
	}
	return id.SortUnique(out)
}

func outcome(status string, err error) string {
	if err == nil {
		return status
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return "error"
}
