package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/settlement"
	"sompos/internal/domain/stock"
	"sompos/pkg/logger"
)

const (
	scopeProducts = "products"
	scopeAll      = "all"
)

// Reconciler is the part of stock.Service the handlers drive.
type Reconciler interface {
	Recompute(ctx context.Context, storeID, productID id.ID) (stock.Aggregate, types.Quantity, error)
	ReconcileAll(ctx context.Context) (int, error)
}

// ReconcileObserver receives the outcome of each run.
type ReconcileObserver func(scope string, corrected int, err error)

// Handlers processes reconcile tasks.
type Handlers struct {
	stock   Reconciler
	observe ReconcileObserver
}

// NewHandlers wires the handlers. observe may be nil.
func NewHandlers(s Reconciler, observe ReconcileObserver) *Handlers {
	if observe == nil {
		observe = func(string, int, error) {}
	}
	return &Handlers{stock: s, observe: observe}
}

// TaskHandlers lists the handlers for NewWorker.
func (h *Handlers) TaskHandlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskReconcileProducts, Handler: h.HandleReconcile},
		{Type: TaskReconcileAll, Handler: h.HandleReconcileAll},
	}
}

// HandleReconcile processes TaskReconcileProducts tasks.
func (h *Handlers) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	if id.IsNil(payload.StoreID) {
		return fmt.Errorf("reconcile payload without store: %w", asynq.SkipRetry)
	}
	return h.reconcile(ctx, payload)
}

func (h *Handlers) reconcile(ctx context.Context, payload ReconcilePayload) error {
	corrected := 0
	var errs []error
	for _, productID := range payload.ProductIDs {
		_, drift, err := h.stock.Recompute(ctx, payload.StoreID, productID)
		if err != nil {
			errs = append(errs, fmt.Errorf("recompute %s: %w", productID, err))
			continue
		}
		if drift != 0 {
			corrected++
		}
	}

	err := errors.Join(errs...)
	h.observe(scopeProducts, corrected, err)
	if corrected > 0 {
		logger.Info(ctx, "stock drift corrected", "store_id", payload.StoreID, "corrected", corrected)
	}
	return err
}

// HandleReconcileAll processes TaskReconcileAll tasks.
func (h *Handlers) HandleReconcileAll(ctx context.Context, _ *asynq.Task) error {
	corrected, err := h.stock.ReconcileAll(ctx)
	h.observe(scopeAll, corrected, err)
	logger.Info(ctx, "full reconcile finished", "corrected", corrected, "error", err)
	return err
}

// Inline runs reconciles in-process. It stands in for Client when no Redis
// is configured.
type Inline struct {
	h *Handlers
}

var _ settlement.ReconcileScheduler = Inline{}

// NewInline wraps handlers as a scheduler.
func NewInline(h *Handlers) Inline { return Inline{h: h} }

// ScheduleReconcile recomputes synchronously, detached from ctx cancellation.
func (i Inline) ScheduleReconcile(ctx context.Context, storeID id.ID, productIDs []id.ID) error {
	if len(productIDs) == 0 {
		return nil
	}
	return i.h.reconcile(context.WithoutCancel(ctx), ReconcilePayload{StoreID: storeID, ProductIDs: productIDs})
}
