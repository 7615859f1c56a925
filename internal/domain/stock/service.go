package stock

import (
	"context"
	"fmt"
	"time"

	"sompos/internal/core/alarm"
	"sompos/internal/core/id"
	"sompos/internal/core/tx"
	"sompos/internal/core/types"
	"sompos/pkg/logger"
)

// Delta is the outcome of ApplyDelta.
type Delta struct {
	Before types.Quantity `json:"before"`
	After  types.Quantity `json:"after"`
	// Clamped is set when the requested delta would have gone negative.
	Clamped bool `json:"clamped"`
}

// Service provides stock aggregate operations.
// ApplyDelta runs inside the caller's transaction; Recompute and ReconcileStore open their own.
type Service struct {
	repo    Repository
	batches BatchSummer
	alarms  alarm.Sink
	txm     tx.Manager
	now     func() time.Time
}

// NewService creates a new stock aggregate service.
func NewService(repo Repository, batches BatchSummer, alarms alarm.Sink, txm tx.Manager) *Service {
	if alarms == nil {
		alarms = alarm.LogSink{}
	}
	return &Service{
		repo:    repo,
		batches: batches,
		alarms:  alarms,
		txm:     txm,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the cached quantity; zero when no row exists.
func (s *Service) Get(ctx context.Context, storeID, productID id.ID) (Aggregate, error) {
	return s.repo.Get(ctx, storeID, productID)
}

// ApplyDelta adds delta under a row lock. A result below zero is clamped to
// zero and raises a negative_stock alarm; the caller decides whether to abort.
func (s *Service) ApplyDelta(ctx context.Context, storeID, productID id.ID, delta types.Quantity) (Delta, error) {
	agg, err := s.repo.GetForUpdate(ctx, storeID, productID)
	if err != nil {
		return Delta{}, fmt.Errorf("lock stock row: %w", err)
	}

	d := Delta{Before: agg.Quantity, After: agg.Quantity + delta}
	if d.After < 0 {
		d.Clamped = true
		s.alarms.Raise(ctx, alarm.Alarm{
			Kind:      alarm.KindNegativeStock,
			StoreID:   storeID.String(),
			ProductID: productID.String(),
			Message:   "stock delta would go negative, clamped to zero",
			Details: map[string]any{
				"before": d.Before.String(),
				"delta":  delta.String(),
			},
		})
		d.After = 0
	}

	agg.StoreID, agg.ProductID = storeID, productID
	agg.Quantity = d.After
	agg.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, agg); err != nil {
		return Delta{}, fmt.Errorf("upsert stock row: %w", err)
	}
	return d, nil
}

// Recompute rebuilds the aggregate from active batches and reports the drift
// that was corrected (new minus cached).
func (s *Service) Recompute(ctx context.Context, storeID, productID id.ID) (Aggregate, types.Quantity, error) {
	var (
		out   Aggregate
		drift types.Quantity
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		cached, err := s.repo.GetForUpdate(ctx, storeID, productID)
		if err != nil {
			return fmt.Errorf("lock stock row: %w", err)
		}
		sum, err := s.batches.SumActive(ctx, storeID, productID)
		if err != nil {
			return fmt.Errorf("sum batches: %w", err)
		}

		drift = sum - cached.Quantity
		out = Aggregate{StoreID: storeID, ProductID: productID, Quantity: sum, UpdatedAt: s.now()}
		return s.repo.Upsert(ctx, out)
	})
	if err != nil {
		return Aggregate{}, 0, err
	}

	if drift != 0 {
		s.alarms.Raise(ctx, alarm.Alarm{
			Kind:      alarm.KindStockDrift,
			StoreID:   storeID.String(),
			ProductID: productID.String(),
			Message:   "stock aggregate drifted from batch sum",
			Details: map[string]any{
				"drift":    drift.String(),
				"quantity": out.Quantity.String(),
			},
		})
	}
	return out, drift, nil
}

// ReconcileStore recomputes every product of a store and returns how many drifted.
func (s *Service) ReconcileStore(ctx context.Context, storeID id.ID) (int, error) {
	products, err := s.repo.ListProductIDs(ctx, storeID)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}

	drifted := 0
	for _, productID := range products {
		_, drift, err := s.Recompute(ctx, storeID, productID)
		if err != nil {
			return drifted, fmt.Errorf("recompute %s: %w", productID, err)
		}
		if drift != 0 {
			drifted++
		}
	}

	logger.Info(ctx, "stock reconciled",
		"store_id", storeID,
		"products", len(products),
		"drifted", drifted,
	)
	return drifted, nil
}

// ReconcileAll runs ReconcileStore for every store that holds stock.
// A failing store is logged and skipped; the first error is returned.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	stores, err := s.repo.ListStoreIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stores: %w", err)
	}

	var (
		drifted  int
		firstErr error
	)
	for _, storeID := range stores {
		n, err := s.ReconcileStore(ctx, storeID)
		drifted += n
		if err != nil {
			logger.Error(ctx, "store reconcile failed", "store_id", storeID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return drifted, firstErr
}
