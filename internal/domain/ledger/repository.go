package ledger

import (
	"context"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// Repository persists batches.
type Repository interface {
	// ListActiveForUpdate locks and returns active batches in FIFO order.
	ListActiveForUpdate(ctx context.Context, storeID, productID id.ID) ([]Batch, error)

	// ListActive returns active batches in FIFO order without locking.
	ListActive(ctx context.Context, storeID, productID id.ID) ([]Batch, error)

	// Get returns a batch by id, including soft-deleted ones.
	Get(ctx context.Context, batchID id.ID) (Batch, error)

	Create(ctx context.Context, b *Batch) error

	// Update writes quantity, attributes and deleted_at.
	Update(ctx context.Context, b Batch) error

	// SumActive returns the summed quantity of active batches.
	SumActive(ctx context.Context, storeID, productID id.ID) (types.Quantity, error)
}
