// Package stock maintains the per-product stock aggregate, a cached sum of
// active batch quantities keyed by (store, product).
package stock

import (
	"context"
	"time"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// Aggregate is the cached stock level of a product in a store.
type Aggregate struct {
	StoreID   id.ID          `json:"store_id"`
	ProductID id.ID          `json:"product_id"`
	Quantity  types.Quantity `json:"quantity"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Repository persists aggregates.
type Repository interface {
	// Get returns the aggregate; a missing row reads as zero quantity.
	Get(ctx context.Context, storeID, productID id.ID) (Aggregate, error)

	// GetForUpdate is Get with a row lock.
	GetForUpdate(ctx context.Context, storeID, productID id.ID) (Aggregate, error)

	Upsert(ctx context.Context, a Aggregate) error

	// ListProductIDs returns every product that has an aggregate row or an active batch.
	ListProductIDs(ctx context.Context, storeID id.ID) ([]id.ID, error)

	// ListStoreIDs returns every store that holds stock.
	ListStoreIDs(ctx context.Context) ([]id.ID, error)
}

// BatchSummer is the part of the batch ledger the aggregate is derived from.
type BatchSummer interface {
	SumActive(ctx context.Context, storeID, productID id.ID) (types.Quantity, error)
}
