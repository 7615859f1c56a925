package movement

import (
	"context"
	"time"

	"sompos/internal/core/id"
)

// Filter selects movements. StoreID is required.
type Filter struct {
	StoreID       id.ID
	ProductID     *id.ID
	OperationType *OperationType
	From          *time.Time // inclusive
	To            *time.Time // exclusive
}

// Repository persists movement records.
type Repository interface {
	// Insert stores r unless its reference already exists; inserted reports which.
	Insert(ctx context.Context, r *Record) (inserted bool, err error)

	GetByReference(ctx context.Context, referenceID string) (Record, error)

	// Page returns up to limit records strictly after cursor, newest first
	// ordered by (created_at DESC, id DESC).
	Page(ctx context.Context, f Filter, after *Cursor, limit int) ([]Record, error)
}
