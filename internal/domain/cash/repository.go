package cash

import (
	"context"

	"sompos/internal/core/id"
)

// Repository persists registers and their history.
type Repository interface {
	// GetOpen returns the open register of a store, NOT_FOUND if none.
	GetOpen(ctx context.Context, storeID id.ID) (Register, error)
	GetOpenForUpdate(ctx context.Context, storeID id.ID) (Register, error)

	Get(ctx context.Context, registerID id.ID) (Register, error)
	GetForUpdate(ctx context.Context, registerID id.ID) (Register, error)

	// Create fails with ALREADY_OPEN when the store already has an open register.
	Create(ctx context.Context, r *Register) error
	Update(ctx context.Context, r Register) error

	AppendHistory(ctx context.Context, e *HistoryEntry) error
	History(ctx context.Context, registerID id.ID) ([]HistoryEntry, error)
}

// ShiftCloser receives closed shifts (daily financial rollup).
type ShiftCloser interface {
	LinkShiftClose(ctx context.Context, sc ShiftClose) error
}
