package settlement

import (
	"context"
	"errors"
	"time"

	"sompos/internal/core/id"
)

// MarkerRepository persists processed markers.
type MarkerRepository interface {
	// Get returns NOT_FOUND when the transaction was never settled.
	Get(ctx context.Context, txID id.ID) (Marker, error)
	GetForUpdate(ctx context.Context, txID id.ID) (Marker, error)
	Insert(ctx context.Context, m Marker) error
	Update(ctx context.Context, m Marker) error
}

// ErrLockNotObtained is returned by a Locker when the wait expires.
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker hands out short-lived exclusive locks with a TTL, so a crashed
// holder cannot block a key forever.
type Locker interface {
	// Obtain waits up to wait for key and returns ErrLockNotObtained on timeout.
	Obtain(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// JournalEntry is one line of the settlement audit trail.
type JournalEntry struct {
	EntityType string
	EntityID   id.ID
	Action     string
	Actor      string
	Details    map[string]any
}

// Journal actions.
const (
	ActionCreated  = "created"
	ActionSettled  = "settled"
	ActionReversed = "reversed"
	ActionReceived = "received"
	ActionAdjusted = "adjusted"
)

// Journal writes audit entries inside the current transaction.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
}

// Event is an integration event written through the outbox.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Event types.
const (
	EventSaleSettled    = "SaleSettled"
	EventSaleReversed   = "SaleReversed"
	EventStockReceived  = "StockReceived"
	EventStockCorrected = "StockCorrected"
)

// Events publishes integration events inside the current transaction.
type Events interface {
	Publish(ctx context.Context, e Event) error
}

// ReconcileScheduler queues an out-of-band aggregate recompute.
type ReconcileScheduler interface {
	ScheduleReconcile(ctx context.Context, storeID id.ID, productIDs []id.ID) error
}

// Observer receives settlement telemetry.
type Observer interface {
	Observe(op string, status string, elapsed time.Duration)
	LockContended(op string)
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, JournalEntry) error { return nil }

type nopEvents struct{}

func (nopEvents) Publish(context.Context, Event) error { return nil }

type nopScheduler struct{}

func (nopScheduler) ScheduleReconcile(context.Context, id.ID, []id.ID) error { return nil }

type nopObserver struct{}

func (nopObserver) Observe(string, string, time.Duration) {}
func (nopObserver) LockContended(string)                  {}
