// Package alarm defines consistency alarms raised when a ledger invariant is
// found broken at runtime. Alarms are observable side effects; callers decide
// separately whether the current unit of work must fail.
package alarm

import (
	"context"
	"sync"

	"sompos/pkg/logger"
)

// Kind classifies an alarm.
type Kind string

const (
	KindNegativeStock  Kind = "negative_stock"
	KindStockDrift     Kind = "stock_drift"
	KindReferenceReuse Kind = "reference_reuse"
)

// Alarm is a single invariant breach.
type Alarm struct {
	Kind      Kind
	StoreID   string
	ProductID string
	Message   string
	Details   map[string]any
}

// Sink receives alarms.
type Sink interface {
	Raise(ctx context.Context, a Alarm)
}

// LogSink writes alarms to the structured log at error level.
type LogSink struct{}

func (LogSink) Raise(ctx context.Context, a Alarm) {
	kv := []any{"alarm", true, "kind", string(a.Kind), "store_id", a.StoreID, "product_id", a.ProductID}
	for k, v := range a.Details {
		kv = append(kv, k, v)
	}
	logger.Error(ctx, a.Message, kv...)
}

// Fanout forwards an alarm to every sink in order.
type Fanout []Sink

func (f Fanout) Raise(ctx context.Context, a Alarm) {
	for _, s := range f {
		s.Raise(ctx, a)
	}
}

// Recorder keeps raised alarms in memory.
type Recorder struct {
	mu     sync.Mutex
	alarms []Alarm
}

func (r *Recorder) Raise(_ context.Context, a Alarm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alarms = append(r.alarms, a)
}

// Count returns how many alarms of kind were raised.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.alarms {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
