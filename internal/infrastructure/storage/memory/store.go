// Package memory is an in-process storage backend. A transaction holds the
// store-wide mutex for its whole duration and is rolled back by restoring a
// snapshot, which gives serializable semantics for tests and single-node runs.
package memory

import (
	"context"
	"sync"

	"sompos/internal/core/id"
	"sompos/internal/domain/cash"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/movement"
	"sompos/internal/domain/rollup"
	"sompos/internal/domain/settlement"
	"sompos/internal/domain/stock"
)

type stockKey struct {
	store   id.ID
	product id.ID
}

type state struct {
	batches map[id.ID]ledger.Batch
	stock   map[stockKey]stock.Aggregate

	movements   []movement.Record
	movementRef map[string]int

	registers map[id.ID]cash.Register
	history   []cash.HistoryEntry

	buckets map[rollup.Key]rollup.Bucket
	members map[rollup.Key]map[id.ID]struct{}
	applied map[string]struct{}

	markers map[id.ID]settlement.Marker
	journal []settlement.JournalEntry
	events  []settlement.Event
}

func newState() *state {
	return &state{
		batches:     make(map[id.ID]ledger.Batch),
		stock:       make(map[stockKey]stock.Aggregate),
		movementRef: make(map[string]int),
		registers:   make(map[id.ID]cash.Register),
		buckets:     make(map[rollup.Key]rollup.Bucket),
		members:     make(map[rollup.Key]map[id.ID]struct{}),
		applied:     make(map[string]struct{}),
		markers:     make(map[id.ID]settlement.Marker),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.batches {
		c.batches[k] = v.Clone()
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	c.movements = append([]movement.Record(nil), s.movements...)
	for k, v := range s.movementRef {
		c.movementRef[k] = v
	}
	for k, v := range s.registers {
		c.registers[k] = v
	}
	c.history = append([]cash.HistoryEntry(nil), s.history...)
	for k, v := range s.buckets {
		c.buckets[k] = v
	}
	for k, v := range s.members {
		m := make(map[id.ID]struct{}, len(v))
		for p := range v {
			m[p] = struct{}{}
		}
		c.members[k] = m
	}
	for k := range s.applied {
		c.applied[k] = struct{}{}
	}
	for k, v := range s.markers {
		c.markers[k] = v
	}
	c.journal = append([]settlement.JournalEntry(nil), s.journal...)
	c.events = append([]settlement.Event(nil), s.events...)
	return c
}

// Store owns all in-memory state.
type Store struct {
	mu      sync.Mutex
	st      *state
	catalog *Catalog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState(), catalog: newCatalog()}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// do runs fn against the state, taking the store lock unless ctx already holds it.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// TxManager implements tx.Manager over the store.
type TxManager struct{ s *Store }

// TxManager returns the store's transaction manager.
func (s *Store) TxManager() *TxManager { return &TxManager{s: s} }

// RunInTransaction runs fn exclusively; an error restores the state seen at begin.
// Nested calls reuse the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	snapshot := m.s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, m.s)); err != nil {
		m.s.st = snapshot
		return err
	}
	return nil
}

// ReadOnly runs fn like RunInTransaction but always discards writes.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.s.inTx(ctx) {
		return fn(ctx)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	snapshot := m.s.st.clone()
	err := fn(context.WithValue(ctx, txKey{}, m.s))
	m.s.st = snapshot
	return err
}
