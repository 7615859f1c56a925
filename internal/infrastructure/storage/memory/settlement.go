package memory

import (
	"context"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/domain/settlement"
)

// MarkerRepo implements settlement.MarkerRepository.
type MarkerRepo struct{ s *Store }

// Markers returns the processed-marker repository.
func (s *Store) Markers() *MarkerRepo { return &MarkerRepo{s: s} }

func (r *MarkerRepo) Get(ctx context.Context, txID id.ID) (settlement.Marker, error) {
	var out settlement.Marker
	err := r.s.do(ctx, func(st *state) error {
		m, ok := st.markers[txID]
		if !ok {
			return apperror.NewNotFound("processed transaction", txID.String())
		}
		out = m
		return nil
	})
	return out, err
}

func (r *MarkerRepo) GetForUpdate(ctx context.Context, txID id.ID) (settlement.Marker, error) {
	return r.Get(ctx, txID)
}

func (r *MarkerRepo) Insert(ctx context.Context, m settlement.Marker) error {
	return r.s.do(ctx, func(st *state) error {
		if _, dup := st.markers[m.TransactionID]; dup {
			return apperror.NewDuplicate("processed transaction", "transaction_id", m.TransactionID.String())
		}
		st.markers[m.TransactionID] = m
		return nil
	})
}

func (r *MarkerRepo) Update(ctx context.Context, m settlement.Marker) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.markers[m.TransactionID]; !ok {
			return apperror.NewNotFound("processed transaction", m.TransactionID.String())
		}
		st.markers[m.TransactionID] = m
		return nil
	})
}

// Journal records entries in the store; rolled back with the transaction.
type Journal struct{ s *Store }

// Journal returns the in-memory journal.
func (s *Store) Journal() *Journal { return &Journal{s: s} }

func (j *Journal) Record(ctx context.Context, e settlement.JournalEntry) error {
	return j.s.do(ctx, func(st *state) error {
		st.journal = append(st.journal, e)
		return nil
	})
}

// Entries returns recorded entries for an entity, oldest first.
func (j *Journal) Entries(entityID id.ID) []settlement.JournalEntry {
	var out []settlement.JournalEntry
	_ = j.s.do(context.Background(), func(st *state) error {
		for _, e := range st.journal {
			if e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out
}

// Outbox collects published events; rolled back with the transaction.
type Outbox struct{ s *Store }

// Events returns the in-memory outbox.
func (s *Store) Events() *Outbox { return &Outbox{s: s} }

func (o *Outbox) Publish(ctx context.Context, e settlement.Event) error {
	return o.s.do(ctx, func(st *state) error {
		st.events = append(st.events, e)
		return nil
	})
}

// Published returns every committed event.
func (o *Outbox) Published() []settlement.Event {
	var out []settlement.Event
	_ = o.s.do(context.Background(), func(st *state) error {
		out = append(out, st.events...)
		return nil
	})
	return out
}
