package memory

import (
	"context"
	"sort"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/domain/movement"
)

// MovementRepo implements movement.Repository.
type MovementRepo struct{ s *Store }

// Movements returns the movement repository.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

func (r *MovementRepo) Insert(ctx context.Context, rec *movement.Record) (bool, error) {
	inserted := false
	err := r.s.do(ctx, func(st *state) error {
		if _, dup := st.movementRef[rec.ReferenceID]; dup {
			return nil
		}
		if id.IsNil(rec.ID) {
			rec.ID = id.New()
		}
		st.movementRef[rec.ReferenceID] = len(st.movements)
		st.movements = append(st.movements, *rec)
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *MovementRepo) GetByReference(ctx context.Context, referenceID string) (movement.Record, error) {
	var out movement.Record
	err := r.s.do(ctx, func(st *state) error {
		i, ok := st.movementRef[referenceID]
		if !ok {
			return apperror.NewNotFound("movement", referenceID)
		}
		out = st.movements[i]
		return nil
	})
	return out, err
}

func (r *MovementRepo) Page(ctx context.Context, f movement.Filter, after *movement.Cursor, limit int) ([]movement.Record, error) {
	var matched []movement.Record
	err := r.s.do(ctx, func(st *state) error {
		for _, rec := range st.movements {
			if matches(f, rec) && (after == nil || after.After(rec)) {
				matched = append(matched, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matches(f movement.Filter, r movement.Record) bool {
	switch {
	case r.StoreID != f.StoreID:
		return false
	case f.ProductID != nil && r.ProductID != *f.ProductID:
		return false
	case f.OperationType != nil && r.OperationType != *f.OperationType:
		return false
	case f.From != nil && r.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && !r.CreatedAt.Before(*f.To):
		return false
	}
	return true
}
