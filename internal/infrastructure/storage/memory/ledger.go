package memory

import (
	"context"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/ledger"
)

// BatchRepo implements ledger.Repository.
type BatchRepo struct{ s *Store }

// Batches returns the batch repository.
func (s *Store) Batches() *BatchRepo { return &BatchRepo{s: s} }

func (r *BatchRepo) ListActiveForUpdate(ctx context.Context, storeID, productID id.ID) ([]ledger.Batch, error) {
	return r.ListActive(ctx, storeID, productID)
}

func (r *BatchRepo) ListActive(ctx context.Context, storeID, productID id.ID) ([]ledger.Batch, error) {
	var out []ledger.Batch
	err := r.s.do(ctx, func(st *state) error {
		for _, b := range st.batches {
			if b.StoreID == storeID && b.ProductID == productID && b.Active() {
				out = append(out, b.Clone())
			}
		}
		return nil
	})
	ledger.SortFIFO(out)
	return out, err
}

func (r *BatchRepo) Get(ctx context.Context, batchID id.ID) (ledger.Batch, error) {
	var out ledger.Batch
	err := r.s.do(ctx, func(st *state) error {
		b, ok := st.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID.String())
		}
		out = b.Clone()
		return nil
	})
	return out, err
}

func (r *BatchRepo) Create(ctx context.Context, b *ledger.Batch) error {
	return r.s.do(ctx, func(st *state) error {
		if id.IsNil(b.ID) {
			b.ID = id.New()
		}
		if _, dup := st.batches[b.ID]; dup {
			return apperror.NewDuplicate("batch", "id", b.ID.String())
		}
		st.batches[b.ID] = b.Clone()
		return nil
	})
}

func (r *BatchRepo) Update(ctx context.Context, b ledger.Batch) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.batches[b.ID]; !ok {
			return apperror.NewNotFound("batch", b.ID.String())
		}
		st.batches[b.ID] = b.Clone()
		return nil
	})
}

func (r *BatchRepo) SumActive(ctx context.Context, storeID, productID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	err := r.s.do(ctx, func(st *state) error {
		for _, b := range st.batches {
			if b.StoreID == storeID && b.ProductID == productID && b.Active() {
				sum += b.Quantity
			}
		}
		return nil
	})
	return sum, err
}
