package memory

import (
	"context"
	"slices"

	"sompos/internal/core/id"
	"sompos/internal/domain/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct{ s *Store }

// Stock returns the aggregate repository.
func (s *Store) Stock() *StockRepo { return &StockRepo{s: s} }

func (r *StockRepo) Get(ctx context.Context, storeID, productID id.ID) (stock.Aggregate, error) {
	var out stock.Aggregate
	err := r.s.do(ctx, func(st *state) error {
		a, ok := st.stock[stockKey{storeID, productID}]
		if !ok {
			a = stock.Aggregate{StoreID: storeID, ProductID: productID}
		}
		out = a
		return nil
	})
	return out, err
}

func (r *StockRepo) GetForUpdate(ctx context.Context, storeID, productID id.ID) (stock.Aggregate, error) {
	return r.Get(ctx, storeID, productID)
}

func (r *StockRepo) Upsert(ctx context.Context, a stock.Aggregate) error {
	return r.s.do(ctx, func(st *state) error {
		st.stock[stockKey{a.StoreID, a.ProductID}] = a
		return nil
	})
}

func (r *StockRepo) ListProductIDs(ctx context.Context, storeID id.ID) ([]id.ID, error) {
	var out []id.ID
	err := r.s.do(ctx, func(st *state) error {
		seen := make(map[id.ID]struct{})
		add := func(p id.ID) {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
		for k := range st.stock {
			if k.store == storeID {
				add(k.product)
			}
		}
		for _, b := range st.batches {
			if b.StoreID == storeID && b.Active() {
				add(b.ProductID)
			}
		}
		return nil
	})
	slices.SortFunc(out, id.Compare)
	return out, err
}

func (r *StockRepo) ListStoreIDs(ctx context.Context) ([]id.ID, error) {
	var out []id.ID
	err := r.s.do(ctx, func(st *state) error {
		seen := make(map[id.ID]struct{})
		add := func(s id.ID) {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
		for k := range st.stock {
			add(k.store)
		}
		for _, b := range st.batches {
			if b.Active() {
				add(b.StoreID)
			}
		}
		return nil
	})
	slices.SortFunc(out, id.Compare)
	return out, err
}
