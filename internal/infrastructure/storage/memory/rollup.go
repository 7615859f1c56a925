package memory

import (
	"context"
	"sort"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/rollup"
)

// RollupRepo implements rollup.Repository.
type RollupRepo struct{ s *Store }

// Rollups returns the rollup repository.
func (s *Store) Rollups() *RollupRepo { return &RollupRepo{s: s} }

func (r *RollupRepo) MarkApplied(ctx context.Context, key string) (bool, error) {
	fresh := false
	err := r.s.do(ctx, func(st *state) error {
		if _, ok := st.applied[key]; ok {
			return nil
		}
		st.applied[key] = struct{}{}
		fresh = true
		return nil
	})
	return fresh, err
}

func (r *RollupRepo) Increment(ctx context.Context, d rollup.Delta) error {
	return r.s.do(ctx, func(st *state) error {
		b, ok := st.buckets[d.Key]
		if !ok {
			z := types.Zero()
			b = rollup.Bucket{
				Key: d.Key, Label: d.Label,
				Revenue: z, Cost: z, DebtAdded: z,
				CashTotal: z, CardTotal: z, TransferTotal: z, Discrepancy: z,
			}
		}
		if b.Label == "" {
			b.Label = d.Label
		}
		b.Quantity += d.Quantity
		b.Revenue = b.Revenue.Add(d.Revenue)
		b.Cost = b.Cost.Add(d.Cost)
		b.DebtAdded = b.DebtAdded.Add(d.DebtAdded)
		b.CashTotal = b.CashTotal.Add(d.CashTotal)
		b.CardTotal = b.CardTotal.Add(d.CardTotal)
		b.TransferTotal = b.TransferTotal.Add(d.TransferTotal)
		b.Discrepancy = b.Discrepancy.Add(d.Discrepancy)
		b.Transactions += d.Transactions
		b.ShiftsClosed += d.ShiftsClosed

		members := st.members[d.Key]
		if members == nil {
			members = make(map[id.ID]struct{})
			st.members[d.Key] = members
		}
		for _, p := range d.Products {
			if _, seen := members[p]; !seen {
				members[p] = struct{}{}
				b.ProductsCount++
			}
		}
		b.UpdatedAt = time.Now().UTC()
		st.buckets[d.Key] = b
		return nil
	})
}

func (r *RollupRepo) Get(ctx context.Context, k rollup.Key) (rollup.Bucket, error) {
	var out rollup.Bucket
	err := r.s.do(ctx, func(st *state) error {
		b, ok := st.buckets[k]
		if !ok {
			return apperror.NewNotFound("rollup bucket", string(k.Dimension)+"/"+k.Value)
		}
		out = b
		return nil
	})
	return out, err
}

func (r *RollupRepo) List(ctx context.Context, q rollup.Query) ([]rollup.Bucket, error) {
	var out []rollup.Bucket
	err := r.s.do(ctx, func(st *state) error {
		for k, b := range st.buckets {
			switch {
			case k.Dimension != q.Dimension, k.StoreID != q.StoreID:
				continue
			case q.From != nil && k.Day.Before(rollup.Day(*q.From)):
				continue
			case q.To != nil && k.Day.After(rollup.Day(*q.To)):
				continue
			case q.Value != "" && k.Value != q.Value:
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Value < out[j].Value
	})
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
