package rollup

import (
	"context"
	"fmt"

	"sompos/internal/core/apperror"
	"sompos/internal/domain/cash"
	"sompos/pkg/logger"
)

// Service applies sales, refunds and shift closes to the buckets.
// Apply* run inside the caller's transaction.
type Service struct {
	repo Repository
}

// NewService creates a new rollup aggregator.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SaleApplicationKey is the exactly-once key of a sale.
func SaleApplicationKey(s Sale) string { return "sale:" + s.TransactionID.String() }

// RefundApplicationKey is the exactly-once key of a refund.
func RefundApplicationKey(r Refund) string { return "refund:" + r.TransactionID.String() }

// ApplySale increments every bucket touched by the sale. A repeated call for
// the same transaction is a no-op and returns false.
func (s *Service) ApplySale(ctx context.Context, sale Sale) (bool, error) {
	return s.apply(ctx, SaleApplicationKey(sale), saleDeltas(sale))
}

// ApplyRefund records a reversal in the refund dimension. Historical buckets
// are left untouched.
func (s *Service) ApplyRefund(ctx context.Context, r Refund) (bool, error) {
	return s.apply(ctx, RefundApplicationKey(r), refundDeltas(r))
}

// LinkShiftClose adds a closed shift to the store's daily financial bucket.
func (s *Service) LinkShiftClose(ctx context.Context, sc cash.ShiftClose) error {
	d := newDelta(Key{Dimension: DimFinancial, StoreID: sc.StoreID, Day: Day(sc.ClosedAt)}, "")
	d.ShiftsClosed = 1
	d.Discrepancy = sc.Discrepancy
	_, err := s.apply(ctx, "shift:"+sc.RegisterID.String(), []Delta{*d})
	return err
}

func (s *Service) apply(ctx context.Context, appKey string, deltas []Delta) (bool, error) {
	fresh, err := s.repo.MarkApplied(ctx, appKey)
	if err != nil {
		return false, fmt.Errorf("mark rollup applied: %w", err)
	}
	if !fresh {
		logger.Debug(ctx, "rollup already applied", "application_key", appKey)
		return false, nil
	}
	for _, d := range deltas {
		if err := s.repo.Increment(ctx, d); err != nil {
			return false, fmt.Errorf("increment %s/%s: %w", d.Dimension, d.Value, err)
		}
	}
	return true, nil
}

// List returns buckets of one dimension for a store.
func (s *Service) List(ctx context.Context, q Query) ([]Bucket, error) {
	if !q.Dimension.Valid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown dimension %q", q.Dimension))
	}
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 1000
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.repo.List(ctx, q)
}

// Get returns a single bucket.
func (s *Service) Get(ctx context.Context, k Key) (Bucket, error) {
	k.Day = Day(k.Day)
	return s.repo.Get(ctx, k)
}
