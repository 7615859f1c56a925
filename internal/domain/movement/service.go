package movement

import (
	"context"
	"fmt"
	"time"

	"sompos/internal/core/alarm"
	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Service appends and queries movement records.
// Append runs inside the caller's transaction.
type Service struct {
	repo   Repository
	alarms alarm.Sink
	now    func() time.Time
}

// NewService creates a new movement log service.
func NewService(repo Repository, alarms alarm.Sink) *Service {
	if alarms == nil {
		alarms = alarm.LogSink{}
	}
	return &Service{
		repo:   repo,
		alarms: alarms,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append stores r once per reference id. Replaying the same payload returns
// the stored record; reusing a reference for a different payload is rejected.
func (s *Service) Append(ctx context.Context, r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}

	existing, err := s.repo.GetByReference(ctx, r.ReferenceID)
	switch {
	case err == nil:
		return s.replay(ctx, existing, r)
	case !apperror.IsNotFound(err):
		return Record{}, fmt.Errorf("get movement by reference: %w", err)
	}

	if id.IsNil(r.ID) {
		r.ID = id.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	inserted, err := s.repo.Insert(ctx, &r)
	if err != nil {
		return Record{}, fmt.Errorf("insert movement: %w", err)
	}
	if inserted {
		return r, nil
	}

	// Lost an insert race on the reference key.
	existing, err = s.repo.GetByReference(ctx, r.ReferenceID)
	if err != nil {
		return Record{}, fmt.Errorf("refetch movement: %w", err)
	}
	return s.replay(ctx, existing, r)
}

func (s *Service) replay(ctx context.Context, existing, incoming Record) (Record, error) {
	if existing.samePayload(incoming) {
		return existing, nil
	}
	s.alarms.Raise(ctx, alarm.Alarm{
		Kind:      alarm.KindReferenceReuse,
		StoreID:   incoming.StoreID.String(),
		ProductID: incoming.ProductID.String(),
		Message:   "movement reference reused with a different payload",
		Details: map[string]any{
			"reference_id":    incoming.ReferenceID,
			"stored_delta":    existing.QuantityDelta.String(),
			"requested_delta": incoming.QuantityDelta.String(),
		},
	})
	return Record{}, apperror.NewIdempotencyMismatch(incoming.ReferenceID)
}

// Query returns a lazy iterator over the filtered log.
func (s *Service) Query(f Filter, pageSize int) *Iterator {
	return newIterator(s.repo, f, clampPageSize(pageSize))
}

// PageResult is a single page with the token for the next one.
type PageResult struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// Page returns one page starting after cursorToken.
func (s *Service) Page(ctx context.Context, f Filter, cursorToken string, limit int) (PageResult, error) {
	if id.IsNil(f.StoreID) {
		return PageResult{}, apperror.NewValidation("store_id is required")
	}
	after, err := DecodeCursor(cursorToken)
	if err != nil {
		return PageResult{}, err
	}
	limit = clampPageSize(limit)

	// One extra row tells whether another page exists.
	items, err := s.repo.Page(ctx, f, after, limit+1)
	if err != nil {
		return PageResult{}, fmt.Errorf("page movements: %w", err)
	}

	res := PageResult{Items: items}
	if len(items) > limit {
		res.Items = items[:limit]
		res.NextCursor = CursorAt(res.Items[limit-1]).Encode()
	}
	if res.Items == nil {
		res.Items = []Record{}
	}
	return res, nil
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// Turnover summarises movements of one product over a period.
type Turnover struct {
	Sold         types.Quantity `json:"sold"`
	Returned     types.Quantity `json:"returned"`
	Received     types.Quantity `json:"received"`
	Corrected    types.Quantity `json:"corrected"`
	Revenue      types.Money    `json:"revenue"`
	Refunded     types.Money    `json:"refunded"`
	CostOfSales  types.Money    `json:"cost_of_sales"`
	CostReturned types.Money    `json:"cost_returned"`
}

// NetRevenue is revenue less refunds.
func (t Turnover) NetRevenue() types.Money { return t.Revenue.Sub(t.Refunded) }

// Margin is net revenue less net cost.
func (t Turnover) Margin() types.Money {
	return t.NetRevenue().Sub(t.CostOfSales.Sub(t.CostReturned))
}

// Turnover walks the log for (store, product) in [from, to).
func (s *Service) Turnover(ctx context.Context, storeID, productID id.ID, from, to *time.Time) (Turnover, error) {
	t := Turnover{Revenue: types.Zero(), Refunded: types.Zero(), CostOfSales: types.Zero(), CostReturned: types.Zero()}
	it := s.Query(Filter{StoreID: storeID, ProductID: &productID, From: from, To: to}, MaxPageSize)
	for it.Next(ctx) {
		r := it.Record()
		abs := r.QuantityDelta.Abs()
		switch r.OperationType {
		case OperationSale:
			t.Sold += abs
			t.Revenue = t.Revenue.Add(priced(abs, r.SalePriceAtTime))
			t.CostOfSales = t.CostOfSales.Add(priced(abs, r.PurchasePriceAtTime))
		case OperationReturn:
			t.Returned += abs
			t.Refunded = t.Refunded.Add(priced(abs, r.SalePriceAtTime))
			t.CostReturned = t.CostReturned.Add(priced(abs, r.PurchasePriceAtTime))
		case OperationIncoming:
			t.Received += abs
		case OperationCorrection:
			t.Corrected += r.QuantityDelta
		}
	}
	return t, it.Err()
}

func priced(q types.Quantity, price *types.Money) types.Money {
	if price == nil {
		return types.Zero()
	}
	return types.LineAmount(q, *price)
}
