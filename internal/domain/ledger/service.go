package ledger

import (
	"context"
	"fmt"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/pkg/logger"
)

// Service provides batch ledger operations.
// Transactions are managed by the caller (settlement engine).
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new batch ledger service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Consume takes qty from active batches in FIFO order.
// Availability is checked before any write, so a shortfall leaves every batch untouched.
func (s *Service) Consume(ctx context.Context, storeID, productID id.ID, qty types.Quantity) (ConsumptionPlan, error) {
	plan := ConsumptionPlan{StoreID: storeID, ProductID: productID, Requested: qty}
	if !qty.IsPositive() {
		return plan, apperror.NewValidation("consume quantity must be positive").WithDetail("quantity", qty.String())
	}

	batches, err := s.repo.ListActiveForUpdate(ctx, storeID, productID)
	if err != nil {
		return plan, fmt.Errorf("list batches: %w", err)
	}

	var available types.Quantity
	for _, b := range batches {
		available += b.Quantity
	}
	if available < qty {
		return plan, apperror.NewInsufficientStock(productID.String(), qty.String(), available.String())
	}

	remaining := qty
	now := s.now()
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.Quantity == 0 {
			continue
		}

		take := remaining.Min(b.Quantity)
		alloc := Allocation{
			BatchID:        b.ID,
			Quantity:       take,
			QuantityBefore: b.Quantity,
			UnitCost:       b.UnitCost,
			Supplier:       b.Supplier,
			ExpirationDate: b.ExpirationDate,
		}

		if len(b.Attributes) > 0 {
			parts, err := splitAttributes(b, take)
			if err != nil {
				return plan, err
			}
			for i, part := range parts {
				b.Attributes[i].Quantity -= part
				if part > 0 {
					alloc.Attributes = append(alloc.Attributes, AttributeAllocation{
						Name: b.Attributes[i].Name, Value: b.Attributes[i].Value, Quantity: part,
					})
				}
			}
		}

		b.Quantity -= take
		if b.Quantity == 0 {
			b.DeletedAt = &now
			alloc.Exhausted = true
		}
		if err := s.repo.Update(ctx, b); err != nil {
			return plan, fmt.Errorf("update batch %s: %w", b.ID, err)
		}

		plan.Allocations = append(plan.Allocations, alloc)
		remaining -= take
	}

	logger.Debug(ctx, "consumed batches",
		"store_id", storeID,
		"product_id", productID,
		"quantity", qty.String(),
		"batches", len(plan.Allocations),
	)
	return plan, nil
}

func splitAttributes(b Batch, take types.Quantity) ([]types.Quantity, error) {
	caps := make([]types.Quantity, len(b.Attributes))
	for i, a := range b.Attributes {
		caps[i] = a.Quantity
	}
	parts, err := types.Prorate(take, caps)
	if err != nil {
		return nil, apperror.NewConsistencyAlarm("attribute_mismatch", "batch attributes do not cover batch quantity").
			WithDetail("batch_id", b.ID.String()).
			WithCause(err)
	}
	return parts, nil
}

// RestoreRequest describes stock coming back from a reversed sale.
type RestoreRequest struct {
	StoreID   id.ID
	ProductID id.ID
	Quantity  types.Quantity
	// HintBatchID is the batch the quantity was originally consumed from.
	HintBatchID *id.ID
	// UnitCost and ExpirationDate apply when the hint batch is unknown.
	UnitCost       types.Money
	ExpirationDate *time.Time
	Attributes     []AttributeAllocation
}

// Restore puts quantity back. An active hint batch is topped up in place;
// otherwise a new "return" batch inherits the hint's cost and expiry.
func (s *Service) Restore(ctx context.Context, req RestoreRequest) (Batch, error) {
	if !req.Quantity.IsPositive() {
		return Batch{}, apperror.NewValidation("restore quantity must be positive").WithDetail("quantity", req.Quantity.String())
	}

	cost, expiry := req.UnitCost, req.ExpirationDate
	if req.HintBatchID != nil {
		hint, err := s.repo.Get(ctx, *req.HintBatchID)
		switch {
		case err == nil && hint.StoreID == req.StoreID && hint.ProductID == req.ProductID:
			if hint.Active() && canMergeAttributes(hint, req.Attributes) {
				hint.Quantity += req.Quantity
				hint.Attributes = mergeAttributes(hint.Attributes, req.Attributes)
				if err := s.repo.Update(ctx, hint); err != nil {
					return Batch{}, fmt.Errorf("update batch %s: %w", hint.ID, err)
				}
				return hint, nil
			}
			cost, expiry = hint.UnitCost, hint.ExpirationDate
		case err != nil && !apperror.IsNotFound(err):
			return Batch{}, fmt.Errorf("get hint batch: %w", err)
		}
	}

	b := Batch{
		ID:             id.New(),
		StoreID:        req.StoreID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		UnitCost:       cost,
		Supplier:       SupplierReturn,
		ExpirationDate: expiry,
		CreatedAt:      s.now(),
	}
	if sumAttributeAllocations(req.Attributes) == req.Quantity {
		for _, a := range req.Attributes {
			b.Attributes = append(b.Attributes, Attribute{Name: a.Name, Value: a.Value, Quantity: a.Quantity})
		}
	}
	if err := s.repo.Create(ctx, &b); err != nil {
		return Batch{}, fmt.Errorf("create return batch: %w", err)
	}
	return b, nil
}

// canMergeAttributes: plain batches take plain returns; attributed batches
// only take returns that say which attributes they belong to.
func canMergeAttributes(b Batch, back []AttributeAllocation) bool {
	if len(b.Attributes) == 0 {
		return len(back) == 0
	}
	return len(back) > 0
}

func mergeAttributes(attrs []Attribute, back []AttributeAllocation) []Attribute {
	for _, a := range back {
		found := false
		for i := range attrs {
			if attrs[i].Name == a.Name && attrs[i].Value == a.Value {
				attrs[i].Quantity += a.Quantity
				found = true
				break
			}
		}
		if !found {
			attrs = append(attrs, Attribute{Name: a.Name, Value: a.Value, Quantity: a.Quantity})
		}
	}
	return attrs
}

func sumAttributeAllocations(as []AttributeAllocation) types.Quantity {
	var t types.Quantity
	for _, a := range as {
		t += a.Quantity
	}
	return t
}

// Incoming describes a received lot.
type Incoming struct {
	StoreID        id.ID          `json:"store_id"`
	ProductID      id.ID          `json:"product_id"`
	Quantity       types.Quantity `json:"quantity"`
	UnitCost       types.Money    `json:"unit_cost"`
	Supplier       string         `json:"supplier"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Attributes     []Attribute    `json:"attributes,omitempty"`
}

// Validate checks an incoming lot.
func (in Incoming) Validate() error {
	if id.IsNil(in.StoreID) || id.IsNil(in.ProductID) {
		return apperror.NewValidation("store_id and product_id are required")
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("incoming quantity must be positive").WithDetail("quantity", in.Quantity.String())
	}
	if in.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").WithDetail("unit_cost", in.UnitCost.String())
	}
	return validateAttributes(in.Quantity, in.Attributes)
}

// AddIncoming creates a new active batch.
func (s *Service) AddIncoming(ctx context.Context, in Incoming) (Batch, error) {
	if err := in.Validate(); err != nil {
		return Batch{}, err
	}
	b := Batch{
		ID:             id.New(),
		StoreID:        in.StoreID,
		ProductID:      in.ProductID,
		Quantity:       in.Quantity,
		UnitCost:       types.RoundMoney(in.UnitCost),
		Supplier:       in.Supplier,
		ExpirationDate: in.ExpirationDate,
		Attributes:     append([]Attribute(nil), in.Attributes...),
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, &b); err != nil {
		return Batch{}, fmt.Errorf("create batch: %w", err)
	}
	logger.Info(ctx, "batch received",
		"batch_id", b.ID,
		"product_id", b.ProductID,
		"quantity", b.Quantity.String(),
	)
	return b, nil
}

// Available sums the active batches of a product.
func (s *Service) Available(ctx context.Context, storeID, productID id.ID) (types.Quantity, error) {
	return s.repo.SumActive(ctx, storeID, productID)
}

// ListActive returns active batches in consumption order.
func (s *Service) ListActive(ctx context.Context, storeID, productID id.ID) ([]Batch, error) {
	return s.repo.ListActive(ctx, storeID, productID)
}
