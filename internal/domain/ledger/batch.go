// Package ledger implements the batch ledger: per-lot stock with FIFO consumption.
// A batch is active while deleted_at is unset; reaching zero soft-deletes it.
package ledger

import (
	"sort"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// Suppliers recorded on batches the ledger creates itself.
const (
	SupplierReturn     = "return"
	SupplierCorrection = "correction"
)

// Attribute is a labelled slice of a batch (colour, lot number, ...).
// The quantities of a batch's attributes always sum to the batch quantity.
type Attribute struct {
	Name     string         `json:"name"`
	Value    string         `json:"value"`
	Quantity types.Quantity `json:"quantity"`
}

// Batch is a single received lot of a product in a store.
type Batch struct {
	ID             id.ID          `json:"id"`
	StoreID        id.ID          `json:"store_id"`
	ProductID      id.ID          `json:"product_id"`
	Quantity       types.Quantity `json:"quantity"`
	UnitCost       types.Money    `json:"unit_cost"`
	Supplier       string         `json:"supplier"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Attributes     []Attribute    `json:"attributes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// Active reports whether the batch still participates in stock.
func (b Batch) Active() bool { return b.DeletedAt == nil }

// Clone returns a deep copy.
func (b Batch) Clone() Batch {
	c := b
	if b.Attributes != nil {
		c.Attributes = append([]Attribute(nil), b.Attributes...)
	}
	if b.ExpirationDate != nil {
		t := *b.ExpirationDate
		c.ExpirationDate = &t
	}
	if b.DeletedAt != nil {
		t := *b.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

func validateAttributes(total types.Quantity, attrs []Attribute) error {
	if len(attrs) == 0 {
		return nil
	}
	var sum types.Quantity
	for _, a := range attrs {
		if a.Quantity < 0 {
			return apperror.NewValidation("attribute quantity must not be negative").WithDetail("attribute", a.Name)
		}
		sum += a.Quantity
	}
	if sum != total {
		return apperror.NewValidation("attribute quantities must sum to the batch quantity").
			WithDetail("batch_quantity", total.String()).
			WithDetail("attributes_total", sum.String())
	}
	return nil
}

// FIFOLess orders batches by expiry (nulls last), then receipt time, then id.
func FIFOLess(a, b Batch) bool {
	switch {
	case a.ExpirationDate != nil && b.ExpirationDate == nil:
		return true
	case a.ExpirationDate == nil && b.ExpirationDate != nil:
		return false
	case a.ExpirationDate != nil && !a.ExpirationDate.Equal(*b.ExpirationDate):
		return a.ExpirationDate.Before(*b.ExpirationDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return id.Less(a.ID, b.ID)
}

// SortFIFO sorts batches in consumption order.
func SortFIFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool { return FIFOLess(batches[i], batches[j]) })
}
