// Package catalog holds the read-only product view the ledger needs:
// sell units, size and category labels, and the running purchase price.
// Product CRUD lives outside this service.
package catalog

import (
	"context"
	"fmt"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// UnitKind distinguishes built-in units from store-defined ones.
type UnitKind string

const (
	UnitKindSystem UnitKind = "system"
	UnitKindCustom UnitKind = "custom"
)

// Unit describes how a product is sold.
type Unit struct {
	Kind         UnitKind       `json:"kind" db:"unit_kind"`
	Code         string         `json:"code" db:"unit_code"`
	Display      string         `json:"display" db:"unit_display"`
	AllowDecimal bool           `json:"allow_decimal" db:"unit_allow_decimal"`
	MinSaleQty   types.Quantity `json:"min_sale_quantity" db:"unit_min_sale_qty"`
	Step         types.Quantity `json:"step" db:"unit_step"`
}

// TypeLabel is the "kind/display" key used by the unit_type rollup.
func (u Unit) TypeLabel() string {
	kind := u.Kind
	if kind == "" {
		kind = UnitKindSystem
	}
	return fmt.Sprintf("%s/%s", kind, u.Display)
}

// ValidateQuantity checks a sale quantity (already in this unit) against the unit rules.
func (u Unit) ValidateQuantity(q types.Quantity) error {
	if !q.IsPositive() {
		return apperror.NewValidation("quantity must be positive").WithDetail("quantity", q.String())
	}
	if !u.AllowDecimal && !q.IsWhole() {
		return apperror.NewValidation(fmt.Sprintf("unit %q does not allow fractional quantities", u.Display)).
			WithDetail("quantity", q.String())
	}
	if u.MinSaleQty > 0 && q < u.MinSaleQty {
		return apperror.NewValidation(fmt.Sprintf("minimum sale quantity is %s", u.MinSaleQty)).
			WithDetail("quantity", q.String())
	}
	if u.Step > 0 && int64(q)%int64(u.Step) != 0 {
		return apperror.NewValidation(fmt.Sprintf("quantity must be a multiple of %s", u.Step)).
			WithDetail("quantity", q.String())
	}
	return nil
}

// Label is a named grouping attached to a product (size, category).
type Label struct {
	ID   id.ID  `json:"id"`
	Name string `json:"name"`
}

// Product is the ledger's view of a catalog item.
type Product struct {
	ID            id.ID       `json:"id"`
	StoreID       id.ID       `json:"store_id"`
	Name          string      `json:"name"`
	Unit          Unit        `json:"unit"`
	Size          *Label      `json:"size,omitempty"`
	Category      *Label      `json:"category,omitempty"`
	PurchasePrice types.Money `json:"purchase_price"`
}

// CategoryName returns the category label or a placeholder.
func (p Product) CategoryName() string {
	if p.Category == nil || p.Category.Name == "" {
		return "uncategorized"
	}
	return p.Category.Name
}

// Provider resolves products for a store.
type Provider interface {
	// GetProducts returns the requested products keyed by id.
	// Unknown ids yield a NOT_FOUND error.
	GetProducts(ctx context.Context, storeID id.ID, ids []id.ID) (map[id.ID]Product, error)
}
