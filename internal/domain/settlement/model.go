// Package settlement runs the sale pipeline: FIFO batch consumption, stock
// aggregate update, movement log, cash register and rollups, all in one unit
// of work guarded by a per-transaction lock and a processed marker.
package settlement

import (
	"fmt"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/movement"
)

// PaymentMethod is how the customer paid.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentDebt     PaymentMethod = "debt"
	PaymentHybrid   PaymentMethod = "hybrid"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentDebt, PaymentHybrid:
		return true
	}
	return false
}

// LineItem is one product line of a sale. Quantity and Price are expressed
// in Unit; an empty Unit means the product's own unit.
type LineItem struct {
	ID        id.ID          `json:"id"`
	ProductID id.ID          `json:"product_id"`
	Quantity  types.Quantity `json:"quantity"`
	Price     types.Money    `json:"price"`
	Unit      string         `json:"unit,omitempty"`
}

// Amount is quantity times price, rounded to cents.
func (li LineItem) Amount() types.Money { return types.LineAmount(li.Quantity, li.Price) }

// PaymentSplit is what the client reports per tender.
type PaymentSplit struct {
	Cash     types.Money `json:"cash"`
	Card     types.Money `json:"card"`
	Transfer types.Money `json:"transfer"`
}

func (p PaymentSplit) sum() types.Money { return p.Cash.Add(p.Card).Add(p.Transfer) }

// Payment is the normalized split including the debt part.
type Payment struct {
	Cash     types.Money `json:"cash"`
	Card     types.Money `json:"card"`
	Transfer types.Money `json:"transfer"`
	Debt     types.Money `json:"debt"`
}

// Transaction is a sale to settle.
type Transaction struct {
	ID            id.ID         `json:"id"`
	StoreID       id.ID         `json:"store_id"`
	Items         []LineItem    `json:"items"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Payment       PaymentSplit  `json:"payment"`
	CustomerID    *id.ID        `json:"customer_id,omitempty"`
	CashierID     string        `json:"cashier_id"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Total sums line amounts.
func (t Transaction) Total() types.Money {
	total := types.Zero()
	for _, li := range t.Items {
		total = total.Add(li.Amount())
	}
	return total
}

// Validate checks the transaction shape without touching storage.
func (t Transaction) Validate() error {
	if id.IsNil(t.ID) || id.IsNil(t.StoreID) {
		return apperror.NewValidation("transaction id and store_id are required")
	}
	if len(t.Items) == 0 {
		return apperror.NewValidation("transaction has no line items")
	}
	if !t.PaymentMethod.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown payment method %q", t.PaymentMethod))
	}
	if t.PaymentMethod == PaymentDebt && t.CustomerID == nil {
		return apperror.NewValidation("debt sale requires customer_id")
	}

	seen := make(map[id.ID]struct{}, len(t.Items))
	for i, li := range t.Items {
		if id.IsNil(li.ID) || id.IsNil(li.ProductID) {
			return apperror.NewValidation(fmt.Sprintf("item %d: id and product_id are required", i))
		}
		if _, dup := seen[li.ID]; dup {
			return apperror.NewValidation(fmt.Sprintf("item %d: duplicate item id", i)).WithDetail("item_id", li.ID.String())
		}
		seen[li.ID] = struct{}{}
		if !li.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if li.Price.IsNegative() {
			return apperror.NewValidation(fmt.Sprintf("item %d: price must not be negative", i))
		}
	}
	return nil
}

// NormalizePayment resolves the split against the total.
// Single-tender methods with an empty split take the whole total; debt takes
// whatever was not paid; every other split must match the total within a cent.
func (t Transaction) NormalizePayment() (Payment, error) {
	split := t.Payment
	if split.Cash.IsNegative() || split.Card.IsNegative() || split.Transfer.IsNegative() {
		return Payment{}, apperror.NewValidation("payment amounts must not be negative")
	}

	total := t.Total()
	paid := split.sum()
	p := Payment{Cash: split.Cash, Card: split.Card, Transfer: split.Transfer, Debt: types.Zero()}

	if paid.IsZero() {
		switch t.PaymentMethod {
		case PaymentCash:
			p.Cash = total
			return p, nil
		case PaymentCard:
			p.Card = total
			return p, nil
		case PaymentTransfer:
			p.Transfer = total
			return p, nil
		}
	}

	if t.PaymentMethod == PaymentDebt {
		if paid.GreaterThan(total) {
			return Payment{}, splitMismatch(total, paid)
		}
		p.Debt = total.Sub(paid)
		return p, nil
	}

	if total.Sub(paid).Abs().GreaterThan(types.MoneyTolerance) {
		return Payment{}, splitMismatch(total, paid)
	}
	return p, nil
}

func splitMismatch(total, paid types.Money) error {
	return apperror.NewValidation("payment split does not match transaction total").
		WithDetail("total", total.String()).
		WithDetail("paid", paid.String())
}

// Status is the outcome reported to the caller.
type Status string

const (
	StatusSettled         Status = "settled"
	StatusAlreadySettled  Status = "already_settled"
	StatusReversed        Status = "reversed"
	StatusAlreadyReversed Status = "already_reversed"
)

// LineResult is the ledger outcome of one line item.
type LineResult struct {
	ItemID       id.ID               `json:"item_id"`
	ProductID    id.ID               `json:"product_id"`
	Quantity     types.Quantity      `json:"quantity"`
	Revenue      types.Money         `json:"revenue"`
	Cost         types.Money         `json:"cost"`
	Movement     movement.Record     `json:"movement"`
	Allocations  []ledger.Allocation `json:"allocations"`
	UnitPrice    types.Money         `json:"unit_price"`
	PurchaseCost types.Money         `json:"purchase_cost"`
}

// Result is returned by Settle.
type Result struct {
	TransactionID id.ID        `json:"transaction_id"`
	Status        Status       `json:"status"`
	Total         types.Money  `json:"total"`
	Payment       Payment      `json:"payment"`
	CashApplied   types.Money  `json:"cash_applied"`
	Lines         []LineResult `json:"lines"`
	SettledAt     time.Time    `json:"settled_at"`
}

// ReverseResult is returned by Reverse.
type ReverseResult struct {
	TransactionID id.ID             `json:"transaction_id"`
	Status        Status            `json:"status"`
	Movements     []movement.Record `json:"movements"`
	CashRefunded  types.Money       `json:"cash_refunded"`
	ReversedAt    time.Time         `json:"reversed_at"`
}

// MarkerStatus tracks a processed transaction.
type MarkerStatus string

const (
	MarkerSettled  MarkerStatus = "settled"
	MarkerReversed MarkerStatus = "reversed"
)

// Marker is the processed-transaction record: the single idempotency key of
// the pipeline, carrying what reversal needs.
type Marker struct {
	TransactionID id.ID        `json:"transaction_id"`
	StoreID       id.ID        `json:"store_id"`
	Status        MarkerStatus `json:"status"`
	Transaction   Transaction  `json:"transaction"`
	Result        Result       `json:"result"`
	SettledAt     time.Time    `json:"settled_at"`
	ReversedAt    *time.Time   `json:"reversed_at,omitempty"`
	ReversedBy    string       `json:"reversed_by,omitempty"`
}
