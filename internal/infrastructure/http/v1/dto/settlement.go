package dto

import (
	"time"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/settlement"
)

// LineItemRequest is one line of a sale.
type LineItemRequest struct {
	ID        id.ID          `json:"id" binding:"required"`
	ProductID id.ID          `json:"product_id" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	Price     types.Money    `json:"price"`
	Unit      string         `json:"unit"`
}

// PaymentRequest is the tender split reported by the till.
type PaymentRequest struct {
	Cash     types.Money `json:"cash"`
	Card     types.Money `json:"card"`
	Transfer types.Money `json:"transfer"`
}

// SettleRequest is the body of POST /transactions/settle.
type SettleRequest struct {
	ID            id.ID             `json:"id" binding:"required"`
	StoreID       id.ID             `json:"store_id" binding:"required"`
	Items         []LineItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string            `json:"payment_method" binding:"required,payment_method"`
	Payment       PaymentRequest    `json:"payment"`
	CustomerID    *id.ID            `json:"customer_id"`
	CashierID     string            `json:"cashier_id"`
	CreatedAt     *time.Time        `json:"created_at"`
}

// ToTransaction converts the request. cashier fills an empty CashierID.
func (r SettleRequest) ToTransaction(cashier string, now time.Time) settlement.Transaction {
	t := settlement.Transaction{
		ID:            r.ID,
		StoreID:       r.StoreID,
		Items:         make([]settlement.LineItem, len(r.Items)),
		PaymentMethod: settlement.PaymentMethod(r.PaymentMethod),
		Payment: settlement.PaymentSplit{
			Cash:     r.Payment.Cash,
			Card:     r.Payment.Card,
			Transfer: r.Payment.Transfer,
		},
		CustomerID: r.CustomerID,
		CashierID:  r.CashierID,
		CreatedAt:  now,
	}
	if t.CashierID == "" {
		t.CashierID = cashier
	}
	if r.CreatedAt != nil {
		t.CreatedAt = r.CreatedAt.UTC()
	}
	for i, li := range r.Items {
		t.Items[i] = settlement.LineItem{
			ID:        li.ID,
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			Price:     li.Price,
			Unit:      li.Unit,
		}
	}
	return t
}

// ReceiveRequest is the body of POST /stores/:store_id/batches.
type ReceiveRequest struct {
	ProductID      id.ID              `json:"product_id" binding:"required"`
	Quantity       types.Quantity     `json:"quantity" binding:"required"`
	UnitCost       types.Money        `json:"unit_cost"`
	Supplier       string             `json:"supplier" binding:"max=200"`
	ExpirationDate *time.Time         `json:"expiration_date"`
	Attributes     []ledger.Attribute `json:"attributes" binding:"dive"`
	Notes          string             `json:"notes" binding:"max=500"`
}

// ToDomain converts the request for a store.
func (r ReceiveRequest) ToDomain(storeID id.ID, actor string) settlement.ReceiveRequest {
	return settlement.ReceiveRequest{
		Incoming: ledger.Incoming{
			StoreID:        storeID,
			ProductID:      r.ProductID,
			Quantity:       r.Quantity,
			UnitCost:       r.UnitCost,
			Supplier:       r.Supplier,
			ExpirationDate: r.ExpirationDate,
			Attributes:     r.Attributes,
		},
		Actor: actor,
		Notes: r.Notes,
	}
}

// AdjustRequest is the body of POST /stores/:store_id/adjustments.
type AdjustRequest struct {
	ProductID id.ID          `json:"product_id" binding:"required"`
	Delta     types.Quantity `json:"delta" binding:"required"`
	Reason    string         `json:"reason" binding:"required,max=500"`
	UnitCost  types.Money    `json:"unit_cost"`
}

// ToDomain converts the request for a store.
func (r AdjustRequest) ToDomain(storeID id.ID, actor string) settlement.AdjustRequest {
	return settlement.AdjustRequest{
		StoreID:   storeID,
		ProductID: r.ProductID,
		Delta:     r.Delta,
		Reason:    r.Reason,
		UnitCost:  r.UnitCost,
		Actor:     actor,
	}
}

// BatchFilter is the query of GET /stores/:store_id/batches.
type BatchFilter struct {
	ProductID string `form:"product_id" binding:"required,uuid"`
}
