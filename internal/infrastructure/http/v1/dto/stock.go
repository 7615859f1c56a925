package dto

import (
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/movement"
	"sompos/internal/domain/stock"
)

// StockResponse is the cached quantity of one product.
type StockResponse struct {
	stock.Aggregate
	Drift *types.Quantity `json:"drift,omitempty"`
}

// MovementFilter is the query of GET /stores/:store_id/movements.
type MovementFilter struct {
	DayRange
	ProductID     string `form:"product_id" binding:"omitempty,uuid"`
	OperationType string `form:"operation_type" binding:"omitempty,operation_type"`
	Cursor        string `form:"cursor"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ToDomain builds the movement filter for a store. ProductID has been validated.
func (f MovementFilter) ToDomain(storeID id.ID) movement.Filter {
	out := movement.Filter{StoreID: storeID, From: f.From, To: f.EndExclusive()}
	if f.ProductID != "" {
		pid := id.MustParse(f.ProductID)
		out.ProductID = &pid
	}
	if f.OperationType != "" {
		op := movement.OperationType(f.OperationType)
		out.OperationType = &op
	}
	return out
}

// TurnoverResponse wraps the turnover of one product over a range.
type TurnoverResponse struct {
	StoreID   id.ID `json:"store_id"`
	ProductID id.ID `json:"product_id"`
	DayRange
	movement.Turnover
	Margin types.Money `json:"margin"`
}

// NewTurnoverResponse derives margin as revenue net of refunds less net cost.
func NewTurnoverResponse(storeID, productID id.ID, r DayRange, t movement.Turnover) TurnoverResponse {
	net := t.Revenue.Sub(t.Refunded)
	cost := t.CostOfSales.Sub(t.CostReturned)
	return TurnoverResponse{
		StoreID:   storeID,
		ProductID: productID,
		DayRange:  r,
		Turnover:  t,
		Margin:    net.Sub(cost),
	}
}
