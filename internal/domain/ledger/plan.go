package ledger

import (
	"time"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// AttributeAllocation is the part of an allocation taken from one attribute.
type AttributeAllocation struct {
	Name     string         `json:"name"`
	Value    string         `json:"value"`
	Quantity types.Quantity `json:"quantity"`
}

// Allocation records how much was taken from a single batch.
type Allocation struct {
	BatchID        id.ID                 `json:"batch_id"`
	Quantity       types.Quantity        `json:"quantity"`
	QuantityBefore types.Quantity        `json:"quantity_before"`
	UnitCost       types.Money           `json:"unit_cost"`
	Supplier       string                `json:"supplier"`
	ExpirationDate *time.Time            `json:"expiration_date,omitempty"`
	Exhausted      bool                  `json:"exhausted"`
	Attributes     []AttributeAllocation `json:"attributes,omitempty"`
}

// Cost is the purchase cost of the allocated quantity.
func (a Allocation) Cost() types.Money {
	return types.RoundMoney(a.Quantity.Decimal().Mul(a.UnitCost))
}

// ConsumptionPlan is the outcome of a FIFO consume.
type ConsumptionPlan struct {
	StoreID     id.ID          `json:"store_id"`
	ProductID   id.ID          `json:"product_id"`
	Requested   types.Quantity `json:"requested"`
	Allocations []Allocation   `json:"allocations"`
}

// Total is the allocated quantity; equals Requested for a successful plan.
func (p ConsumptionPlan) Total() types.Quantity {
	var t types.Quantity
	for _, a := range p.Allocations {
		t += a.Quantity
	}
	return t
}

// Cost is the summed purchase cost across allocations.
func (p ConsumptionPlan) Cost() types.Money {
	c := types.Zero()
	for _, a := range p.Allocations {
		c = c.Add(a.Cost())
	}
	return c
}

// AverageUnitCost is the weighted cost per unit, or zero for an empty plan.
func (p ConsumptionPlan) AverageUnitCost() types.Money {
	total := p.Total()
	if total == 0 {
		return types.Zero()
	}
	return types.RoundMoney(p.Cost().Div(total.Decimal()))
}

// SupplierShare is the quantity and cost a plan drew from one supplier.
type SupplierShare struct {
	Supplier string
	Quantity types.Quantity
	Cost     types.Money
}

// BySupplier groups allocations by supplier, in first-seen order.
func (p ConsumptionPlan) BySupplier() []SupplierShare {
	var out []SupplierShare
	idx := make(map[string]int)
	for _, a := range p.Allocations {
		i, ok := idx[a.Supplier]
		if !ok {
			i = len(out)
			idx[a.Supplier] = i
			out = append(out, SupplierShare{Supplier: a.Supplier, Cost: types.Zero()})
		}
		out[i].Quantity += a.Quantity
		out[i].Cost = out[i].Cost.Add(a.Cost())
	}
	return out
}
