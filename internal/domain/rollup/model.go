// Package rollup maintains daily aggregate buckets (sales by payment method,
// per product, per unit type, size, category, customer, supplier, and the
// store's financial summary). Buckets only ever grow; averages are derived.
package rollup

import (
	"time"

	"github.com/shopspring/decimal"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// Dimension names a family of buckets.
type Dimension string

const (
	DimSalesSummary Dimension = "sales_summary"
	DimProduct      Dimension = "product"
	DimUnitType     Dimension = "unit_type"
	DimSize         Dimension = "size"
	DimCategory     Dimension = "category"
	DimCustomer     Dimension = "customer"
	DimSupplier     Dimension = "supplier"
	DimFinancial    Dimension = "financial"
	DimRefund       Dimension = "refund"
)

// Dimensions lists every known dimension.
var Dimensions = []Dimension{
	DimSalesSummary, DimProduct, DimUnitType, DimSize, DimCategory,
	DimCustomer, DimSupplier, DimFinancial, DimRefund,
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	for _, k := range Dimensions {
		if k == d {
			return true
		}
	}
	return false
}

// Key identifies a bucket. Value is the dimension-specific key
// (payment method, product id, unit label, ...); empty for financial.
type Key struct {
	Dimension Dimension `json:"dimension"`
	StoreID   id.ID     `json:"store_id"`
	Day       time.Time `json:"day"`
	Value     string    `json:"key"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bucket holds running totals for a key.
type Bucket struct {
	Key
	Label         string         `json:"label,omitempty"`
	Quantity      types.Quantity `json:"quantity"`
	Revenue       types.Money    `json:"revenue"`
	Cost          types.Money    `json:"cost"`
	DebtAdded     types.Money    `json:"debt_added"`
	CashTotal     types.Money    `json:"cash_total"`
	CardTotal     types.Money    `json:"card_total"`
	TransferTotal types.Money    `json:"transfer_total"`
	Discrepancy   types.Money    `json:"cash_discrepancy"`
	Transactions  int64          `json:"transactions"`
	ProductsCount int64          `json:"products_count"`
	ShiftsClosed  int64          `json:"shifts_closed"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AverageUnitPrice is revenue per unit sold.
func (b Bucket) AverageUnitPrice() types.Money {
	if b.Quantity == 0 {
		return types.Zero()
	}
	return types.RoundMoney(b.Revenue.Div(b.Quantity.Decimal()))
}

// AverageTransaction is revenue per transaction.
func (b Bucket) AverageTransaction() types.Money {
	if b.Transactions == 0 {
		return types.Zero()
	}
	return types.RoundMoney(b.Revenue.Div(decimal.NewFromInt(b.Transactions)))
}

// Margin is revenue less cost.
func (b Bucket) Margin() types.Money { return b.Revenue.Sub(b.Cost) }

// Delta is an increment applied to one bucket.
type Delta struct {
	Key
	Label         string
	Quantity      types.Quantity
	Revenue       types.Money
	Cost          types.Money
	DebtAdded     types.Money
	CashTotal     types.Money
	CardTotal     types.Money
	TransferTotal types.Money
	Discrepancy   types.Money
	Transactions  int64
	ShiftsClosed  int64
	// Products are counted once per bucket across all increments.
	Products []id.ID
}

func newDelta(k Key, label string) *Delta {
	z := types.Zero()
	return &Delta{
		Key: k, Label: label,
		Revenue: z, Cost: z, DebtAdded: z,
		CashTotal: z, CardTotal: z, TransferTotal: z, Discrepancy: z,
	}
}

func (d *Delta) addProduct(p id.ID) {
	for _, x := range d.Products {
		if x == p {
			return
		}
	}
	d.Products = append(d.Products, p)
}

// Query selects buckets of one dimension.
type Query struct {
	Dimension Dimension
	StoreID   id.ID
	From      *time.Time // inclusive day
	To        *time.Time // inclusive day
	Value     string
	Limit     int
	Offset    int
}
