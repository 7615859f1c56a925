package rollup

import (
	"sort"
	"time"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// SupplierShare is the part of a line drawn from one supplier's batches.
type SupplierShare struct {
	Supplier string
	Quantity types.Quantity
	Cost     types.Money
}

// SaleLine is one settled line item as the aggregator sees it.
type SaleLine struct {
	ProductID id.ID
	Quantity  types.Quantity
	Revenue   types.Money
	Cost      types.Money
	UnitLabel string
	SizeName  string
	Category  string
	Suppliers []SupplierShare
}

// Sale is a settled transaction.
type Sale struct {
	TransactionID id.ID
	StoreID       id.ID
	At            time.Time
	PaymentMethod string
	CustomerID    *id.ID
	Total         types.Money
	Cash          types.Money
	Card          types.Money
	Transfer      types.Money
	Debt          types.Money
	Lines         []SaleLine
}

// Refund is a reversed transaction.
type Refund struct {
	TransactionID id.ID
	StoreID       id.ID
	At            time.Time
	PaymentMethod string
	Total         types.Money
	Cash          types.Money
	Quantity      types.Quantity
}

// builder collects deltas, merging those that share a key.
type builder struct {
	byKey map[Key]*Delta
}

func newBuilder() *builder { return &builder{byKey: make(map[Key]*Delta)} }

func (b *builder) at(k Key, label string) *Delta {
	d, ok := b.byKey[k]
	if !ok {
		d = newDelta(k, label)
		b.byKey[k] = d
	}
	return d
}

// sorted returns deltas in a fixed order so concurrent writers lock buckets
// in the same sequence.
func (b *builder) sorted() []Delta {
	out := make([]Delta, 0, len(b.byKey))
	for _, d := range b.byKey {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// saleDeltas expands a sale into bucket increments. Each key counts the
// transaction once even if several lines map to it.
func saleDeltas(s Sale) []Delta {
	day := Day(s.At)
	key := func(dim Dimension, v string) Key {
		return Key{Dimension: dim, StoreID: s.StoreID, Day: day, Value: v}
	}
	b := newBuilder()

	var totalQty types.Quantity
	totalCost := types.Zero()
	for _, l := range s.Lines {
		totalQty += l.Quantity
		totalCost = totalCost.Add(l.Cost)

		p := b.at(key(DimProduct, l.ProductID.String()), "")
		p.Quantity += l.Quantity
		p.Revenue = p.Revenue.Add(l.Revenue)
		p.Cost = p.Cost.Add(l.Cost)
		p.Transactions = 1

		if l.UnitLabel != "" {
			u := b.at(key(DimUnitType, l.UnitLabel), l.UnitLabel)
			u.Quantity += l.Quantity
			u.Revenue = u.Revenue.Add(l.Revenue)
			u.Transactions = 1
			u.addProduct(l.ProductID)
		}

		if l.SizeName != "" {
			z := b.at(key(DimSize, l.SizeName), l.SizeName)
			z.Quantity += l.Quantity
			z.Revenue = z.Revenue.Add(l.Revenue)
			z.Transactions = 1
			z.addProduct(l.ProductID)
		}

		if l.Category != "" {
			c := b.at(key(DimCategory, l.Category), l.Category)
			c.Quantity += l.Quantity
			c.Revenue = c.Revenue.Add(l.Revenue)
			c.Cost = c.Cost.Add(l.Cost)
			c.Transactions = 1
			c.addProduct(l.ProductID)
		}

		for _, sh := range supplierRevenue(l) {
			sup := b.at(key(DimSupplier, sh.share.Supplier), sh.share.Supplier)
			sup.Quantity += sh.share.Quantity
			sup.Revenue = sup.Revenue.Add(sh.revenue)
			sup.Cost = sup.Cost.Add(sh.share.Cost)
			sup.Transactions = 1
			sup.addProduct(l.ProductID)
		}
	}

	ss := b.at(key(DimSalesSummary, s.PaymentMethod), s.PaymentMethod)
	ss.Quantity = totalQty
	ss.Revenue = s.Total
	ss.Cost = totalCost
	ss.Transactions = 1

	if s.CustomerID != nil {
		c := b.at(key(DimCustomer, s.CustomerID.String()), "")
		c.Quantity = totalQty
		c.Revenue = s.Total
		c.DebtAdded = s.Debt
		c.Transactions = 1
	}

	f := b.at(key(DimFinancial, ""), "")
	f.Revenue = s.Total
	f.Cost = totalCost
	f.CashTotal = s.Cash
	f.CardTotal = s.Card
	f.TransferTotal = s.Transfer
	f.DebtAdded = s.Debt
	f.Quantity = totalQty
	f.Transactions = 1

	return b.sorted()
}

type supplierPart struct {
	share   SupplierShare
	revenue types.Money
}

// supplierRevenue splits line revenue across suppliers by quantity; the last
// supplier takes the rounding remainder.
func supplierRevenue(l SaleLine) []supplierPart {
	out := make([]supplierPart, 0, len(l.Suppliers))
	if l.Quantity == 0 {
		return out
	}
	rest := l.Revenue
	for i, sh := range l.Suppliers {
		rev := rest
		if i < len(l.Suppliers)-1 {
			rev = types.RoundMoney(l.Revenue.Mul(sh.Quantity.Decimal()).Div(l.Quantity.Decimal()))
		}
		rest = rest.Sub(rev)
		out = append(out, supplierPart{share: sh, revenue: rev})
	}
	return out
}

func refundDeltas(r Refund) []Delta {
	d := newDelta(Key{Dimension: DimRefund, StoreID: r.StoreID, Day: Day(r.At), Value: r.PaymentMethod}, r.PaymentMethod)
	d.Quantity = r.Quantity
	d.Revenue = r.Total
	d.CashTotal = r.Cash
	d.Transactions = 1
	return []Delta{*d}
}
