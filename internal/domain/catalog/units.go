package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"sompos/internal/core/apperror"
	"sompos/internal/core/types"
)

type unitPair struct{ from, to string }

// conversionRates lists direct conversions; reverse pairs are derived.
var conversionRates = map[unitPair]decimal.Decimal{
	{"m", "cm"}:     decimal.NewFromInt(100),
	{"m", "mm"}:     decimal.NewFromInt(1000),
	{"cm", "mm"}:    decimal.NewFromInt(10),
	{"inch", "cm"}:  decimal.RequireFromString("2.54"),
	{"kg", "g"}:     decimal.NewFromInt(1000),
	{"l", "ml"}:     decimal.NewFromInt(1000),
	{"pcs", "pack"}: decimal.NewFromInt(1),
}

// ConversionRate returns how many `to` units make one `from` unit.
func ConversionRate(from, to string) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if r, ok := conversionRates[unitPair{from, to}]; ok {
		return r, true
	}
	if r, ok := conversionRates[unitPair{to, from}]; ok {
		return decimal.NewFromInt(1).DivRound(r, 12), true
	}
	return decimal.Decimal{}, false
}

// Convert expresses q (in unit from) in unit to, rounded half-up to 0.001.
func Convert(q types.Quantity, from, to string) (types.Quantity, error) {
	if from == "" || to == "" || from == to {
		return q, nil
	}
	rate, ok := ConversionRate(from, to)
	if !ok {
		return 0, apperror.NewValidation(fmt.Sprintf("cannot convert %s to %s", from, to)).
			WithDetail("from_unit", from).
			WithDetail("to_unit", to)
	}
	converted := q.Decimal().Mul(rate).Round(3)
	return types.NewQuantityFromDecimal(converted), nil
}
