// Package types provides common type aliases and utilities.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyScale is the number of fractional digits persisted for money columns (NUMERIC(14,2)).
const MoneyScale int32 = 2

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to cents using banker's rounding, matching NUMERIC(14,2) writes.
func RoundMoney(m Money) Money {
	return m.RoundBank(MoneyScale)
}

// MoneyTolerance is the accepted drift between a payment split and the transaction total.
var MoneyTolerance = decimal.New(1, -MoneyScale)

// Quantity is a fixed-point quantity with 3 decimal places (scale = 1e3).
// Stored as a scaled BIGINT so that sums and comparisons never touch floats.
type Quantity int64

const (
	QuantityScale  int64 = 1_000
	quantityDigits       = 3
)

// MinQuantityStep is the smallest representable quantity (0.001).
const MinQuantityStep Quantity = 1

// NewQuantityFromInt returns a whole-unit quantity.
func NewQuantityFromInt(v int64) Quantity { return Quantity(v * QuantityScale) }


// NewQuantityFromDecimal converts a decimal, truncating digits past the third.
func NewQuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(quantityDigits).Truncate(0).IntPart())
}

// ParseQuantity parses a decimal string such as "1.25".
func ParseQuantity(s string) (Quantity, error) { return parseQuantityString(s) }

// MustQuantity parses a quantity, panics on error. Use only for constants and tests.
func MustQuantity(s string) Quantity {
	q, err := parseQuantityString(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

// Decimal returns the exact decimal representation.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -quantityDigits) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

// IsWhole reports whether the quantity has no fractional part.
func (q Quantity) IsWhole() bool { return int64(q)%QuantityScale == 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Min returns the smaller of q and o.
func (q Quantity) Min(o Quantity) Quantity {
	if o < q {
		return o
	}
	return q
}

// String returns a decimal string with 3 fractional digits.
func (q Quantity) String() string {
	neg := q < 0
	v := q
	if neg {
		v = -v
	}
	intPart := int64(v) / QuantityScale
	frac := int64(v) % QuantityScale
	if neg {
		return fmt.Sprintf("-%d.%03d", intPart, frac)
	}
	return fmt.Sprintf("%d.%03d", intPart, frac)
}

// MarshalJSON encodes Quantity as JSON number (not string), preserving 3 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := parseQuantityString(s)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	}

	parsed, err := parseQuantityString(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseQuantityString(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	if strings.ContainsAny(s, "eE") {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("parse quantity: %w", err)
		}
		return quantityFromDecimalExact(s, d)
	}

	sign := int64(1)
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = strings.TrimPrefix(s, "-")
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimPrefix(s, "+")
	}

	intPartStr, fracStr, _ := strings.Cut(s, ".")
	if intPartStr == "" {
		intPartStr = "0"
	}
	intPart, err := strconv.ParseInt(intPartStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity integer part: %w", err)
	}

	if len(fracStr) > quantityDigits {
		if strings.Trim(fracStr[quantityDigits:], "0") != "" {
			return 0, fmt.Errorf("quantity %q has more than %d decimal places", s, quantityDigits)
		}
		fracStr = fracStr[:quantityDigits]
	}
	for len(fracStr) < quantityDigits {
		fracStr += "0"
	}
	frac, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity fractional part: %w", err)
	}
	if intPart > (math.MaxInt64-frac)/QuantityScale {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}

	return Quantity(sign * (intPart*QuantityScale + frac)), nil
}

var maxQuantityDecimal = decimal.NewFromInt(math.MaxInt64)

// quantityFromDecimalExact rejects values that need more than three decimal
// places or do not fit in thousandths.
func quantityFromDecimalExact(s string, d decimal.Decimal) (Quantity, error) {
	scaled := d.Shift(quantityDigits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("quantity %q has more than %d decimal places", s, quantityDigits)
	}
	if scaled.Abs().GreaterThan(maxQuantityDecimal) {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	return Quantity(scaled.IntPart()), nil
}

// LineAmount is qty * unitPrice rounded to cents.
func LineAmount(q Quantity, unitPrice Money) Money {
	return RoundMoney(q.Decimal().Mul(unitPrice))
}
