package types

import (
	"fmt"
	"math/bits"
)

// Prorate splits share across parts in proportion to their capacities.
// Each part gets floor(cap * share / Σcap) in 0.001 steps; the rounding remainder
// is assigned walking backwards, never exceeding a part's capacity.
// The result always sums to share exactly.
func Prorate(share Quantity, caps []Quantity) ([]Quantity, error) {
	out := make([]Quantity, len(caps))
	if share == 0 {
		return out, nil
	}
	if share < 0 {
		return nil, fmt.Errorf("prorate: negative share %s", share)
	}

	var total Quantity
	for i, c := range caps {
		if c < 0 {
			return nil, fmt.Errorf("prorate: negative capacity at %d", i)
		}
		if total > maxQuantity-c {
			return nil, fmt.Errorf("prorate: total capacity out of range")
		}
		total += c
	}
	if total < share {
		return nil, fmt.Errorf("prorate: share %s exceeds capacity %s", share, total)
	}

	var assigned Quantity
	for i, c := range caps {
		out[i] = mulDiv(c, share, total)
		assigned += out[i]
	}

	rest := share - assigned
	for i := len(caps) - 1; i >= 0 && rest > 0; i-- {
		room := caps[i] - out[i]
		add := rest.Min(room)
		out[i] += add
		rest -= add
	}
	return out, nil
}

const maxQuantity = Quantity(1<<63 - 1)

// mulDiv returns floor(a*b/c) through a 128-bit product. All inputs are
// non-negative and a <= c, so the quotient fits in int64.
func mulDiv(a, b, c Quantity) Quantity {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return Quantity(q)
}
