package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(qs []Quantity) Quantity {
	var s Quantity
	for _, q := range qs {
		s += q
	}
	return s
}

func TestProrate(t *testing.T) {
	tests := []struct {
		name  string
		share Quantity
		caps  []Quantity
		want  []Quantity
	}{
		{name: "even split", share: 4000, caps: []Quantity{4000, 4000}, want: []Quantity{2000, 2000}},
		{name: "remainder goes to last", share: 1000, caps: []Quantity{1000, 1000, 1000}, want: []Quantity{333, 333, 334}},
		{name: "full consumption", share: 5000, caps: []Quantity{2000, 3000}, want: []Quantity{2000, 3000}},
		{name: "zero share", share: 0, caps: []Quantity{2000}, want: []Quantity{0}},
		{name: "remainder skips full part", share: 2, caps: []Quantity{2, 1}, want: []Quantity{1, 1}},
		{
			name:  "large capacities",
			share: NewQuantityFromInt(4_000_000),
			caps:  []Quantity{NewQuantityFromInt(2_500_000), NewQuantityFromInt(2_500_000)},
			want:  []Quantity{NewQuantityFromInt(2_000_000), NewQuantityFromInt(2_000_000)},
		},
		{
			name:  "large uneven capacities",
			share: NewQuantityFromInt(3_000_000),
			caps:  []Quantity{NewQuantityFromInt(1_000_000), NewQuantityFromInt(5_000_000)},
			want:  []Quantity{NewQuantityFromInt(500_000), NewQuantityFromInt(2_500_000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prorate(tt.share, tt.caps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.share, sum(got))
			for i := range got {
				assert.LessOrEqual(t, got[i], tt.caps[i])
				assert.GreaterOrEqual(t, got[i], Quantity(0))
			}
		})
	}
}

func TestProrate_Errors(t *testing.T) {
	_, err := Prorate(5000, []Quantity{1000, 1000})
	assert.Error(t, err)

	_, err = Prorate(-1, []Quantity{1000})
	assert.Error(t, err)
}
