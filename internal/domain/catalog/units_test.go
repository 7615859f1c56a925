package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/apperror"
	"sompos/internal/core/types"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		qty      string
		from, to string
		want     string
	}{
		{name: "same unit", qty: "2.5", from: "m", to: "m", want: "2.500"},
		{name: "direct", qty: "1.5", from: "m", to: "cm", want: "150.000"},
		{name: "reverse", qty: "250", from: "cm", to: "m", want: "2.500"},
		{name: "grams to kg", qty: "750", from: "g", to: "kg", want: "0.750"},
		{name: "inch", qty: "10", from: "inch", to: "cm", want: "25.400"},
		{name: "empty source keeps quantity", qty: "3", from: "", to: "kg", want: "3.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(types.MustQuantity(tt.qty), tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestConvert_Incompatible(t *testing.T) {
	_, err := Convert(types.NewQuantityFromInt(1), "kg", "m")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestUnit_ValidateQuantity(t *testing.T) {
	pieces := Unit{Kind: UnitKindSystem, Code: "pcs", Display: "pcs"}
	meters := Unit{Kind: UnitKindSystem, Code: "m", Display: "m", AllowDecimal: true, MinSaleQty: types.MustQuantity("0.5"), Step: types.MustQuantity("0.1")}

	assert.NoError(t, pieces.ValidateQuantity(types.NewQuantityFromInt(3)))
	assert.Error(t, pieces.ValidateQuantity(types.MustQuantity("1.5")))
	assert.Error(t, pieces.ValidateQuantity(0))

	assert.NoError(t, meters.ValidateQuantity(types.MustQuantity("1.2")))
	assert.Error(t, meters.ValidateQuantity(types.MustQuantity("0.3")), "below minimum")
	assert.Error(t, meters.ValidateQuantity(types.MustQuantity("1.25")), "off step")

	assert.Equal(t, "system/m", meters.TypeLabel())
}
