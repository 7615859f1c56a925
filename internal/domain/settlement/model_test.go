package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

func newTx(method PaymentMethod, split PaymentSplit) Transaction {
	return Transaction{
		ID:      id.New(),
		StoreID: id.New(),
		Items: []LineItem{
			{ID: id.New(), ProductID: id.New(), Quantity: types.MustQuantity("2"), Price: types.MustMoney("7.50")},
			{ID: id.New(), ProductID: id.New(), Quantity: types.MustQuantity("1"), Price: types.MustMoney("5.00")},
		},
		PaymentMethod: method,
		Payment:       split,
	}
}

func m(s string) types.Money { return types.MustMoney(s) }

func TestNormalizePayment(t *testing.T) {
	tests := []struct {
		name    string
		method  PaymentMethod
		split   PaymentSplit
		want    Payment
		wantErr bool
	}{
		{name: "cash default", method: PaymentCash, want: Payment{Cash: m("20"), Card: m("0"), Transfer: m("0"), Debt: m("0")}},
		{name: "card default", method: PaymentCard, want: Payment{Cash: m("0"), Card: m("20"), Transfer: m("0"), Debt: m("0")}},
		{name: "hybrid exact", method: PaymentHybrid, split: PaymentSplit{Cash: m("12"), Card: m("8")},
			want: Payment{Cash: m("12"), Card: m("8"), Transfer: m("0"), Debt: m("0")}},
		{name: "hybrid within a cent", method: PaymentHybrid, split: PaymentSplit{Cash: m("12"), Transfer: m("7.99")},
			want: Payment{Cash: m("12"), Card: m("0"), Transfer: m("7.99"), Debt: m("0")}},
		{name: "hybrid mismatch", method: PaymentHybrid, split: PaymentSplit{Cash: m("10")}, wantErr: true},
		{name: "empty hybrid", method: PaymentHybrid, wantErr: true},
		{name: "debt remainder", method: PaymentDebt, split: PaymentSplit{Cash: m("5")},
			want: Payment{Cash: m("5"), Card: m("0"), Transfer: m("0"), Debt: m("15")}},
		{name: "debt overpaid", method: PaymentDebt, split: PaymentSplit{Card: m("25")}, wantErr: true},
		{name: "negative part", method: PaymentHybrid, split: PaymentSplit{Cash: m("25"), Card: m("-5")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTx(tt.method, tt.split).NormalizePayment()
			if tt.wantErr {
				assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Cash.Equal(got.Cash), "cash %s", got.Cash)
			assert.True(t, tt.want.Card.Equal(got.Card), "card %s", got.Card)
			assert.True(t, tt.want.Transfer.Equal(got.Transfer), "transfer %s", got.Transfer)
			assert.True(t, tt.want.Debt.Equal(got.Debt), "debt %s", got.Debt)
		})
	}
}

func TestTransaction_Validate(t *testing.T) {
	customer := id.New()

	ok := newTx(PaymentCard, PaymentSplit{})
	assert.NoError(t, ok.Validate())

	noItems := ok
	noItems.Items = nil
	assert.Error(t, noItems.Validate())

	dup := newTx(PaymentCard, PaymentSplit{})
	dup.Items[1].ID = dup.Items[0].ID
	assert.Error(t, dup.Validate())

	zeroQty := newTx(PaymentCard, PaymentSplit{})
	zeroQty.Items[0].Quantity = 0
	assert.Error(t, zeroQty.Validate())

	debt := newTx(PaymentDebt, PaymentSplit{})
	assert.Error(t, debt.Validate(), "debt requires a customer")
	debt.CustomerID = &customer
	assert.NoError(t, debt.Validate())

	unknown := newTx(PaymentMethod("barter"), PaymentSplit{})
	assert.Error(t, unknown.Validate())
}
