package cash_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/cash"
	"sompos/internal/infrastructure/storage/memory"
)

type closerSpy struct{ closes []cash.ShiftClose }

func (c *closerSpy) LinkShiftClose(_ context.Context, sc cash.ShiftClose) error {
	c.closes = append(c.closes, sc)
	return nil
}

func money(s string) types.Money { return types.MustMoney(s) }

func setup(t *testing.T) (*cash.Service, *closerSpy) {
	t.Helper()
	st := memory.NewStore()
	spy := &closerSpy{}
	return cash.NewService(st.Registers(), st.TxManager(), spy), spy
}

func TestOpen_OnlyOnePerStore(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	storeID := id.New()

	reg, err := svc.Open(ctx, storeID, money("100.00"), "alice")
	require.NoError(t, err)
	assert.True(t, reg.IsOpen)
	assert.True(t, money("100").Equal(reg.CurrentBalance))

	_, err = svc.Open(ctx, storeID, money("50.00"), "alice")
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyOpen))

	_, err = svc.Open(ctx, id.New(), money("0"), "bob")
	assert.NoError(t, err, "other stores are independent")
}

func TestDepositWithdraw(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	reg, err := svc.Open(ctx, id.New(), money("20.00"), "alice")
	require.NoError(t, err)

	reg, err = svc.Deposit(ctx, reg.ID, money("5.50"), "alice", "change")
	require.NoError(t, err)
	assert.Equal(t, "25.5", reg.CurrentBalance.String())

	_, err = svc.Withdraw(ctx, reg.ID, money("30.00"), "alice", "")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientFunds, appErr.Code)
	assert.Equal(t, "25.5", appErr.Details["current_balance"])

	cur, err := svc.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.5", cur.CurrentBalance.String(), "failed withdraw leaves balance unchanged")

	wd, err := svc.Withdraw(ctx, reg.ID, money("25.50"), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "25.5", wd.Withdrawn.String())
	assert.True(t, wd.Register.CurrentBalance.IsZero())
	reg = wd.Register

	_, err = svc.Deposit(ctx, reg.ID, money("0"), "alice", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidAmount))
	_, err = svc.Withdraw(ctx, reg.ID, money("-1"), "alice", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidAmount))
}

func TestClose(t *testing.T) {
	svc, spy := setup(t)
	ctx := context.Background()
	reg, err := svc.Open(ctx, id.New(), money("100.00"), "alice")
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, reg.ID, money("30.00"), "alice", "")
	require.NoError(t, err)

	res, err := svc.Close(ctx, reg.ID, money("125.00"), "bob", "end of day")
	require.NoError(t, err)
	assert.Equal(t, "25", res.Discrepancy.String())
	assert.Equal(t, "-5", res.Variance.String())
	assert.Equal(t, cash.CloseSurplus, res.Status)
	assert.False(t, res.Register.IsOpen)
	require.Len(t, spy.closes, 1)
	assert.Equal(t, reg.ID, spy.closes[0].RegisterID)

	_, err = svc.Close(ctx, reg.ID, money("125.00"), "bob", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyClosed))

	_, err = svc.Deposit(ctx, reg.ID, money("1.00"), "bob", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeRegisterClosed))

	_, err = svc.Current(ctx, reg.StoreID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSettleAndRefundSale(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	storeID, txID := id.New(), id.New()

	applied, err := svc.SettleSale(ctx, storeID, txID, money("30.00"), "alice")
	require.NoError(t, err)
	assert.True(t, applied.IsZero(), "no open register")

	err = svc.RefundSale(ctx, storeID, txID, money("30.00"), "alice")
	assert.True(t, apperror.HasCode(err, apperror.CodeRegisterClosed))

	reg, err := svc.Open(ctx, storeID, money("0"), "alice")
	require.NoError(t, err)

	applied, err = svc.SettleSale(ctx, storeID, txID, money("30.00"), "alice")
	require.NoError(t, err)
	assert.Equal(t, "30", applied.String())

	err = svc.RefundSale(ctx, storeID, txID, money("40.00"), "alice")
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))

	require.NoError(t, svc.RefundSale(ctx, storeID, txID, money("30.00"), "alice"))

	hist, err := svc.History(ctx, reg.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, cash.EntryOpenShift, hist[0].Type)
	assert.Equal(t, cash.EntryAddCash, hist[1].Type)
	assert.Equal(t, "txn_"+txID.String(), hist[1].Reference)
	assert.Equal(t, cash.EntryWithdraw, hist[2].Type)
	assert.Equal(t, "refund_"+txID.String(), hist[2].Reference)
	for _, e := range hist {
		assert.False(t, e.BalanceAfter.IsNegative())
	}
}

func TestCorrect(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	reg, err := svc.Open(ctx, id.New(), money("50.00"), "alice")
	require.NoError(t, err)

	reg, err = svc.Correct(ctx, reg.ID, money("47.00"), "alice", "recount")
	require.NoError(t, err)
	assert.Equal(t, "47", reg.CurrentBalance.String())

	hist, err := svc.History(ctx, reg.ID)
	require.NoError(t, err)
	last := hist[len(hist)-1]
	assert.Equal(t, cash.EntryCorrection, last.Type)
	assert.Equal(t, "3", last.Amount.String())
	assert.Equal(t, "50", last.BalanceBefore.String())
}
