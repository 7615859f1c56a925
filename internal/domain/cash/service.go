package cash

import (
	"context"
	"fmt"
	"time"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/tx"
	"sompos/internal/core/types"
	"sompos/pkg/logger"
)

// Service provides cash register operations.
// Every operation runs in a transaction; inside the settlement engine it joins the caller's.
type Service struct {
	repo   Repository
	txm    tx.Manager
	closer ShiftCloser
	now    func() time.Time
}

// NewService creates a new cash register service. closer may be nil.
func NewService(repo Repository, txm tx.Manager, closer ShiftCloser) *Service {
	return &Service{
		repo:   repo,
		txm:    txm,
		closer: closer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func validateAmount(amount types.Money) (types.Money, error) {
	if !amount.IsPositive() {
		return amount, apperror.NewInvalidAmount(amount.String())
	}
	return types.RoundMoney(amount), nil
}

// Open starts a shift. The opening float equals the target balance.
func (s *Service) Open(ctx context.Context, storeID id.ID, target types.Money, actor string) (Register, error) {
	if target.IsNegative() {
		return Register{}, apperror.NewInvalidAmount(target.String())
	}
	target = types.RoundMoney(target)

	var reg Register
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetOpenForUpdate(ctx, storeID); err == nil {
			return apperror.NewAlreadyOpen(storeID.String())
		} else if !apperror.IsNotFound(err) {
			return fmt.Errorf("get open register: %w", err)
		}

		reg = Register{
			ID:             id.New(),
			StoreID:        storeID,
			OpenedAt:       s.now(),
			OpenedBy:       actor,
			CurrentBalance: target,
			TargetBalance:  target,
			IsOpen:         true,
		}
		if err := s.repo.Create(ctx, &reg); err != nil {
			return err
		}
		return s.record(ctx, reg, EntryOpenShift, target, types.Zero(), actor, "shift opened", "")
	})
	if err != nil {
		return Register{}, err
	}

	logger.Info(ctx, "cash register opened", "register_id", reg.ID, "store_id", storeID, "target", target.String())
	return reg, nil
}

// Deposit adds cash to an open register.
func (s *Service) Deposit(ctx context.Context, registerID id.ID, amount types.Money, actor, notes string) (Register, error) {
	amount, err := validateAmount(amount)
	if err != nil {
		return Register{}, err
	}
	var reg Register
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		reg, err = s.openForUpdate(ctx, registerID)
		if err != nil {
			return err
		}
		before := reg.CurrentBalance
		reg.CurrentBalance = before.Add(amount)
		if err := s.repo.Update(ctx, reg); err != nil {
			return fmt.Errorf("update register: %w", err)
		}
		return s.record(ctx, reg, EntryAddCash, amount, before, actor, notes, "")
	})
	return reg, err
}

// Withdraw removes cash and reports the amount taken; the balance never
// goes below zero.
func (s *Service) Withdraw(ctx context.Context, registerID id.ID, amount types.Money, actor, notes string) (WithdrawResult, error) {
	amount, err := validateAmount(amount)
	if err != nil {
		return WithdrawResult{}, err
	}
	return tx.Run(ctx, s.txm, func(ctx context.Context) (WithdrawResult, error) {
		reg, err := s.openForUpdate(ctx, registerID)
		if err != nil {
			return WithdrawResult{}, err
		}
		if err := s.withdraw(ctx, &reg, amount, actor, notes, ""); err != nil {
			return WithdrawResult{}, err
		}
		return WithdrawResult{Register: reg, Withdrawn: amount}, nil
	})
}

func (s *Service) withdraw(ctx context.Context, reg *Register, amount types.Money, actor, notes, ref string) error {
	if reg.CurrentBalance.LessThan(amount) {
		return apperror.NewInsufficientFunds(amount.String(), reg.CurrentBalance.String())
	}
	before := reg.CurrentBalance
	reg.CurrentBalance = before.Sub(amount)
	if err := s.repo.Update(ctx, *reg); err != nil {
		return fmt.Errorf("update register: %w", err)
	}
	return s.record(ctx, *reg, EntryWithdraw, amount, before, actor, notes, ref)
}

// Close ends the shift with the counted cash.
func (s *Service) Close(ctx context.Context, registerID id.ID, actual types.Money, actor, notes string) (CloseResult, error) {
	if actual.IsNegative() {
		return CloseResult{}, apperror.NewInvalidAmount(actual.String())
	}
	actual = types.RoundMoney(actual)

	var res CloseResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		reg, err := s.repo.GetForUpdate(ctx, registerID)
		if err != nil {
			return err
		}
		if !reg.IsOpen {
			return apperror.NewAlreadyClosed(registerID.String())
		}

		now := s.now()
		before := reg.CurrentBalance
		discrepancy := actual.Sub(reg.TargetBalance)

		reg.IsOpen = false
		reg.ClosedBalance = &actual
		reg.ClosedAt = &now
		reg.ClosedBy = actor
		reg.Discrepancy = &discrepancy
		reg.Notes = notes
		reg.CurrentBalance = actual
		if err := s.repo.Update(ctx, reg); err != nil {
			return fmt.Errorf("update register: %w", err)
		}
		if err := s.record(ctx, reg, EntryCloseShift, actual, before, actor, notes, ""); err != nil {
			return err
		}

		if s.closer != nil {
			if err := s.closer.LinkShiftClose(ctx, ShiftClose{
				StoreID: reg.StoreID, RegisterID: reg.ID, ClosedAt: now, Discrepancy: discrepancy,
			}); err != nil {
				return fmt.Errorf("link shift close: %w", err)
			}
		}

		res = CloseResult{
			Register:    reg,
			Discrepancy: discrepancy,
			Variance:    actual.Sub(before),
			Status:      closeStatus(discrepancy),
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}

	logger.Info(ctx, "cash register closed",
		"register_id", registerID,
		"discrepancy", res.Discrepancy.String(),
		"status", res.Status,
	)
	return res, nil
}

func closeStatus(d types.Money) CloseStatus {
	switch d.Sign() {
	case -1:
		return CloseShortage
	case 1:
		return CloseSurplus
	}
	return CloseBalanced
}

// Correct overwrites the balance with a counted amount during a shift.
func (s *Service) Correct(ctx context.Context, registerID id.ID, counted types.Money, actor, notes string) (Register, error) {
	if counted.IsNegative() {
		return Register{}, apperror.NewInvalidAmount(counted.String())
	}
	counted = types.RoundMoney(counted)

	var reg Register
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.openForUpdate(ctx, registerID)
		if err != nil {
			return err
		}
		before := reg.CurrentBalance
		reg.CurrentBalance = counted
		if err := s.repo.Update(ctx, reg); err != nil {
			return fmt.Errorf("update register: %w", err)
		}
		return s.record(ctx, reg, EntryCorrection, counted.Sub(before).Abs(), before, actor, notes, "")
	})
	return reg, err
}

// SettleSale adds the cash part of a sale to the store's open register.
// With no open register it is a no-op and returns zero.
func (s *Service) SettleSale(ctx context.Context, storeID, txID id.ID, cashAmount types.Money, actor string) (types.Money, error) {
	if !cashAmount.IsPositive() {
		return types.Zero(), nil
	}
	cashAmount = types.RoundMoney(cashAmount)

	applied := types.Zero()
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		reg, err := s.repo.GetOpenForUpdate(ctx, storeID)
		if apperror.IsNotFound(err) {
			logger.Warn(ctx, "no open cash register, cash part not recorded",
				"store_id", storeID, "transaction_id", txID, "amount", cashAmount.String())
			return nil
		}
		if err != nil {
			return fmt.Errorf("get open register: %w", err)
		}

		before := reg.CurrentBalance
		reg.CurrentBalance = before.Add(cashAmount)
		if err := s.repo.Update(ctx, reg); err != nil {
			return fmt.Errorf("update register: %w", err)
		}
		applied = cashAmount
		return s.record(ctx, reg, EntryAddCash, cashAmount, before, actor, "sale", saleReference(txID))
	})
	return applied, err
}

// RefundSale pays back the cash part of a reversed sale. It requires an open
// register holding enough cash.
func (s *Service) RefundSale(ctx context.Context, storeID, txID id.ID, cashAmount types.Money, actor string) error {
	if !cashAmount.IsPositive() {
		return nil
	}
	cashAmount = types.RoundMoney(cashAmount)

	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		reg, err := s.repo.GetOpenForUpdate(ctx, storeID)
		if apperror.IsNotFound(err) {
			return apperror.NewRegisterClosed(storeID.String())
		}
		if err != nil {
			return fmt.Errorf("get open register: %w", err)
		}
		return s.withdraw(ctx, &reg, cashAmount, actor, "refund", refundReference(txID))
	})
}

// Current returns the open register of a store.
func (s *Service) Current(ctx context.Context, storeID id.ID) (Register, error) {
	return s.repo.GetOpen(ctx, storeID)
}

// Get returns a register by id.
func (s *Service) Get(ctx context.Context, registerID id.ID) (Register, error) {
	return s.repo.Get(ctx, registerID)
}

// History returns the register's entries oldest first.
func (s *Service) History(ctx context.Context, registerID id.ID) ([]HistoryEntry, error) {
	return tx.Read(ctx, s.txm, func(ctx context.Context) ([]HistoryEntry, error) {
		if _, err := s.repo.Get(ctx, registerID); err != nil {
			return nil, err
		}
		return s.repo.History(ctx, registerID)
	})
}

func (s *Service) openForUpdate(ctx context.Context, registerID id.ID) (Register, error) {
	reg, err := s.repo.GetForUpdate(ctx, registerID)
	if err != nil {
		return Register{}, err
	}
	if !reg.IsOpen {
		return Register{}, apperror.NewRegisterClosed(registerID.String())
	}
	return reg, nil
}

func (s *Service) record(ctx context.Context, reg Register, typ EntryType, amount, before types.Money, actor, notes, ref string) error {
	e := HistoryEntry{
		ID:            id.New(),
		RegisterID:    reg.ID,
		StoreID:       reg.StoreID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  reg.CurrentBalance,
		Actor:         actor,
		Notes:         notes,
		Reference:     ref,
		CreatedAt:     s.now(),
	}
	if err := s.repo.AppendHistory(ctx, &e); err != nil {
		return fmt.Errorf("append cash history: %w", err)
	}
	return nil
}
