// Package cash implements the per-store cash register: a shift-scoped drawer
// balance with an append-only history of every balance change.
package cash

import (
	"time"

	"sompos/internal/core/id"
	"sompos/internal/core/types"
)

// EntryType classifies a history entry.
type EntryType string

const (
	EntryOpenShift  EntryType = "OPEN_SHIFT"
	EntryAddCash    EntryType = "ADD_CASH"
	EntryWithdraw   EntryType = "WITHDRAW"
	EntryCloseShift EntryType = "CLOSE_SHIFT"
	EntryCorrection EntryType = "CORRECTION"
)

// Register is one shift of a store's cash drawer.
type Register struct {
	ID             id.ID        `json:"id"`
	StoreID        id.ID        `json:"store_id"`
	OpenedAt       time.Time    `json:"opened_at"`
	OpenedBy       string       `json:"opened_by"`
	CurrentBalance types.Money  `json:"current_balance"`
	TargetBalance  types.Money  `json:"target_balance"`
	IsOpen         bool         `json:"is_open"`
	ClosedBalance  *types.Money `json:"closed_balance,omitempty"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	ClosedBy       string       `json:"closed_by,omitempty"`
	Discrepancy    *types.Money `json:"discrepancy,omitempty"`
	Notes          string       `json:"notes,omitempty"`
}

// HistoryEntry records a single balance change.
type HistoryEntry struct {
	ID            id.ID       `json:"id"`
	RegisterID    id.ID       `json:"register_id"`
	StoreID       id.ID       `json:"store_id"`
	Type          EntryType   `json:"operation_type"`
	Amount        types.Money `json:"amount"`
	BalanceBefore types.Money `json:"balance_before"`
	BalanceAfter  types.Money `json:"balance_after"`
	Actor         string      `json:"actor,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Reference     string      `json:"reference,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CloseStatus describes how the counted cash compares to the target.
type CloseStatus string

const (
	CloseBalanced CloseStatus = "balanced"
	CloseShortage CloseStatus = "shortage"
	CloseSurplus  CloseStatus = "surplus"
)

// WithdrawResult is returned by Withdraw.
type WithdrawResult struct {
	Register  Register    `json:"register"`
	Withdrawn types.Money `json:"withdrawn"`
}

// CloseResult is returned by Close.
type CloseResult struct {
	Register Register `json:"register"`
	// Discrepancy is actual minus target balance.
	Discrepancy types.Money `json:"discrepancy"`
	// Variance is actual minus the tracked current balance.
	Variance types.Money `json:"variance"`
	Status   CloseStatus `json:"status"`
}

// ShiftClose links a closed shift to the daily financial rollup.
type ShiftClose struct {
	StoreID     id.ID
	RegisterID  id.ID
	ClosedAt    time.Time
	Discrepancy types.Money
}

// Sale reference formats written to cash history.
func saleReference(txID id.ID) string   { return "txn_" + txID.String() }
func refundReference(txID id.ID) string { return "refund_" + txID.String() }
