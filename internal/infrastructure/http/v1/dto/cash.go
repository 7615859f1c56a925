package dto

import (
	"sompos/internal/core/types"
)

// OpenRegisterRequest is the body of POST /stores/:store_id/cash-registers.
type OpenRegisterRequest struct {
	TargetBalance types.Money `json:"target_balance"`
}

// CashAmountRequest is the body of deposit and withdraw.
type CashAmountRequest struct {
	Amount types.Money `json:"amount"`
	Notes  string      `json:"notes" binding:"max=500"`
}

// CloseRegisterRequest is the body of close.
type CloseRegisterRequest struct {
	ActualBalance types.Money `json:"actual_balance"`
	Notes         string      `json:"notes" binding:"max=500"`
}

// CorrectRegisterRequest is the body of correct.
type CorrectRegisterRequest struct {
	CountedBalance types.Money `json:"counted_balance"`
	Notes          string      `json:"notes" binding:"required,max=500"`
}
