package handlers

import (
	"github.com/gin-gonic/gin"

	"sompos/internal/domain/cash"
	"sompos/internal/infrastructure/http/v1/dto"
)

// CashHandler serves cash register operations.
type CashHandler struct {
	*BaseHandler
	cash *cash.Service
}

// NewCashHandler creates a new cash register handler.
func NewCashHandler(base *BaseHandler, svc *cash.Service) *CashHandler {
	return &CashHandler{BaseHandler: base, cash: svc}
}

// Open handles POST /stores/:store_id/cash-registers
func (h *CashHandler) Open(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	var req dto.OpenRegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	reg, err := h.cash.Open(c.Request.Context(), storeID, req.TargetBalance, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, reg)
}

// Current handles GET /stores/:store_id/cash-registers/current
func (h *CashHandler) Current(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}

	reg, err := h.cash.Current(c.Request.Context(), storeID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, reg)
}

// Deposit handles POST /cash-registers/:id/deposit
func (h *CashHandler) Deposit(c *gin.Context) {
	registerID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.CashAmountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	reg, err := h.cash.Deposit(c.Request.Context(), registerID, req.Amount, h.Actor(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, reg)
}

// Withdraw handles POST /cash-registers/:id/withdraw
func (h *CashHandler) Withdraw(c *gin.Context) {
	registerID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.CashAmountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.cash.Withdraw(c.Request.Context(), registerID, req.Amount, h.Actor(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Close handles POST /cash-registers/:id/close
func (h *CashHandler) Close(c *gin.Context) {
	registerID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.CloseRegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.cash.Close(c.Request.Context(), registerID, req.ActualBalance, h.Actor(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Correct handles POST /cash-registers/:id/correct
func (h *CashHandler) Correct(c *gin.Context) {
	registerID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.CorrectRegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	reg, err := h.cash.Correct(c.Request.Context(), registerID, req.CountedBalance, h.Actor(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, reg)
}

// History handles GET /cash-registers/:id/history
func (h *CashHandler) History(c *gin.Context) {
	registerID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	entries, err := h.cash.History(c.Request.Context(), registerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries, 0, 0))
}
