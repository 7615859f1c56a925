package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"sompos/internal/core/id"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/settlement"
	"sompos/internal/infrastructure/http/v1/dto"
)

// SettlementHandler exposes the settlement engine.
type SettlementHandler struct {
	*BaseHandler
	engine *settlement.Engine
	ledger *ledger.Service
	now    func() time.Time
}

// NewSettlementHandler creates a settlement handler.
func NewSettlementHandler(base *BaseHandler, engine *settlement.Engine, ledger *ledger.Service) *SettlementHandler {
	return &SettlementHandler{
		BaseHandler: base,
		engine:      engine,
		ledger:      ledger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Settle handles POST /transactions/settle
func (h *SettlementHandler) Settle(c *gin.Context) {
	var req dto.SettleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.engine.Settle(c.Request.Context(), req.ToTransaction(h.Actor(c), h.now()))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Reverse handles POST /transactions/:id/reverse
func (h *SettlementHandler) Reverse(c *gin.Context) {
	txID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	res, err := h.engine.Reverse(c.Request.Context(), txID, h.Actor(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Receive handles POST /stores/:store_id/batches
func (h *SettlementHandler) Receive(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.engine.Receive(c.Request.Context(), req.ToDomain(storeID, h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// ListBatches handles GET /stores/:store_id/batches?product_id=
func (h *SettlementHandler) ListBatches(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	var f dto.BatchFilter
	if !h.BindQuery(c, &f) {
		return
	}
	batches, err := h.ledger.ListActive(c.Request.Context(), storeID, id.MustParse(f.ProductID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(batches, 0, 0))
}

// Adjust handles POST /stores/:store_id/adjustments
func (h *SettlementHandler) Adjust(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.engine.Adjust(c.Request.Context(), req.ToDomain(storeID, h.Actor(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
