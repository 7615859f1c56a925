package handlers

import (
	"github.com/gin-gonic/gin"

	"sompos/internal/domain/movement"
	"sompos/internal/domain/stock"
	"sompos/internal/infrastructure/http/v1/dto"
)

const defaultMovementPage = 100

// StockHandler serves aggregates, movements and turnover.
type StockHandler struct {
	*BaseHandler
	stock     *stock.Service
	movements *movement.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, stockSvc *stock.Service, movements *movement.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, stock: stockSvc, movements: movements}
}

// Get handles GET /stores/:store_id/products/:product_id/stock
func (h *StockHandler) Get(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	productID, ok := h.PathID(c, "product_id")
	if !ok {
		return
	}

	agg, err := h.stock.Get(c.Request.Context(), storeID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.StockResponse{Aggregate: agg})
}

// Recompute handles POST /stores/:store_id/products/:product_id/stock/recompute
func (h *StockHandler) Recompute(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	productID, ok := h.PathID(c, "product_id")
	if !ok {
		return
	}

	agg, drift, err := h.stock.Recompute(c.Request.Context(), storeID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.StockResponse{Aggregate: agg, Drift: &drift})
}

// Turnover handles GET /stores/:store_id/products/:product_id/turnover
func (h *StockHandler) Turnover(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	productID, ok := h.PathID(c, "product_id")
	if !ok {
		return
	}
	var r dto.DayRange
	if !h.BindQuery(c, &r) {
		return
	}

	t, err := h.movements.Turnover(c.Request.Context(), storeID, productID, r.From, r.EndExclusive())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewTurnoverResponse(storeID, productID, r, t))
}

// Movements handles GET /stores/:store_id/movements
func (h *StockHandler) Movements(c *gin.Context) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return
	}
	var f dto.MovementFilter
	if !h.BindQuery(c, &f) {
		return
	}
	if f.Limit == 0 {
		f.Limit = defaultMovementPage
	}

	page, err := h.movements.Page(c.Request.Context(), f.ToDomain(storeID), f.Cursor, f.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if page.Items == nil {
		page.Items = []movement.Record{}
	}
	h.OK(c, page)
}
