package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"sompos/internal/core/apperror"
	"sompos/internal/domain/rollup"
	"sompos/internal/infrastructure/export"
	"sompos/internal/infrastructure/http/v1/dto"
	"sompos/pkg/logger"
)

// exportLimit caps the rows of one spreadsheet.
const exportLimit = 1000

// RollupHandler serves daily aggregate buckets.
type RollupHandler struct {
	*BaseHandler
	rollups *rollup.Service
}

// NewRollupHandler creates a new rollup handler.
func NewRollupHandler(base *BaseHandler, svc *rollup.Service) *RollupHandler {
	return &RollupHandler{BaseHandler: base, rollups: svc}
}

func (h *RollupHandler) query(c *gin.Context) (rollup.Query, bool) {
	storeID, ok := h.PathID(c, "store_id")
	if !ok {
		return rollup.Query{}, false
	}
	var f dto.RollupFilter
	if !h.BindQuery(c, &f) {
		return rollup.Query{}, false
	}
	f.Defaults()
	return f.ToQuery(storeID, rollup.Dimension(c.Param("dimension"))), true
}

// List handles GET /stores/:store_id/rollups/:dimension
func (h *RollupHandler) List(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}

	buckets, err := h.rollups.List(c.Request.Context(), q)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.RollupResponse, len(buckets))
	for i, b := range buckets {
		items[i] = dto.FromBucket(b)
	}
	h.OK(c, dto.NewListResponse(items, q.Limit, q.Offset))
}

// Export handles GET /stores/:store_id/rollups/:dimension/export
func (h *RollupHandler) Export(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}
	q.Limit, q.Offset = exportLimit, 0

	buckets, err := h.rollups.List(c.Request.Context(), q)
	if err != nil {
		h.Error(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteRollups(&buf, q.Dimension, buckets); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	logger.Debug(c.Request.Context(), "rollup exported", "dimension", q.Dimension, "rows", len(buckets))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.Filename(q.Dimension)))
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}
