package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"sompos/internal/core/apperror"
	appctx "sompos/internal/core/context"
	"sompos/internal/core/id"
)

// systemActor is recorded when no X-Actor-ID was sent.
const systemActor = "system"

// BaseHandler holds the binding and response helpers shared by the
// resource handlers. Failures are attached to the gin context and
// rendered by middleware.ErrorHandler.
type BaseHandler struct{}

// NewBaseHandler creates a BaseHandler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON decodes and validates the body. On failure the request is aborted
// with a VALIDATION_ERROR listing the offending fields.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	return h.bind(c, c.ShouldBindJSON(obj), "invalid request body")
}

// BindQuery is BindJSON for query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	return h.bind(c, c.ShouldBindQuery(obj), "invalid query parameters")
}

func (h *BaseHandler) bind(c *gin.Context, err error, message string) bool {
	if err == nil {
		return true
	}
	appErr := apperror.NewValidation(message)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		appErr = appErr.WithDetail("fields", fields)
	} else {
		appErr = appErr.WithDetail("error", err.Error())
	}
	h.Error(c, appErr)
	return false
}

// PathID parses the named path parameter as a uuid.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	raw := c.Param(name)
	v, err := id.Parse(raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+name).WithDetail(name, raw))
		return id.Nil(), false
	}
	return v, true
}

// Actor returns the caller set by the Actor middleware, or "system".
func (h *BaseHandler) Actor(c *gin.Context) string {
	return appctx.ActorOr(c.Request.Context(), systemActor)
}

// Error attaches err and stops the handler chain.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Created writes 201 with data.
func (h *BaseHandler) Created(c *gin.Context, data any) { c.JSON(http.StatusCreated, data) }

// OK writes 200 with data.
func (h *BaseHandler) OK(c *gin.Context, data any) { c.JSON(http.StatusOK, data) }
