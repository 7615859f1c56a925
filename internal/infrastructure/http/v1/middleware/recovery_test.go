package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/apperror"
	"sompos/internal/infrastructure/http/v1/dto"
)

func newEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), ErrorHandler())
	r.GET("/x", handler)
	return r
}

func TestRecovery_Panic(t *testing.T) {
	r := newEngine(func(*gin.Context) { panic("ledger exploded") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.NotContains(t, w.Body.String(), "ledger exploded")
}

func TestErrorHandler_AppError(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewInsufficientStock("p1", "3", "1"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInsufficientStock, body.Code)
}

func TestBrokenConnection(t *testing.T) {
	pipe := &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}
	assert.True(t, brokenConnection(pipe))
	assert.False(t, brokenConnection(errors.New("boom")))
	assert.False(t, brokenConnection("boom"))
}
