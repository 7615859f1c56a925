package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	appctx "sompos/internal/core/context"
)

func TestTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen appctx.TraceContext
	r := gin.New()
	r.Use(Trace())
	r.GET("/x", func(c *gin.Context) {
		seen, _ = appctx.GetTrace(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("continues traceparent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		req.Header.Set(HeaderRequestID, "req-42")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID)
		assert.Equal(t, "req-42", seen.RequestID)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get(HeaderTraceID))
		assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	})

	t.Run("falls back to header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderTraceID, "legacy-trace")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "legacy-trace", seen.TraceID)
		assert.NotEmpty(t, seen.RequestID)
	})
}
