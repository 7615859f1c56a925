package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sompos/internal/core/apperror"
	"sompos/pkg/logger"
)

// quiet reports paths hit by probes and scrapers; they log at debug.
func quiet(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health/")
}

// Logger writes one access line per request. The route template is logged
// next to the raw path so settlements for different ids group together.
// Client errors log at warn with the error code, server errors at error.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"bytes", c.Writer.Size(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			kv = append(kv, "query", q)
		}
		if last := c.Errors.Last(); last != nil {
			if appErr, ok := apperror.AsAppError(last.Err); ok {
				kv = append(kv, "error_code", appErr.Code)
			}
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case quiet(c.Request.URL.Path):
			l.Debugw("http request", kv...)
		case status >= 500:
			l.Errorw("http request", kv...)
		case status >= 400:
			l.Warnw("http request", kv...)
		default:
			l.Infow("http request", kv...)
		}
	}
}
