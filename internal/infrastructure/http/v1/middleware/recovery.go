// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"sompos/internal/core/apperror"
	"sompos/pkg/logger"
)

// Recovery converts a handler panic into a 500 response. It runs outside
// ErrorHandler, so it writes the body itself. A client that hung up gets
// no response; the panic is logged at warn level instead.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()

			if brokenConnection(rec) {
				logger.Warn(ctx, "client connection lost",
					"method", c.Request.Method,
					"route", c.FullPath(),
					"error", rec,
				)
				c.Abort()
				return
			}

			logger.Error(ctx, "panic recovered",
				"error", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec))
			_ = c.Error(appErr)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			writeError(c, appErr)
		}()
		c.Next()
	}
}

func brokenConnection(rec any) bool {
	err, ok := rec.(error)
	if !ok {
		return false
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(opErr, &sysErr) {
		return errors.Is(sysErr.Err, syscall.EPIPE) || errors.Is(sysErr.Err, syscall.ECONNRESET)
	}
	return false
}
