package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records one finished request.
type HTTPObserver interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
}

// Metrics reports every request by its route template, so path parameters
// do not explode label cardinality. Unmatched routes are reported as "unmatched".
func Metrics(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		obs.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
