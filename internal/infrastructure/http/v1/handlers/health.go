// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds each dependency probe on /health/ready.
const probeTimeout = 2 * time.Second

// Probe checks one backing dependency.
type Probe = func(ctx context.Context) error

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	probes map[string]Probe
}

// NewHealthHandler creates a health handler. With no probes the service
// always reports ready (memory storage).
func NewHealthHandler(probes map[string]Probe) *HealthHandler {
	return &HealthHandler{probes: probes}
}

// Live reports that the process is serving.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready probes every dependency concurrently and lists each outcome.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	var (
		mu      sync.Mutex
		checks  = make(map[string]string, len(h.probes))
		healthy = true
	)

	g, ctx := errgroup.WithContext(c.Request.Context())
	for name, probe := range h.probes {
		name, probe := name, probe
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			status := "ok"
			if err := probe(pctx); err != nil {
				status = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			checks[name] = status
			if status != "ok" {
				healthy = false
			}
			return nil
		})
	}
	_ = g.Wait()

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
