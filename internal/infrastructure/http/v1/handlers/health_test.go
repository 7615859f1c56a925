package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReady(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		probes map[string]Probe
		want   int
		checks map[string]string
	}{
		{
			name: "no probes",
			want: http.StatusOK,
		},
		{
			name: "all healthy",
			probes: map[string]Probe{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			want:   http.StatusOK,
			checks: map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name: "redis down",
			probes: map[string]Probe{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"database": "ok", "redis": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", NewHealthHandler(tt.probes).Ready)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			require.Equal(t, tt.want, w.Code)

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.checks == nil {
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, tt.checks, body.Checks)
		})
	}
}
