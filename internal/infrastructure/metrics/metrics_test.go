package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sompos/internal/core/alarm"
)

func TestObserver(t *testing.T) {
	m := New("test")

	m.Observe("settle", "settled", 20*time.Millisecond)
	m.Observe("settle", "settled", 30*time.Millisecond)
	m.Observe("settle", "INSUFFICIENT_STOCK", time.Millisecond)
	m.LockContended("settle")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SettlementOps.WithLabelValues("settle", "settled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementOps.WithLabelValues("settle", "INSUFFICIENT_STOCK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockContention.WithLabelValues("settle")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SettlementDuration))
}

func TestAlarmSink(t *testing.T) {
	m := New("test")
	sink := alarm.Fanout{alarm.LogSink{}, m}

	sink.Raise(context.Background(), alarm.Alarm{Kind: alarm.KindStockDrift, Message: "drift"})
	sink.Raise(context.Background(), alarm.Alarm{Kind: alarm.KindStockDrift, Message: "drift"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Alarms.WithLabelValues(string(alarm.KindStockDrift))))
}

func TestOutboxAndReconcile(t *testing.T) {
	m := New("test")

	m.ObserveOutbox("SaleSettled", nil)
	m.ObserveOutbox("SaleSettled", errors.New("broker down"))
	m.ObserveReconcile("store", 3, nil)
	m.ObserveReconcile("store", 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxMessages.WithLabelValues("SaleSettled", "published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxMessages.WithLabelValues("SaleSettled", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("store", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReconcileDrift.WithLabelValues("store")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("test")
	m.ObserveHTTP(http.MethodGet, "/health/live", 200, time.Millisecond)
	m.RegisterGaugeFunc("lock_breaker_state", "breaker", func() float64 { return 2 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sompos_http_requests_total{method="GET",path="/health/live",service="test",status="2xx"} 1`)
	assert.Contains(t, body, `sompos_lock_breaker_state{service="test"} 2`)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(422))
	assert.Equal(t, "5xx", statusClass(503))
}
