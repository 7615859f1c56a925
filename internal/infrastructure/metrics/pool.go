package metrics

import (
	"sompos/internal/infrastructure/storage/postgres"
)

// RegisterPool exposes connection pool statistics.
func (m *Metrics) RegisterPool(pool *postgres.Pool) {
	stat := func(pick func(postgres.PoolStats) float64) func() float64 {
		return func() float64 { return pick(pool.Stats()) }
	}
	m.RegisterGaugeFunc("db_pool_total_conns", "Connections currently in the pool",
		stat(func(s postgres.PoolStats) float64 { return float64(s.TotalConns) }))
	m.RegisterGaugeFunc("db_pool_acquired_conns", "Connections currently checked out",
		stat(func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) }))
	m.RegisterGaugeFunc("db_pool_idle_conns", "Idle connections",
		stat(func(s postgres.PoolStats) float64 { return float64(s.IdleConns) }))
	m.RegisterGaugeFunc("db_pool_max_conns", "Configured pool size",
		stat(func(s postgres.PoolStats) float64 { return float64(s.MaxConns) }))
	m.RegisterGaugeFunc("db_pool_empty_acquires", "Acquires that waited for a free connection",
		stat(func(s postgres.PoolStats) float64 { return float64(s.EmptyAcquires) }))
}
