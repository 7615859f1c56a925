// Package app assembles the ledger from configuration. The server, the
// worker and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"sompos/internal/config"
	"sompos/internal/core/alarm"
	"sompos/internal/core/tx"
	"sompos/internal/domain/cash"
	"sompos/internal/domain/catalog"
	"sompos/internal/domain/ledger"
	"sompos/internal/domain/movement"
	"sompos/internal/domain/rollup"
	"sompos/internal/domain/settlement"
	"sompos/internal/domain/stock"
	"sompos/internal/infrastructure/cache"
	"sompos/internal/infrastructure/jobs"
	"sompos/internal/infrastructure/lock"
	"sompos/internal/infrastructure/metrics"
	"sompos/internal/infrastructure/storage/memory"
	"sompos/internal/infrastructure/storage/postgres"
	"sompos/internal/infrastructure/storage/postgres/catalog_repo"
	"sompos/internal/infrastructure/storage/postgres/ledger_repo"
	"sompos/internal/infrastructure/storage/postgres/movement_repo"
	"sompos/internal/infrastructure/storage/postgres/register_repo"
	"sompos/internal/infrastructure/storage/postgres/rollup_repo"
	"sompos/internal/infrastructure/storage/postgres/settlement_repo"
	"sompos/pkg/logger"
)

// App holds the wired services.
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics

	// Pool is nil with the memory backend.
	Pool *postgres.Pool
	// Memory is set with the memory backend.
	Memory *memory.Store
	// Redis is set when locks or jobs use Redis.
	Redis redis.UniversalClient

	Products *cache.ProductCache
	Lease    *postgres.LeaseLocker

	Ledger    *ledger.Service
	Stock     *stock.Service
	Movements *movement.Service
	Cash      *cash.Service
	Rollups   *rollup.Service
	Engine    *settlement.Engine

	ReconcileHandlers *jobs.Handlers
	Jobs              *jobs.Client

	closers []func()
}

type batchStore interface {
	ledger.Repository
	stock.BatchSummer
}

// storage is the set of repositories one backend provides.
type storage struct {
	txm       tx.Manager
	catalog   catalog.Provider
	batches   batchStore
	stock     stock.Repository
	movements movement.Repository
	registers cash.Repository
	rollups   rollup.Repository
	markers   settlement.MarkerRepository
	journal   settlement.Journal
	events    settlement.Events
}

// New builds an App. The caller must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New("sompos")}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	var (
		st  storage
		err error
	)
	switch cfg.StorageBackend {
	case config.StorageMemory:
		st = a.memoryStorage()
	default:
		st, err = a.postgresStorage(ctx)
		if err != nil {
			return err
		}
	}

	locker, err := a.locker()
	if err != nil {
		return err
	}

	alarms := alarm.Fanout{alarm.LogSink{}, a.Metrics}

	a.Ledger = ledger.NewService(st.batches)
	a.Stock = stock.NewService(st.stock, st.batches, alarms, st.txm)
	a.Movements = movement.NewService(st.movements, alarms)
	a.Rollups = rollup.NewService(st.rollups)
	a.Cash = cash.NewService(st.registers, st.txm, a.Rollups)
	a.ReconcileHandlers = jobs.NewHandlers(a.Stock, a.Metrics.ObserveReconcile)

	var reconciler settlement.ReconcileScheduler = jobs.NewInline(a.ReconcileHandlers)
	if a.Pool != nil {
		a.Jobs = jobs.NewClient(a.RedisOpt(), cfg.ReconcileUniqueTTL)
		a.onClose(func() { _ = a.Jobs.Close() })
		reconciler = a.Jobs
	}

	engineCfg := settlement.DefaultConfig()
	engineCfg.LockTTL = cfg.LockTTL
	engineCfg.LockWait = cfg.LockWait
	engineCfg.MaxRetries = cfg.SettleMaxRetries

	a.Engine = settlement.NewEngine(settlement.Deps{
		Tx:         st.txm,
		Catalog:    st.catalog,
		Ledger:     a.Ledger,
		Stock:      a.Stock,
		Movements:  a.Movements,
		Cash:       a.Cash,
		Rollups:    a.Rollups,
		Markers:    st.markers,
		Locker:     locker,
		Journal:    st.journal,
		Events:     st.events,
		Reconciler: reconciler,
		Observer:   a.Metrics,
	}, engineCfg)

	logger.Info(ctx, "application wired",
		"storage", cfg.StorageBackend,
		"locks", cfg.LockBackend,
		"reconcile", fmt.Sprintf("%T", reconciler),
	)
	return nil
}

func (a *App) memoryStorage() storage {
	st := memory.NewStore()
	a.Memory = st
	return storage{
		txm:       st.TxManager(),
		catalog:   st.Catalog(),
		batches:   st.Batches(),
		stock:     st.Stock(),
		movements: st.Movements(),
		registers: st.Registers(),
		rollups:   st.Rollups(),
		markers:   st.Markers(),
		journal:   st.Journal(),
		events:    st.Events(),
	}
}

func (a *App) postgresStorage(ctx context.Context) (storage, error) {
	cfg := a.Config

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.IdleInTxTimeout = cfg.LockTTL

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return storage{}, fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.onClose(pool.Close)
	a.Metrics.RegisterPool(pool)

	txOpts := postgres.SerializableTxOptions()
	txOpts.StatementTimeout = cfg.SettleStatementTimeout
	txm := postgres.NewTxManagerWithOptions(pool.Pool, txOpts)

	journal, err := postgres.NewJournal(txm)
	if err != nil {
		return storage{}, err
	}

	a.Products = cache.NewProductCache(catalog_repo.NewProductRepo(txm), pool.Pool)
	a.onClose(a.Products.Stop)

	batches := ledger_repo.NewBatchRepo(txm)
	return storage{
		txm:       txm,
		catalog:   a.Products,
		batches:   batches,
		stock:     ledger_repo.NewAggregateRepo(txm),
		movements: movement_repo.NewRepo(txm),
		registers: register_repo.NewCashRepo(txm),
		rollups:   rollup_repo.NewRepo(txm),
		markers:   settlement_repo.NewMarkerRepo(txm),
		journal:   journal,
		events:    postgres.NewOutboxPublisher(txm),
	}, nil
}

func (a *App) locker() (settlement.Locker, error) {
	cfg := a.Config
	switch cfg.LockBackend {
	case config.LockRedis:
		return lock.NewRedis(a.redisClient(), lock.DefaultRedisConfig()), nil
	case config.LockPostgres:
		if a.Pool == nil {
			return nil, errors.New("postgres lock backend requires postgres storage")
		}
		a.Lease = postgres.NewLeaseLocker(a.Pool)
		return a.Lease, nil
	default:
		return lock.NewLocal(), nil
	}
}

func (a *App) redisClient() redis.UniversalClient {
	if a.Redis == nil {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.RedisAddr,
			Password: a.Config.RedisPassword,
			DB:       a.Config.RedisDB,
		})
		a.onClose(func() { _ = a.Redis.Close() })
	}
	return a.Redis
}

// RedisOpt returns the asynq connection options.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return RedisOpt(a.Config)
}

// RedisOpt builds asynq connection options from cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Start launches background listeners owned by the App.
func (a *App) Start(ctx context.Context) error {
	if a.Products != nil {
		return a.Products.Start(ctx)
	}
	return nil
}

// Probes returns one readiness check per external dependency. Memory
// storage with the local lock has none.
func (a *App) Probes() map[string]func(ctx context.Context) error {
	probes := make(map[string]func(ctx context.Context) error)
	if a.Pool != nil {
		probes["database"] = a.Pool.Ping
	}
	if a.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return probes
}

// Ready runs every probe and returns the first failure.
func (a *App) Ready(ctx context.Context) error {
	for name, probe := range a.Probes() {
		if err := probe(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}
