// Package main is the entry point for the sompos background worker.
// It relays the settlement outbox, runs stock reconciliation tasks and
// sweeps expired leases.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sompos/internal/app"
	"sompos/internal/config"
	"sompos/internal/infrastructure/events"
	"sompos/internal/infrastructure/jobs"
	"sompos/internal/infrastructure/storage/postgres"
	"sompos/pkg/logger"
)

// outboxMaintenanceEvery is how often failed messages move to the DLQ and
// published ones are purged.
const outboxMaintenanceEvery = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "sompos-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting sompos worker")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   a.RedisOpt(),
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    a.ReconcileHandlers.TaskHandlers(),
		Cron:        []jobs.CronRegistration{jobs.ReconcileCron(cfg.ReconcileCron)},
	})
	if err != nil {
		log.Fatalw("failed to build task worker", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return worker.Run(gctx) })

	if a.Pool != nil {
		handler, closeHandler := outboxHandler(cfg, a)
		defer closeHandler()

		relay := postgres.NewOutboxRelay(a.Pool.Pool, cfg.OutboxBatchSize, handler)
		g.Go(func() error {
			runOutbox(gctx, relay, cfg, log.WithComponent("outbox"))
			return nil
		})
	} else {
		log.Warn("memory storage: outbox relay disabled")
	}

	if a.Lease != nil {
		g.Go(func() error {
			runLeaseCleanup(gctx, a.Lease, cfg.LeaseCleanupEvery, log.WithComponent("lease"))
			return nil
		})
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           a.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("worker stopped with error", "error", err)
		return
	}
	log.Info("worker stopped")
}

func outboxHandler(cfg *config.Config, a *app.App) (postgres.OutboxHandler, func()) {
	if !cfg.KafkaEnabled() {
		return events.LogHandler{}, func() {}
	}
	publisher := events.NewKafkaPublisher(
		events.NewKafkaWriter(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}),
		a.Metrics.ObserveOutbox,
	)
	return publisher, func() { _ = publisher.Close() }
}

func runOutbox(ctx context.Context, relay *postgres.OutboxRelay, cfg *config.Config, log *logger.Logger) {
	ticker := time.NewTicker(cfg.OutboxPollInterval)
	defer ticker.Stop()

	maintenance := time.NewTicker(outboxMaintenanceEvery)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			// Drain while full batches keep coming.
			for {
				n, err := relay.ProcessBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Errorw("outbox batch failed", "error", err)
					}
					break
				}
				if n > 0 {
					log.Debugw("outbox batch delivered", "count", n)
				}
				if n < cfg.OutboxBatchSize {
					break
				}
			}

		case <-maintenance.C:
			if moved, err := relay.MoveToDLQ(ctx); err != nil {
				log.Errorw("outbox DLQ move failed", "error", err)
			} else if moved > 0 {
				log.Warnw("outbox messages moved to DLQ", "count", moved)
			}
			if purged, err := relay.PurgePublished(ctx, cfg.OutboxRetention); err != nil {
				log.Errorw("outbox purge failed", "error", err)
			} else if purged > 0 {
				log.Infow("outbox purged", "count", purged)
			}
		}
	}
}

func runLeaseCleanup(ctx context.Context, leases *postgres.LeaseLocker, every time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := leases.CleanupExpired(ctx)
			if err != nil {
				log.Errorw("lease cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				log.Infow("expired leases removed", "count", n)
			}
		}
	}
}
