// Package main is the entry point for the sompos API server.
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
	v1 "sompos/internal/infrastructure/http/v1"
	"sompos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "sompos-server",
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

	log.Infow("starting sompos server",
		"storage", cfg.StorageBackend,
		"lock", cfg.LockBackend,
	)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		log.Fatalw("failed to start application", "error", err)
	}

	router, err := v1.NewRouter(v1.RouterConfig{
		Logger:             log,
		Metrics:            a.Metrics,
		Engine:             a.Engine,
		Ledger:             a.Ledger,
		Stock:              a.Stock,
		Movements:          a.Movements,
		Cash:               a.Cash,
		Rollups:            a.Rollups,
		Probes:             a.Probes(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Development:        cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalw("failed to build router", "error", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second + cfg.LockWait,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("server listening", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		// Give outstanding settlements time to commit.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("server stopped with error", "error", err)
		return
	}
	log.Info("server stopped")
}
