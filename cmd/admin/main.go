// Package main provides the sompos administration CLI.
// Usage: admin migrate [--dir db/migrations]
//        admin reconcile [--store <store-id>]
//        admin enqueue-reconcile
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"sompos/internal/app"
	"sompos/internal/config"
	"sompos/internal/core/id"
	"sompos/internal/infrastructure/jobs"
	"sompos/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "migrate":
		migrate(os.Args[2:])
	case "reconcile":
		reconcile(ctx, os.Args[2:])
	case "enqueue-reconcile":
		enqueueReconcile(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sompos admin CLI

Usage:
  admin <command> [options]

Commands:
  migrate            Apply database migrations with goose
  reconcile          Recompute stock aggregates from batches in-process
  enqueue-reconcile  Queue a reconcile-all task for the worker
  help               Show this help

Environment Variables:
  DATABASE_URL       Connection string (required for migrate and postgres storage)
  REDIS_ADDR         Redis address used by enqueue-reconcile

Examples:
  admin migrate
  admin migrate --dir ./db/migrations
  admin reconcile
  admin reconcile --store <store-uuid>
  admin enqueue-reconcile`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func migrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := fs.String("dir", "db/migrations", "migrations directory")
	_ = fs.Parse(args)

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("Error: DATABASE_URL environment variable is required")
		os.Exit(1)
	}

	fmt.Printf("Running migrations from %s...\n", *dir)
	cmd := exec.Command("goose", "-dir", *dir, "postgres", dsn, "up")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Printf("Error: migrations failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Migrations completed")
}

func reconcile(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	store := fs.String("store", "", "reconcile a single store")
	_ = fs.Parse(args)

	cfg := loadConfig()
	ctx = logger.WithLogger(ctx, logger.Default())

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	start := time.Now()
	var drifted int
	if *store != "" {
		storeID, perr := id.Parse(*store)
		if perr != nil {
			fmt.Printf("Error: invalid store id %q\n", *store)
			os.Exit(1)
		}
		drifted, err = a.Stock.ReconcileStore(ctx, storeID)
	} else {
		drifted, err = a.Stock.ReconcileAll(ctx)
	}
	if err != nil {
		fmt.Printf("Error: reconcile failed after %d corrections: %v\n", drifted, err)
		os.Exit(1)
	}
	fmt.Printf("✓ Reconciled in %s, %d aggregate(s) corrected\n", time.Since(start).Round(time.Millisecond), drifted)
}

func enqueueReconcile(ctx context.Context) {
	cfg := loadConfig()

	client := jobs.NewClient(app.RedisOpt(cfg), cfg.ReconcileUniqueTTL)
	defer func() { _ = client.Close() }()

	info, err := client.EnqueueReconcileAll(ctx)
	if err != nil {
		fmt.Printf("Error: enqueue failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Enqueued %s on queue %s (id %s)\n", info.Type, info.Queue, info.ID)
}
