// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Lock backends.
const (
	LockRedis    = "redis"
	LockPostgres = "postgres"
	LockLocal    = "local"
)

// Config holds runtime configuration shared by every binary.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	AppPort  string `envconfig:"APP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"postgres"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	LockBackend string        `envconfig:"LOCK_BACKEND" default:"redis"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockWait    time.Duration `envconfig:"LOCK_WAIT" default:"5s"`

	SettleStatementTimeout time.Duration `envconfig:"SETTLE_STATEMENT_TIMEOUT" default:"30s"`
	SettleMaxRetries       int           `envconfig:"SETTLE_MAX_RETRIES" default:"3"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"sompos.settlement"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxRetention    time.Duration `envconfig:"OUTBOX_RETENTION" default:"168h"`

	ReconcileCron      string        `envconfig:"RECONCILE_CRON" default:"@every 1h"`
	ReconcileUniqueTTL time.Duration `envconfig:"RECONCILE_UNIQUE_TTL" default:"1m"`

	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	WorkerMetricsPort string        `envconfig:"WORKER_METRICS_PORT" default:"9091"`
	LeaseCleanupEvery time.Duration `envconfig:"LEASE_CLEANUP_INTERVAL" default:"10m"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres storage backend")
		}
	case StorageMemory:
		if c.LockBackend == LockPostgres {
			return errors.New("LOCK_BACKEND=postgres requires STORAGE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.LockBackend {
	case LockRedis, LockPostgres, LockLocal:
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}

	if c.LockTTL <= c.LockWait {
		return fmt.Errorf("LOCK_TTL (%s) must exceed LOCK_WAIT (%s)", c.LockTTL, c.LockWait)
	}
	if c.SettleMaxRetries < 1 {
		return errors.New("SETTLE_MAX_RETRIES must be at least 1")
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// KafkaEnabled reports whether the outbox relay should publish to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
