package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sompos")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.StorageBackend)
	assert.Equal(t, LockRedis, cfg.LockBackend)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 5*time.Second, cfg.LockWait)
	assert.Equal(t, 3, cfg.SettleMaxRetries)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.KafkaEnabled())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LOCK_BACKEND", "local")
	t.Setenv("LOCK_WAIT", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.LockWait)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StorageBackend:   StoragePostgres,
			DatabaseURL:      "postgres://x",
			LockBackend:      LockRedis,
			LockTTL:          30 * time.Second,
			LockWait:         5 * time.Second,
			SettleMaxRetries: 3,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing dsn", mutate: func(c *Config) { c.DatabaseURL = "" }, errMsg: "DATABASE_URL"},
		{name: "unknown storage", mutate: func(c *Config) { c.StorageBackend = "sqlite" }, errMsg: "STORAGE_BACKEND"},
		{name: "unknown lock", mutate: func(c *Config) { c.LockBackend = "zk" }, errMsg: "LOCK_BACKEND"},
		{name: "lease lock on memory", mutate: func(c *Config) {
			c.StorageBackend = StorageMemory
			c.LockBackend = LockPostgres
		}, errMsg: "requires STORAGE_BACKEND=postgres"},
		{name: "ttl below wait", mutate: func(c *Config) { c.LockTTL = time.Second }, errMsg: "LOCK_TTL"},
		{name: "zero retries", mutate: func(c *Config) { c.SettleMaxRetries = 0 }, errMsg: "SETTLE_MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
