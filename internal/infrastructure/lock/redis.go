package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"sompos/internal/domain/settlement"
	"sompos/pkg/logger"
)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	Prefix       string
	RetryBackoff time.Duration
	// Breaker trips after this many consecutive Redis failures.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultRedisConfig returns production defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:           "sompos:lock:",
		RetryBackoff:     25 * time.Millisecond,
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
	}
}

// Redis is a distributed locker on top of redislock. Redis outages trip a
// circuit breaker so callers fail fast with a non-contention error.
type Redis struct {
	client *redislock.Client
	cb     *gobreaker.CircuitBreaker
	cfg    RedisConfig
}

// NewRedis creates a Redis locker.
func NewRedis(rdb redis.UniversalClient, cfg RedisConfig) *Redis {
	settings := gobreaker.Settings{
		Name:        "redis-lock",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Contention is a normal outcome, not a Redis failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redislock.ErrNotObtained)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Redis{
		client: redislock.New(rdb),
		cb:     gobreaker.NewCircuitBreaker(settings),
		cfg:    cfg,
	}
}

// Obtain implements settlement.Locker.
func (r *Redis) Obtain(ctx context.Context, key string, ttl, wait time.Duration) (settlement.Lock, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		obtainCtx := ctx
		opts := &redislock.Options{RetryStrategy: redislock.NoRetry()}
		if wait > 0 {
			var cancel context.CancelFunc
			obtainCtx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
			opts.RetryStrategy = redislock.LinearBackoff(r.cfg.RetryBackoff)
		}

		lk, err := r.client.Obtain(obtainCtx, r.cfg.Prefix+key, ttl, opts)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, redislock.ErrNotObtained
		}
		return lk, err
	})

	switch {
	case errors.Is(err, redislock.ErrNotObtained):
		return nil, settlement.ErrLockNotObtained
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("redis lock unavailable: %w", err)
	case err != nil:
		return nil, fmt.Errorf("obtain redis lock: %w", err)
	}
	return &redisLock{lk: res.(*redislock.Lock)}, nil
}

// State exposes the breaker state for health checks.
func (r *Redis) State() gobreaker.State { return r.cb.State() }

type redisLock struct{ lk *redislock.Lock }

func (l *redisLock) Release(ctx context.Context) error {
	err := l.lk.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// Expired under us; the next holder owns the key now.
		return nil
	}
	return err
}
