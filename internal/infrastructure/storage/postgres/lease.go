package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sompos/internal/core/id"
	"sompos/internal/domain/settlement"
)

// LeaseLocker implements settlement.Locker with a lease table, for
// deployments without Redis. An expired lease is reclaimed by the next caller.
type LeaseLocker struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
}

// NewLeaseLocker creates a lease locker.
func NewLeaseLocker(pool *Pool) *LeaseLocker {
	return &LeaseLocker{pool: pool.Pool, pollInterval: 50 * time.Millisecond}
}

// Obtain implements settlement.Locker.
func (l *LeaseLocker) Obtain(ctx context.Context, key string, ttl, wait time.Duration) (settlement.Lock, error) {
	token := id.New()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.tryAcquire(ctx, key, token, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &lease{pool: l.pool, key: key, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, settlement.ErrLockNotObtained
		}
		select {
		case <-ctx.Done():
			return nil, settlement.ErrLockNotObtained
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *LeaseLocker) tryAcquire(ctx context.Context, key string, token id.ID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	var got id.ID
	err := l.pool.QueryRow(ctx, `
		INSERT INTO settlement_locks (lock_key, token, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lock_key) DO UPDATE SET
			token = EXCLUDED.token,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE settlement_locks.expires_at < $3
		RETURNING token
	`, key, token, now, now.Add(ttl)).Scan(&got)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return got == token, nil
}

// CleanupExpired removes leases whose holders are gone.
func (l *LeaseLocker) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM settlement_locks WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

type lease struct {
	pool  *pgxpool.Pool
	key   string
	token id.ID
}

// Release drops the lease if it is still ours.
func (l *lease) Release(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM settlement_locks WHERE lock_key = $1 AND token = $2`, l.key, l.token)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
