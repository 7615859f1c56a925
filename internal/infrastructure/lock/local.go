// Package lock provides settlement.Locker backends: Redis (with a circuit
// breaker), and an in-process one for tests and single-node runs.
package lock

import (
	"context"
	"sync"
	"time"

	"sompos/internal/core/id"
	"sompos/internal/domain/settlement"
)

const pollInterval = 10 * time.Millisecond

type lease struct {
	token   id.ID
	expires time.Time
}

// Local is an in-process locker. Leases expire after their TTL.
type Local struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]lease), now: time.Now}
}

// Obtain implements settlement.Locker.
func (l *Local) Obtain(ctx context.Context, key string, ttl, wait time.Duration) (settlement.Lock, error) {
	deadline := l.now().Add(wait)
	for {
		if lk, ok := l.try(key, ttl); ok {
			return lk, nil
		}
		if !l.now().Before(deadline) {
			return nil, settlement.ErrLockNotObtained
		}
		select {
		case <-ctx.Done():
			return nil, settlement.ErrLockNotObtained
		case <-time.After(pollInterval):
		}
	}
}

func (l *Local) try(key string, ttl time.Duration) (*localLock, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false
	}
	token := id.New()
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, true
}

type localLock struct {
	owner *Local
	key   string
	token id.ID
}

func (ll *localLock) Release(context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if cur, ok := ll.owner.held[ll.key]; ok && cur.token == ll.token {
		delete(ll.owner.held, ll.key)
	}
	return nil
}
