// Package tx is the unit-of-work boundary the ledger services share.
// Both storage backends implement Manager; nested units join the outer one.
package tx

import (
	"context"
)

// Manager runs fn atomically. A non-nil error from fn discards every write
// made through the ctx passed to it.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager is implemented by backends with a read-only mode for
// reporting reads, which take no write locks.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Run is RunInTransaction for units that produce a value.
func Run[T any](ctx context.Context, m Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.RunInTransaction(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Read runs fn in the backend's read-only reporting mode. It falls back to
// a regular unit when m has no read-only mode.
func Read[T any](ctx context.Context, m Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	ro, ok := m.(ReadOnlyManager)
	if !ok {
		return Run(ctx, m, fn)
	}
	var out T
	err := ro.ReadOnly(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
