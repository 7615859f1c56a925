package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sompos/internal/core/apperror"
	"sompos/internal/core/tx"
	"sompos/pkg/logger"
)

var tracer = otel.Tracer("sompos/tx")

var (
	_ tx.Manager         = (*TxManager)(nil)
	_ tx.ReadOnlyManager = (*TxManager)(nil)
)

// SQLSTATE codes mapped to CONCURRENT_MODIFICATION so the settlement engine retries.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateUniqueViolation      = "23505"
)

// TxOptions configures transaction behavior.
type TxOptions struct {
	IsolationLevel pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode

	// StatementTimeout bounds every statement in the transaction.
	StatementTimeout time.Duration

	// LockTimeout bounds waits on row locks (SELECT ... FOR UPDATE).
	LockTimeout time.Duration

	// UseSavepoint wraps nested calls in a savepoint.
	UseSavepoint bool
}

// DefaultTxOptions returns READ COMMITTED defaults for reporting and relays.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
		LockTimeout:      5 * time.Second,
	}
}

// SerializableTxOptions is used for settlement units of work. Row locks are
// still taken, so serialization failures stay rare and are retried.
func SerializableTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.Serializable
	return opts
}

// TxManager runs units of work against the pool. Nested calls reuse the
// transaction stored in the context.
type TxManager struct {
	pool     *pgxpool.Pool
	defaults TxOptions
}

// NewTxManager creates a transaction manager with default options.
func NewTxManager(pool *Pool) *TxManager {
	return NewTxManagerWithOptions(pool.Pool, DefaultTxOptions())
}

// NewTxManagerWithOptions creates a transaction manager with custom defaults.
func NewTxManagerWithOptions(pool *pgxpool.Pool, defaults TxOptions) *TxManager {
	return &TxManager{pool: pool, defaults: defaults}
}

type txKey struct{}

// Tx wraps pgx.Tx.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn within a transaction using the manager defaults.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.defaults, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if existing := m.GetTx(ctx); existing != nil {
		return m.nested(ctx, existing, opts, fn)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
			attribute.String("tx.access_mode", string(opts.AccessMode)),
		))
	defer span.End()

	err := m.begin(ctx, opts, fn)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (m *TxManager) begin(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := setLocalTimeouts(ctx, pgTx, opts); err != nil {
		_ = pgTx.Rollback(context.Background())
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: pgTx})
	if err := fn(txCtx); err != nil {
		// Background context so the rollback completes after cancellation.
		if rbErr := pgTx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return TranslateError(err)
	}

	if err := pgTx.Commit(ctx); err != nil {
		return TranslateError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func setLocalTimeouts(ctx context.Context, pgTx pgx.Tx, opts TxOptions) error {
	if opts.StatementTimeout > 0 {
		if _, err := pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if opts.LockTimeout > 0 {
		if _, err := pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	return nil
}

func (m *TxManager) nested(ctx context.Context, existing *Tx, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.UseSavepoint {
		return fn(ctx)
	}

	name := fmt.Sprintf("sp_%d", time.Now().UnixNano())
	if _, err := existing.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := existing.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
		}
		return err
	}
	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// TranslateError maps retryable PostgreSQL failures to CONCURRENT_MODIFICATION.
// Other errors pass through unchanged.
func TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return apperror.NewConcurrentModification("transaction", pgErr.Code).WithCause(err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

// IsUniqueViolation reports a 23505 error, for repositories outside this package.
func IsUniqueViolation(err error) bool { return isUniqueViolation(err) }

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is satisfied by both pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the transaction in ctx, or the pool outside one.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// Pool exposes the underlying pool for components that manage their own
// statements (outbox relay, lease cleanup).
func (m *TxManager) Pool() *pgxpool.Pool { return m.pool }

// ReadOnly executes fn in a read-only READ COMMITTED transaction. Reporting
// reads never run at the serializable level the settlement writes use.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, readOnlyOptions(m.defaults), fn)
}

func readOnlyOptions(defaults TxOptions) TxOptions {
	opts := defaults
	opts.IsolationLevel = pgx.ReadCommitted
	opts.AccessMode = pgx.ReadOnly
	return opts
}
