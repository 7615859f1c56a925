package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// StatementBatch collects statements that must run in order within the
// current transaction. Each statement carries a label used in errors.
type StatementBatch struct {
	batch  pgx.Batch
	labels []string
}

// Add queues one statement.
func (b *StatementBatch) Add(label, sql string, args ...any) {
	b.batch.Queue(sql, args...)
	b.labels = append(b.labels, label)
}

// Len returns the number of queued statements.
func (b *StatementBatch) Len() int { return len(b.labels) }

// SendBatch runs b in one round-trip. The first failing statement aborts
// the transaction, so only its error is reported.
func (m *TxManager) SendBatch(ctx context.Context, b *StatementBatch) error {
	if b.Len() == 0 {
		return nil
	}
	t := m.GetTx(ctx)
	if t == nil {
		return errors.New("statement batch requires transaction context")
	}

	results := t.SendBatch(ctx, &b.batch)
	defer results.Close()

	for _, label := range b.labels {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s: %w", label, TranslateError(err))
		}
	}
	return nil
}
