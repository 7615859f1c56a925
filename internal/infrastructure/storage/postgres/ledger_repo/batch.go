// Package ledger_repo provides PostgreSQL implementations of the batch ledger
// and the stock aggregate.
package ledger_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/ledger"
	"sompos/internal/infrastructure/storage/postgres"
)

const batchesTable = "stock_batches"

// fifoOrder matches ledger.FIFOLess.
const fifoOrder = "expiration_date ASC NULLS LAST, created_at ASC, id ASC"

type batchRow struct {
	ID             id.ID          `db:"id"`
	StoreID        id.ID          `db:"store_id"`
	ProductID      id.ID          `db:"product_id"`
	Quantity       types.Quantity `db:"quantity"`
	UnitCost       types.Money    `db:"unit_cost"`
	Supplier       string         `db:"supplier"`
	ExpirationDate *time.Time     `db:"expiration_date"`
	Attributes     []byte         `db:"attributes"`
	CreatedAt      time.Time      `db:"created_at"`
	DeletedAt      *time.Time     `db:"deleted_at"`
}

var batchColumns = postgres.ExtractDBColumns[batchRow]()

func toBatchRow(b ledger.Batch) (batchRow, error) {
	attrs := b.Attributes
	if attrs == nil {
		attrs = []ledger.Attribute{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return batchRow{}, fmt.Errorf("marshal attributes: %w", err)
	}
	return batchRow{
		ID:             b.ID,
		StoreID:        b.StoreID,
		ProductID:      b.ProductID,
		Quantity:       b.Quantity,
		UnitCost:       b.UnitCost,
		Supplier:       b.Supplier,
		ExpirationDate: b.ExpirationDate,
		Attributes:     raw,
		CreatedAt:      b.CreatedAt,
		DeletedAt:      b.DeletedAt,
	}, nil
}

func (r batchRow) toDomain() (ledger.Batch, error) {
	b := ledger.Batch{
		ID:             r.ID,
		StoreID:        r.StoreID,
		ProductID:      r.ProductID,
		Quantity:       r.Quantity,
		UnitCost:       r.UnitCost,
		Supplier:       r.Supplier,
		ExpirationDate: r.ExpirationDate,
		CreatedAt:      r.CreatedAt,
		DeletedAt:      r.DeletedAt,
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &b.Attributes); err != nil {
			return ledger.Batch{}, fmt.Errorf("unmarshal attributes of batch %s: %w", r.ID, err)
		}
	}
	if len(b.Attributes) == 0 {
		b.Attributes = nil
	}
	return b, nil
}

func toBatches(rows []batchRow) ([]ledger.Batch, error) {
	out := make([]ledger.Batch, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// BatchRepo implements ledger.Repository.
type BatchRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.Repository = (*BatchRepo)(nil)

// NewBatchRepo creates a batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *BatchRepo) activeQuery(storeID, productID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"store_id": storeID, "product_id": productID, "deleted_at": nil}).
		OrderBy(fifoOrder)
}

// ListActiveForUpdate locks active batches in FIFO order. Locking in a fixed
// order keeps concurrent consumers of the same product deadlock-free.
func (r *BatchRepo) ListActiveForUpdate(ctx context.Context, storeID, productID id.ID) ([]ledger.Batch, error) {
	return r.list(ctx, r.activeQuery(storeID, productID).Suffix("FOR UPDATE"))
}

func (r *BatchRepo) ListActive(ctx context.Context, storeID, productID id.ID) ([]ledger.Batch, error) {
	return r.list(ctx, r.activeQuery(storeID, productID))
}

func (r *BatchRepo) list(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []batchRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	return toBatches(rows)
}

func (r *BatchRepo) Get(ctx context.Context, batchID id.ID) (ledger.Batch, error) {
	sql, args, err := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID}).
		ToSql()
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("build query: %w", err)
	}

	var row batchRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.Batch{}, apperror.NewNotFound("batch", batchID.String())
		}
		return ledger.Batch{}, fmt.Errorf("get batch: %w", err)
	}
	return row.toDomain()
}

func (r *BatchRepo) Create(ctx context.Context, b *ledger.Batch) error {
	if id.IsNil(b.ID) {
		b.ID = id.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	row, err := toBatchRow(*b)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert(batchesTable).SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("batch", "id", b.ID.String())
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) Update(ctx context.Context, b ledger.Batch) error {
	row, err := toBatchRow(b)
	if err != nil {
		return err
	}
	sql, args, err := r.builder.Update(batchesTable).
		Set("quantity", row.Quantity).
		Set("attributes", row.Attributes).
		Set("deleted_at", row.DeletedAt).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("batch", b.ID.String())
	}
	return nil
}

func (r *BatchRepo) SumActive(ctx context.Context, storeID, productID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM stock_batches
		WHERE store_id = $1 AND product_id = $2 AND deleted_at IS NULL
	`, storeID, productID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum active batches: %w", err)
	}
	return sum, nil
}
