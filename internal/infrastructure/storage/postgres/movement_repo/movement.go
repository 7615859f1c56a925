// Package movement_repo stores the append-only stock movement log.
package movement_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/movement"
	"sompos/internal/infrastructure/storage/postgres"
)

const movementsTable = "stock_movements"

type movementRow struct {
	ID                  id.ID                  `db:"id"`
	StoreID             id.ID                  `db:"store_id"`
	ProductID           id.ID                  `db:"product_id"`
	QuantityBefore      types.Quantity         `db:"quantity_before"`
	QuantityAfter       types.Quantity         `db:"quantity_after"`
	QuantityDelta       types.Quantity         `db:"quantity_change"`
	OperationType       movement.OperationType `db:"operation_type"`
	ReferenceID         string                 `db:"reference_id"`
	Actor               string                 `db:"actor"`
	BatchID             *id.ID                 `db:"batch_id"`
	SizeID              *id.ID                 `db:"size_id"`
	SalePriceAtTime     *types.Money           `db:"sale_price_at_time"`
	PurchasePriceAtTime *types.Money           `db:"purchase_price_at_time"`
	Notes               string                 `db:"notes"`
	CreatedAt           time.Time              `db:"created_at"`
}

var movementColumns = postgres.ExtractDBColumns[movementRow]()

func (r movementRow) toDomain() movement.Record { return movement.Record(r) }

// Repo implements movement.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ movement.Repository = (*Repo)(nil)

// NewRepo creates a movement repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert relies on the unique reference_id index; a conflicting row is left
// untouched and reported as not inserted.
func (r *Repo) Insert(ctx context.Context, rec *movement.Record) (bool, error) {
	if id.IsNil(rec.ID) {
		rec.ID = id.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	// Cursors carry the timestamp; keep it at column precision.
	rec.CreatedAt = rec.CreatedAt.Truncate(time.Microsecond)

	sql, args, err := r.builder.Insert(movementsTable).
		SetMap(postgres.StructToMap(movementRow(*rec))).
		Suffix("ON CONFLICT (reference_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert movement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) GetByReference(ctx context.Context, referenceID string) (movement.Record, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"reference_id": referenceID}).
		ToSql()
	if err != nil {
		return movement.Record{}, fmt.Errorf("build query: %w", err)
	}

	var row movementRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return movement.Record{}, apperror.NewNotFound("movement", referenceID)
		}
		return movement.Record{}, fmt.Errorf("get movement: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repo) Page(ctx context.Context, f movement.Filter, after *movement.Cursor, limit int) ([]movement.Record, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"store_id": f.StoreID}).
		OrderBy("created_at DESC", "id DESC")

	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *f.ProductID})
	}
	if f.OperationType != nil {
		q = q.Where(squirrel.Eq{"operation_type": *f.OperationType})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *f.To})
	}
	if after != nil {
		// Row comparison matches the (created_at DESC, id DESC) index.
		q = q.Where("(created_at, id) < (?, ?)", after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	out := make([]movement.Record, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
