// Package rollup_repo stores daily rollup buckets.
package rollup_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/rollup"
	"sompos/internal/infrastructure/storage/postgres"
)

const bucketsTable = "rollup_buckets"

type bucketRow struct {
	Dimension     rollup.Dimension `db:"dimension"`
	StoreID       id.ID            `db:"store_id"`
	Day           time.Time        `db:"day"`
	Value         string           `db:"key_value"`
	Label         string           `db:"label"`
	Quantity      types.Quantity   `db:"quantity"`
	Revenue       types.Money      `db:"revenue"`
	Cost          types.Money      `db:"cost"`
	DebtAdded     types.Money      `db:"debt_added"`
	CashTotal     types.Money      `db:"cash_total"`
	CardTotal     types.Money      `db:"card_total"`
	TransferTotal types.Money      `db:"transfer_total"`
	Discrepancy   types.Money      `db:"cash_discrepancy"`
	Transactions  int64            `db:"transactions"`
	ProductsCount int64            `db:"products_count"`
	ShiftsClosed  int64            `db:"shifts_closed"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

var bucketColumns = postgres.ExtractDBColumns[bucketRow]()

func (r bucketRow) toDomain() rollup.Bucket {
	return rollup.Bucket{
		Key: rollup.Key{
			Dimension: r.Dimension,
			StoreID:   r.StoreID,
			Day:       r.Day.UTC(),
			Value:     r.Value,
		},
		Label:         r.Label,
		Quantity:      r.Quantity,
		Revenue:       r.Revenue,
		Cost:          r.Cost,
		DebtAdded:     r.DebtAdded,
		CashTotal:     r.CashTotal,
		CardTotal:     r.CardTotal,
		TransferTotal: r.TransferTotal,
		Discrepancy:   r.Discrepancy,
		Transactions:  r.Transactions,
		ProductsCount: r.ProductsCount,
		ShiftsClosed:  r.ShiftsClosed,
		UpdatedAt:     r.UpdatedAt,
	}
}

const upsertBucketSQL = `
	INSERT INTO rollup_buckets (
		dimension, store_id, day, key_value, label,
		quantity, revenue, cost, debt_added,
		cash_total, card_total, transfer_total, cash_discrepancy,
		transactions, shifts_closed, products_count, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, NOW())
	ON CONFLICT (dimension, store_id, day, key_value) DO UPDATE SET
		label            = CASE WHEN rollup_buckets.label = '' THEN EXCLUDED.label ELSE rollup_buckets.label END,
		quantity         = rollup_buckets.quantity + EXCLUDED.quantity,
		revenue          = rollup_buckets.revenue + EXCLUDED.revenue,
		cost             = rollup_buckets.cost + EXCLUDED.cost,
		debt_added       = rollup_buckets.debt_added + EXCLUDED.debt_added,
		cash_total       = rollup_buckets.cash_total + EXCLUDED.cash_total,
		card_total       = rollup_buckets.card_total + EXCLUDED.card_total,
		transfer_total   = rollup_buckets.transfer_total + EXCLUDED.transfer_total,
		cash_discrepancy = rollup_buckets.cash_discrepancy + EXCLUDED.cash_discrepancy,
		transactions     = rollup_buckets.transactions + EXCLUDED.transactions,
		shifts_closed    = rollup_buckets.shifts_closed + EXCLUDED.shifts_closed,
		updated_at       = NOW()
`

// countMembersSQL inserts bucket members and raises products_count by the
// number that were new to the bucket.
const countMembersSQL = `
	WITH fresh AS (
		INSERT INTO rollup_bucket_members (dimension, store_id, day, key_value, product_id)
		SELECT $1, $2, $3, $4, p FROM unnest($5::uuid[]) AS p
		ON CONFLICT DO NOTHING
		RETURNING 1
	)
	UPDATE rollup_buckets
	SET products_count = products_count + (SELECT COUNT(*) FROM fresh)
	WHERE dimension = $1 AND store_id = $2 AND day = $3 AND key_value = $4
`

// Repo implements rollup.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ rollup.Repository = (*Repo)(nil)

// NewRepo creates a rollup repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repo) MarkApplied(ctx context.Context, applicationKey string) (bool, error) {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO rollup_applications (application_key, applied_at)
		VALUES ($1, NOW())
		ON CONFLICT (application_key) DO NOTHING
	`, applicationKey)
	if err != nil {
		return false, fmt.Errorf("mark rollup applied: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Increment upserts the bucket and its members in a single round-trip.
// Must run inside a transaction.
func (r *Repo) Increment(ctx context.Context, d rollup.Delta) error {
	day := rollup.Day(d.Day)

	var b postgres.StatementBatch
	b.Add("upsert rollup bucket", upsertBucketSQL,
		d.Dimension, d.StoreID, day, d.Value, d.Label,
		d.Quantity, d.Revenue, d.Cost, d.DebtAdded,
		d.CashTotal, d.CardTotal, d.TransferTotal, d.Discrepancy,
		d.Transactions, d.ShiftsClosed,
	)
	if len(d.Products) > 0 {
		products := make([]string, len(d.Products))
		for i, p := range d.Products {
			products[i] = p.String()
		}
		b.Add("count rollup members", countMembersSQL, d.Dimension, d.StoreID, day, d.Value, products)
	}
	return r.txm.SendBatch(ctx, &b)
}

func (r *Repo) Get(ctx context.Context, k rollup.Key) (rollup.Bucket, error) {
	sql, args, err := r.builder.Select(bucketColumns...).
		From(bucketsTable).
		Where(squirrel.Eq{
			"dimension": k.Dimension,
			"store_id":  k.StoreID,
			"day":       rollup.Day(k.Day),
			"key_value": k.Value,
		}).
		ToSql()
	if err != nil {
		return rollup.Bucket{}, fmt.Errorf("build query: %w", err)
	}

	var row bucketRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return rollup.Bucket{}, apperror.NewNotFound("rollup bucket", string(k.Dimension)+"/"+k.Value)
		}
		return rollup.Bucket{}, fmt.Errorf("get rollup bucket: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repo) List(ctx context.Context, q rollup.Query) ([]rollup.Bucket, error) {
	sb := r.builder.Select(bucketColumns...).
		From(bucketsTable).
		Where(squirrel.Eq{"dimension": q.Dimension, "store_id": q.StoreID}).
		OrderBy("day", "key_value")

	if q.From != nil {
		sb = sb.Where(squirrel.GtOrEq{"day": rollup.Day(*q.From)})
	}
	if q.To != nil {
		sb = sb.Where(squirrel.LtOrEq{"day": rollup.Day(*q.To)})
	}
	if q.Value != "" {
		sb = sb.Where(squirrel.Eq{"key_value": q.Value})
	}
	if q.Limit > 0 {
		sb = sb.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		sb = sb.Offset(uint64(q.Offset))
	}

	sql, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []bucketRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select rollup buckets: %w", err)
	}
	out := make([]rollup.Bucket, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
