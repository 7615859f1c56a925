package ledger_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/id"
	"sompos/internal/domain/stock"
	"sompos/internal/infrastructure/storage/postgres"
)

// AggregateRepo implements stock.Repository over stock_aggregates.
type AggregateRepo struct {
	txm *postgres.TxManager
}

var _ stock.Repository = (*AggregateRepo)(nil)

// NewAggregateRepo creates an aggregate repository.
func NewAggregateRepo(txm *postgres.TxManager) *AggregateRepo {
	return &AggregateRepo{txm: txm}
}

func (r *AggregateRepo) Get(ctx context.Context, storeID, productID id.ID) (stock.Aggregate, error) {
	return r.get(ctx, `
		SELECT store_id, product_id, quantity, updated_at
		FROM stock_aggregates
		WHERE store_id = $1 AND product_id = $2
	`, storeID, productID)
}

// GetForUpdate creates the row first when missing so that the lock always
// has something to hold.
func (r *AggregateRepo) GetForUpdate(ctx context.Context, storeID, productID id.ID) (stock.Aggregate, error) {
	q := r.txm.GetQuerier(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO stock_aggregates (store_id, product_id, quantity, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (store_id, product_id) DO NOTHING
	`, storeID, productID); err != nil {
		return stock.Aggregate{}, fmt.Errorf("ensure aggregate row: %w", err)
	}
	return r.get(ctx, `
		SELECT store_id, product_id, quantity, updated_at
		FROM stock_aggregates
		WHERE store_id = $1 AND product_id = $2
		FOR UPDATE
	`, storeID, productID)
}

func (r *AggregateRepo) get(ctx context.Context, sql string, storeID, productID id.ID) (stock.Aggregate, error) {
	var agg stock.Aggregate
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &agg, sql, storeID, productID); err != nil {
		if pgxscan.NotFound(err) {
			return stock.Aggregate{StoreID: storeID, ProductID: productID}, nil
		}
		return stock.Aggregate{}, fmt.Errorf("get aggregate: %w", err)
	}
	return agg, nil
}

func (r *AggregateRepo) Upsert(ctx context.Context, a stock.Aggregate) error {
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO stock_aggregates (store_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id, product_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			updated_at = EXCLUDED.updated_at
	`, a.StoreID, a.ProductID, a.Quantity, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

func (r *AggregateRepo) ListProductIDs(ctx context.Context, storeID id.ID) ([]id.ID, error) {
	var ids []id.ID
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, `
		SELECT product_id FROM stock_aggregates WHERE store_id = $1
		UNION
		SELECT DISTINCT product_id FROM stock_batches WHERE store_id = $1 AND deleted_at IS NULL
		ORDER BY product_id
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list stocked products: %w", err)
	}
	return ids, nil
}

func (r *AggregateRepo) ListStoreIDs(ctx context.Context) ([]id.ID, error) {
	var ids []id.ID
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, `
		SELECT store_id FROM stock_aggregates
		UNION
		SELECT DISTINCT store_id FROM stock_batches WHERE deleted_at IS NULL
		ORDER BY store_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list stocked stores: %w", err)
	}
	return ids, nil
}
