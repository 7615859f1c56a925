// Package catalog_repo reads the product catalog the ledger depends on.
// Products are owned by the catalog service; this package never writes them.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/catalog"
	"sompos/internal/infrastructure/storage/postgres"
)

// productRow flattens the product with its optional size and category.
// The embedded Unit maps the unit_* columns.
type productRow struct {
	catalog.Unit
	ID            id.ID       `db:"id"`
	StoreID       id.ID       `db:"store_id"`
	Name          string      `db:"name"`
	PurchasePrice types.Money `db:"purchase_price"`
	SizeID        *id.ID      `db:"size_id"`
	SizeName      *string     `db:"size_name"`
	CategoryID    *id.ID      `db:"category_id"`
	CategoryName  *string     `db:"category_name"`
}

func (r productRow) toDomain() catalog.Product {
	p := catalog.Product{
		ID:            r.ID,
		StoreID:       r.StoreID,
		Name:          r.Name,
		Unit:          r.Unit,
		PurchasePrice: r.PurchasePrice,
	}
	if r.SizeID != nil {
		p.Size = &catalog.Label{ID: *r.SizeID, Name: deref(r.SizeName)}
	}
	if r.CategoryID != nil {
		p.Category = &catalog.Label{ID: *r.CategoryID, Name: deref(r.CategoryName)}
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ProductRepo implements catalog.Provider.
type ProductRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ catalog.Provider = (*ProductRepo)(nil)

// NewProductRepo creates a product reader.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ProductRepo) GetProducts(ctx context.Context, storeID id.ID, ids []id.ID) (map[id.ID]catalog.Product, error) {
	out := make(map[id.ID]catalog.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sql, args, err := r.builder.Select(
		"p.id", "p.store_id", "p.name",
		"p.unit_kind", "p.unit_code", "p.unit_display", "p.unit_allow_decimal",
		"p.unit_min_sale_qty", "p.unit_step", "p.purchase_price",
		"s.id AS size_id", "s.name AS size_name",
		"c.id AS category_id", "c.name AS category_name",
	).
		From("products p").
		LeftJoin("product_sizes s ON s.id = p.size_id").
		LeftJoin("product_categories c ON c.id = p.category_id").
		Where(squirrel.Eq{"p.store_id": storeID, "p.id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []productRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.toDomain()
	}
	for _, pid := range ids {
		if _, ok := out[pid]; !ok {
			return nil, apperror.NewNotFound("product", pid.String())
		}
	}
	return out, nil
}
