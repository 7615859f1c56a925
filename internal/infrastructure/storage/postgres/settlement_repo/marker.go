// Package settlement_repo stores processed-transaction markers.
package settlement_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/domain/settlement"
	"sompos/internal/infrastructure/storage/postgres"
)

type markerRow struct {
	TransactionID id.ID                   `db:"transaction_id"`
	StoreID       id.ID                   `db:"store_id"`
	Status        settlement.MarkerStatus `db:"status"`
	Transaction   []byte                  `db:"transaction"`
	Result        []byte                  `db:"result"`
	SettledAt     time.Time               `db:"settled_at"`
	ReversedAt    *time.Time              `db:"reversed_at"`
	ReversedBy    string                  `db:"reversed_by"`
}

func (r markerRow) toDomain() (settlement.Marker, error) {
	m := settlement.Marker{
		TransactionID: r.TransactionID,
		StoreID:       r.StoreID,
		Status:        r.Status,
		SettledAt:     r.SettledAt,
		ReversedAt:    r.ReversedAt,
		ReversedBy:    r.ReversedBy,
	}
	if err := json.Unmarshal(r.Transaction, &m.Transaction); err != nil {
		return settlement.Marker{}, fmt.Errorf("unmarshal transaction %s: %w", r.TransactionID, err)
	}
	if err := json.Unmarshal(r.Result, &m.Result); err != nil {
		return settlement.Marker{}, fmt.Errorf("unmarshal result %s: %w", r.TransactionID, err)
	}
	return m, nil
}

const selectMarker = `
	SELECT transaction_id, store_id, status, transaction, result, settled_at, reversed_at, reversed_by
	FROM processed_transactions
	WHERE transaction_id = $1
`

// MarkerRepo implements settlement.MarkerRepository.
type MarkerRepo struct {
	txm *postgres.TxManager
}

var _ settlement.MarkerRepository = (*MarkerRepo)(nil)

// NewMarkerRepo creates a marker repository.
func NewMarkerRepo(txm *postgres.TxManager) *MarkerRepo {
	return &MarkerRepo{txm: txm}
}

func (r *MarkerRepo) Get(ctx context.Context, txID id.ID) (settlement.Marker, error) {
	return r.get(ctx, selectMarker, txID)
}

func (r *MarkerRepo) GetForUpdate(ctx context.Context, txID id.ID) (settlement.Marker, error) {
	return r.get(ctx, selectMarker+" FOR UPDATE", txID)
}

func (r *MarkerRepo) get(ctx context.Context, sql string, txID id.ID) (settlement.Marker, error) {
	var row markerRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, txID); err != nil {
		if pgxscan.NotFound(err) {
			return settlement.Marker{}, apperror.NewNotFound("processed transaction", txID.String())
		}
		return settlement.Marker{}, fmt.Errorf("get marker: %w", err)
	}
	return row.toDomain()
}

func (r *MarkerRepo) Insert(ctx context.Context, m settlement.Marker) error {
	txJSON, resJSON, err := encode(m)
	if err != nil {
		return err
	}

	_, err = r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO processed_transactions
			(transaction_id, store_id, status, transaction, result, settled_at, reversed_at, reversed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.TransactionID, m.StoreID, m.Status, txJSON, resJSON, m.SettledAt, m.ReversedAt, m.ReversedBy)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("processed transaction", "transaction_id", m.TransactionID.String())
		}
		return fmt.Errorf("insert marker: %w", err)
	}
	return nil
}

func (r *MarkerRepo) Update(ctx context.Context, m settlement.Marker) error {
	_, resJSON, err := encode(m)
	if err != nil {
		return err
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE processed_transactions
		SET status = $2, result = $3, reversed_at = $4, reversed_by = $5
		WHERE transaction_id = $1
	`, m.TransactionID, m.Status, resJSON, m.ReversedAt, m.ReversedBy)
	if err != nil {
		return fmt.Errorf("update marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("processed transaction", m.TransactionID.String())
	}
	return nil
}

func encode(m settlement.Marker) (txJSON, resJSON []byte, err error) {
	if txJSON, err = json.Marshal(m.Transaction); err != nil {
		return nil, nil, fmt.Errorf("marshal transaction: %w", err)
	}
	if resJSON, err = json.Marshal(m.Result); err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return txJSON, resJSON, nil
}
