// Package register_repo stores cash registers and their balance history.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"sompos/internal/core/apperror"
	"sompos/internal/core/id"
	"sompos/internal/core/types"
	"sompos/internal/domain/cash"
	"sompos/internal/infrastructure/storage/postgres"
)

const (
	registersTable = "cash_registers"
	historyTable   = "cash_register_history"
)

type registerRow struct {
	ID             id.ID        `db:"id"`
	StoreID        id.ID        `db:"store_id"`
	OpenedAt       time.Time    `db:"opened_at"`
	OpenedBy       string       `db:"opened_by"`
	CurrentBalance types.Money  `db:"current_balance"`
	TargetBalance  types.Money  `db:"target_balance"`
	IsOpen         bool         `db:"is_open"`
	ClosedBalance  *types.Money `db:"closed_balance"`
	ClosedAt       *time.Time   `db:"closed_at"`
	ClosedBy       string       `db:"closed_by"`
	Discrepancy    *types.Money `db:"discrepancy"`
	Notes          string       `db:"notes"`
}

type historyRow struct {
	ID            id.ID          `db:"id"`
	RegisterID    id.ID          `db:"register_id"`
	StoreID       id.ID          `db:"store_id"`
	Type          cash.EntryType `db:"operation_type"`
	Amount        types.Money    `db:"amount"`
	BalanceBefore types.Money    `db:"balance_before"`
	BalanceAfter  types.Money    `db:"balance_after"`
	Actor         string         `db:"actor"`
	Notes         string         `db:"notes"`
	Reference     string         `db:"reference"`
	CreatedAt     time.Time      `db:"created_at"`
}

var (
	registerColumns = postgres.ExtractDBColumns[registerRow]()
	historyColumns  = postgres.ExtractDBColumns[historyRow]()
)

// CashRepo implements cash.Repository.
type CashRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ cash.Repository = (*CashRepo)(nil)

// NewCashRepo creates a cash register repository.
func NewCashRepo(txm *postgres.TxManager) *CashRepo {
	return &CashRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CashRepo) selectRegister() squirrel.SelectBuilder {
	return r.builder.Select(registerColumns...).From(registersTable)
}

func (r *CashRepo) GetOpen(ctx context.Context, storeID id.ID) (cash.Register, error) {
	return r.getOne(ctx, r.selectRegister().Where(squirrel.Eq{"store_id": storeID, "is_open": true}),
		"open cash register", storeID)
}

func (r *CashRepo) GetOpenForUpdate(ctx context.Context, storeID id.ID) (cash.Register, error) {
	return r.getOne(ctx, r.selectRegister().Where(squirrel.Eq{"store_id": storeID, "is_open": true}).Suffix("FOR UPDATE"),
		"open cash register", storeID)
}

func (r *CashRepo) Get(ctx context.Context, registerID id.ID) (cash.Register, error) {
	return r.getOne(ctx, r.selectRegister().Where(squirrel.Eq{"id": registerID}), "cash register", registerID)
}

func (r *CashRepo) GetForUpdate(ctx context.Context, registerID id.ID) (cash.Register, error) {
	return r.getOne(ctx, r.selectRegister().Where(squirrel.Eq{"id": registerID}).Suffix("FOR UPDATE"),
		"cash register", registerID)
}

func (r *CashRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, entity string, key id.ID) (cash.Register, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return cash.Register{}, fmt.Errorf("build query: %w", err)
	}

	var row registerRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return cash.Register{}, apperror.NewNotFound(entity, key.String())
		}
		return cash.Register{}, fmt.Errorf("get %s: %w", entity, err)
	}
	return cash.Register(row), nil
}

// Create inserts a new shift. The partial unique index on open registers
// turns a second concurrent open into ALREADY_OPEN.
func (r *CashRepo) Create(ctx context.Context, reg *cash.Register) error {
	if id.IsNil(reg.ID) {
		reg.ID = id.New()
	}

	sql, args, err := r.builder.Insert(registersTable).
		SetMap(postgres.StructToMap(registerRow(*reg))).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewAlreadyOpen(reg.StoreID.String())
		}
		return fmt.Errorf("insert cash register: %w", err)
	}
	return nil
}

func (r *CashRepo) Update(ctx context.Context, reg cash.Register) error {
	sql, args, err := r.builder.Update(registersTable).
		Set("current_balance", reg.CurrentBalance).
		Set("target_balance", reg.TargetBalance).
		Set("is_open", reg.IsOpen).
		Set("closed_balance", reg.ClosedBalance).
		Set("closed_at", reg.ClosedAt).
		Set("closed_by", reg.ClosedBy).
		Set("discrepancy", reg.Discrepancy).
		Set("notes", reg.Notes).
		Where(squirrel.Eq{"id": reg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update cash register: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("cash register", reg.ID.String())
	}
	return nil
}

func (r *CashRepo) AppendHistory(ctx context.Context, e *cash.HistoryEntry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	sql, args, err := r.builder.Insert(historyTable).
		SetMap(postgres.StructToMap(historyRow(*e))).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert cash history: %w", err)
	}
	return nil
}

func (r *CashRepo) History(ctx context.Context, registerID id.ID) ([]cash.HistoryEntry, error) {
	sql, args, err := r.builder.Select(historyColumns...).
		From(historyTable).
		Where(squirrel.Eq{"register_id": registerID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []historyRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select cash history: %w", err)
	}
	out := make([]cash.HistoryEntry, len(rows))
	for i, row := range rows {
		out[i] = cash.HistoryEntry(row)
	}
	return out, nil
}
