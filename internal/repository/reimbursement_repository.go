package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cashback/internal/database"
	"cashback/internal/domain"
	"cashback/pkg/logger"
)

const obligationColumns = `id, store_id, total_amount, payment_method, note, status, created_at, updated_at, settled_at`

type ReimbursementRepository struct {
	db      DBTX
	dialect database.Dialect
	logger  logger.Logger
}

func NewReimbursementRepository(db DBTX, dialect database.Dialect, logger logger.Logger) domain.ReimbursementRepository {
	return &ReimbursementRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// FindLatestPending locks the row on dialects that support it, so
// concurrent debits at the same store accumulate instead of overwriting.
func (r *ReimbursementRepository) FindLatestPending(ctx context.Context, storeID int64) (*domain.ReimbursementObligation, error) {
	query := `
		SELECT ` + obligationColumns + `
		FROM reimbursement_obligations
		WHERE store_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1` + r.dialect.ForUpdate()

	obligation, err := scanObligation(r.db.QueryRowContext(ctx, query, storeID, string(domain.ObligationStatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending obligation: %w", err)
	}
	return obligation, nil
}

func (r *ReimbursementRepository) Create(ctx context.Context, obligation *domain.ReimbursementObligation) (bool, error) {
	query := `
		INSERT INTO reimbursement_obligations (store_id, total_amount, payment_method, note, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (store_id) WHERE status = 'pending' DO NOTHING
		RETURNING id
	`

	now := time.Now().UTC()
	obligation.CreatedAt = now
	obligation.UpdatedAt = now
	if obligation.Status == "" {
		obligation.Status = domain.ObligationStatusPending
	}

	err := r.db.QueryRowContext(ctx, query,
		obligation.StoreID,
		domain.NormalizeMoney(obligation.TotalAmount),
		obligation.PaymentMethod,
		obligation.Note,
		string(obligation.Status),
		obligation.CreatedAt,
		obligation.UpdatedAt,
	).Scan(&obligation.ID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to create reimbursement obligation", map[string]interface{}{
			"store_id": obligation.StoreID,
			"error":    err.Error(),
		})
		return false, fmt.Errorf("failed to create reimbursement obligation: %w", err)
	}

	return true, nil
}

func (r *ReimbursementRepository) AddAmount(ctx context.Context, id int64, amount decimal.Decimal, noteLine string, at time.Time) error {
	var total decimal.Decimal
	var note string
	err := r.db.QueryRowContext(ctx,
		"SELECT total_amount, note FROM reimbursement_obligations WHERE id = $1 AND status = $2"+r.dialect.ForUpdate(),
		id, string(domain.ObligationStatusPending),
	).Scan(&total, &note)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id=%d", domain.ErrObligationNotPending, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read reimbursement obligation: %w", err)
	}

	if note != "" {
		note += "\n"
	}
	note += noteLine

	res, err := r.db.ExecContext(ctx, `
		UPDATE reimbursement_obligations
		SET total_amount = $1, note = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`,
		domain.NormalizeMoney(total.Add(amount)),
		note,
		at,
		id,
		string(domain.ObligationStatusPending),
	)
	if err != nil {
		r.logger.Error("Failed to update reimbursement obligation", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
		return fmt.Errorf("failed to update reimbursement obligation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update reimbursement obligation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id=%d", domain.ErrObligationNotPending, id)
	}

	return nil
}

func (r *ReimbursementRepository) FindByID(ctx context.Context, id int64) (*domain.ReimbursementObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM reimbursement_obligations WHERE id = $1`

	obligation, err := scanObligation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reimbursement obligation: %w", err)
	}
	return obligation, nil
}

func (r *ReimbursementRepository) ListPending(ctx context.Context, storeID *int64) ([]*domain.ReimbursementObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM reimbursement_obligations WHERE status = $1`
	args := []interface{}{string(domain.ObligationStatusPending)}
	if storeID != nil {
		query += ` AND store_id = $2`
		args = append(args, *storeID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending obligations: %w", err)
	}
	defer rows.Close()

	obligations := make([]*domain.ReimbursementObligation, 0)
	for rows.Next() {
		obligation, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		obligations = append(obligations, obligation)
	}

	return obligations, rows.Err()
}

func (r *ReimbursementRepository) MarkSettled(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reimbursement_obligations
		SET status = $1, settled_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`,
		string(domain.ObligationStatusSettled),
		at,
		id,
		string(domain.ObligationStatusPending),
	)
	if err != nil {
		r.logger.Error("Failed to settle reimbursement obligation", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
		return false, fmt.Errorf("failed to settle reimbursement obligation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to settle reimbursement obligation: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanObligation(row rowScanner) (*domain.ReimbursementObligation, error) {
	var o domain.ReimbursementObligation
	var status string
	var settledAt sql.NullTime

	if err := row.Scan(
		&o.ID,
		&o.StoreID,
		&o.TotalAmount,
		&o.PaymentMethod,
		&o.Note,
		&status,
		&o.CreatedAt,
		&o.UpdatedAt,
		&settledAt,
	); err != nil {
		return nil, err
	}

	o.Status = domain.ObligationStatus(status)
	if settledAt.Valid {
		t := settledAt.Time
		o.SettledAt = &t
	}
	return &o, nil
}
