package repository

import (
	"context"
	"database/sql"
	"fmt"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

const movementColumns = `id, customer_id, store_id, operation_type, amount, balance_before, balance_after,
		description, origin_transaction_id, usage_transaction_id, reimbursement_id, related_transaction_id, occurred_at`

type MovementRepository struct {
	db     DBTX
	logger logger.Logger
}

func NewMovementRepository(db DBTX, logger logger.Logger) domain.MovementRepository {
	return &MovementRepository{
		db:     db,
		logger: logger,
	}
}

func (r *MovementRepository) Append(ctx context.Context, movement *domain.Movement) error {
	if err := movement.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO movements (customer_id, store_id, operation_type, amount, balance_before, balance_after,
			description, origin_transaction_id, usage_transaction_id, reimbursement_id, related_transaction_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		movement.CustomerID,
		movement.StoreID,
		string(movement.Type()),
		movement.Amount,
		movement.BalanceBefore,
		movement.BalanceAfter,
		movement.Description,
		nullInt64(movement.OriginTransactionID()),
		nullInt64(movement.UsageTransactionID()),
		nullInt64(movement.ReimbursementID()),
		nullInt64(movement.RelatedTransactionID()),
		movement.OccurredAt,
	).Scan(&movement.ID)

	if err != nil {
		r.logger.Error("Failed to append movement", map[string]interface{}{
			"customer_id":    movement.CustomerID,
			"store_id":       movement.StoreID,
			"operation_type": movement.Type(),
			"error":          err.Error(),
		})
		return fmt.Errorf("failed to append movement: %w", err)
	}

	return nil
}

func (r *MovementRepository) Query(ctx context.Context, customerID, storeID int64, limit, offset int) ([]*domain.Movement, error) {
	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE customer_id = $1 AND store_id = $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	return r.queryMovements(ctx, query, customerID, storeID, limit, offset)
}

func (r *MovementRepository) Count(ctx context.Context, customerID, storeID int64) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM movements WHERE customer_id = $1 AND store_id = $2"
	if err := r.db.QueryRowContext(ctx, query, customerID, storeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count movements: %w", err)
	}
	return count, nil
}

func (r *MovementRepository) QueryByReimbursement(ctx context.Context, reimbursementID int64) ([]*domain.Movement, error) {
	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE reimbursement_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	return r.queryMovements(ctx, query, reimbursementID)
}

func (r *MovementRepository) All(ctx context.Context, customerID, storeID int64) ([]*domain.Movement, error) {
	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE customer_id = $1 AND store_id = $2
		ORDER BY occurred_at ASC, id ASC
	`
	return r.queryMovements(ctx, query, customerID, storeID)
}

func (r *MovementRepository) queryMovements(ctx context.Context, query string, args ...interface{}) ([]*domain.Movement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query movements", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	movements := make([]*domain.Movement, 0)
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}

	return movements, nil
}

func scanMovement(rows *sql.Rows) (*domain.Movement, error) {
	var m domain.Movement
	var opType string
	var origin, usage, reimbursement, related sql.NullInt64

	if err := rows.Scan(
		&m.ID,
		&m.CustomerID,
		&m.StoreID,
		&opType,
		&m.Amount,
		&m.BalanceBefore,
		&m.BalanceAfter,
		&m.Description,
		&origin,
		&usage,
		&reimbursement,
		&related,
		&m.OccurredAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan movement: %w", err)
	}

	link, err := domain.NewLink(domain.OperationType(opType),
		int64PtrFromNull(origin),
		int64PtrFromNull(usage),
		int64PtrFromNull(reimbursement),
		int64PtrFromNull(related),
	)
	if err != nil {
		return nil, fmt.Errorf("movement %d: %w", m.ID, err)
	}
	m.Link = link

	return &m, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64PtrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
