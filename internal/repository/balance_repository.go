package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

type BalanceRepository struct {
	db     DBTX
	logger logger.Logger
}

func NewBalanceRepository(db DBTX, logger logger.Logger) domain.BalanceRepository {
	return &BalanceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *BalanceRepository) Get(ctx context.Context, customerID, storeID int64) (decimal.Decimal, error) {
	record, err := r.Find(ctx, customerID, storeID)
	if err != nil {
		return decimal.Zero, err
	}
	if record == nil {
		return decimal.Zero, nil
	}
	return record.Available, nil
}

func (r *BalanceRepository) Find(ctx context.Context, customerID, storeID int64) (*domain.BalanceRecord, error) {
	query := `
		SELECT customer_id, store_id, available, total_credited, total_used, version, last_updated
		FROM balances
		WHERE customer_id = $1 AND store_id = $2
	`

	var record domain.BalanceRecord
	err := r.db.QueryRowContext(ctx, query, customerID, storeID).Scan(
		&record.CustomerID,
		&record.StoreID,
		&record.Available,
		&record.TotalCredited,
		&record.TotalUsed,
		&record.Version,
		&record.LastUpdated,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		r.logger.Error("Failed to read balance", map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	return &record, nil
}

func (r *BalanceRepository) GetAll(ctx context.Context, customerID int64, filter domain.BalanceFilter) ([]domain.BalanceView, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT b.store_id, s.name, s.partner_program, b.available, b.total_credited, b.total_used, b.last_updated
		FROM balances b
		LEFT JOIN stores s ON s.store_id = b.store_id
		WHERE b.customer_id = $1`)
	if filter.PartnerProgramOnly {
		sb.WriteString(` AND s.partner_program = TRUE`)
	}
	sb.WriteString(` ORDER BY b.store_id`)

	rows, err := r.db.QueryContext(ctx, sb.String(), customerID)
	if err != nil {
		r.logger.Error("Failed to list balances", map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	views := make([]domain.BalanceView, 0)
	for rows.Next() {
		var view domain.BalanceView
		var name sql.NullString
		var partner sql.NullBool

		if err := rows.Scan(
			&view.StoreID,
			&name,
			&partner,
			&view.Available,
			&view.TotalCredited,
			&view.TotalUsed,
			&view.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}

		view.StoreName = name.String
		view.PartnerProgram = partner.Valid && partner.Bool
		views = append(views, view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	return views, nil
}

// ApplyDelta reads, checks and writes the record with a version
// compare-and-swap. A missing record is inserted with the delta already
// applied. Losing either race yields ErrConcurrentModification.
func (r *BalanceRepository) ApplyDelta(ctx context.Context, delta domain.BalanceDelta) (domain.BalanceRecord, domain.BalanceRecord, error) {
	current, err := r.Find(ctx, delta.CustomerID, delta.StoreID)
	if err != nil {
		return domain.BalanceRecord{}, domain.BalanceRecord{}, err
	}

	before := domain.NewBalanceRecord(delta.CustomerID, delta.StoreID)
	if current != nil {
		before = *current
	}

	after, err := delta.Apply(before, time.Now().UTC())
	if err != nil {
		return before, before, err
	}

	after, err = r.Overwrite(ctx, after, before.Version)
	if err != nil {
		return before, before, err
	}

	return before, after, nil
}

// Overwrite replaces the record if its stored version still equals
// expectedVersion. Version zero means the record must not exist yet.
func (r *BalanceRepository) Overwrite(ctx context.Context, record domain.BalanceRecord, expectedVersion int64) (domain.BalanceRecord, error) {
	record.Available = domain.NormalizeMoney(record.Available)
	record.TotalCredited = domain.NormalizeMoney(record.TotalCredited)
	record.TotalUsed = domain.NormalizeMoney(record.TotalUsed)
	record.Version = expectedVersion + 1
	if record.LastUpdated.IsZero() {
		record.LastUpdated = time.Now().UTC()
	}

	if err := record.Validate(); err != nil {
		return record, err
	}

	var (
		res sql.Result
		err error
	)

	if expectedVersion == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO balances (customer_id, store_id, available, total_credited, total_used, version, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (customer_id, store_id) DO NOTHING
		`,
			record.CustomerID,
			record.StoreID,
			record.Available,
			record.TotalCredited,
			record.TotalUsed,
			record.Version,
			record.LastUpdated,
		)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE balances
			SET available = $1, total_credited = $2, total_used = $3, version = $4, last_updated = $5
			WHERE customer_id = $6 AND store_id = $7 AND version = $8
		`,
			record.Available,
			record.TotalCredited,
			record.TotalUsed,
			record.Version,
			record.LastUpdated,
			record.CustomerID,
			record.StoreID,
			expectedVersion,
		)
	}

	if err != nil {
		r.logger.Error("Failed to write balance", map[string]interface{}{
			"customer_id": record.CustomerID,
			"store_id":    record.StoreID,
			"error":       err.Error(),
		})
		return record, fmt.Errorf("failed to write balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return record, fmt.Errorf("failed to write balance: %w", err)
	}
	if affected == 0 {
		return record, fmt.Errorf("%w: balance %s at version %d",
			domain.ErrConcurrentModification, record.Key(), expectedVersion)
	}

	return record, nil
}

func (r *BalanceRepository) ListKeys(ctx context.Context, customerID *int64) ([]domain.BalanceKey, error) {
	query := `
		SELECT customer_id, store_id FROM balances
		UNION
		SELECT customer_id, store_id FROM movements
		ORDER BY customer_id, store_id
	`
	args := []interface{}{}
	if customerID != nil {
		query = `
			SELECT customer_id, store_id FROM balances WHERE customer_id = $1
			UNION
			SELECT customer_id, store_id FROM movements WHERE customer_id = $1
			ORDER BY customer_id, store_id
		`
		args = append(args, *customerID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance keys: %w", err)
	}
	defer rows.Close()

	keys := make([]domain.BalanceKey, 0)
	for rows.Next() {
		var key domain.BalanceKey
		if err := rows.Scan(&key.CustomerID, &key.StoreID); err != nil {
			return nil, fmt.Errorf("failed to scan balance key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func (r *BalanceRepository) CustomersByStore(ctx context.Context, storeID int64) ([]int64, error) {
	query := `SELECT DISTINCT customer_id FROM balances WHERE store_id = $1 ORDER BY customer_id`

	rows, err := r.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers of store: %w", err)
	}
	defer rows.Close()

	customers := make([]int64, 0)
	for rows.Next() {
		var customerID int64
		if err := rows.Scan(&customerID); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		customers = append(customers, customerID)
	}

	return customers, rows.Err()
}
