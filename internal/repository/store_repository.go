package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

type StoreRepository struct {
	db     DBTX
	logger logger.Logger
}

func NewStoreRepository(db DBTX, logger logger.Logger) domain.StoreRepository {
	return &StoreRepository{
		db:     db,
		logger: logger,
	}
}

func (r *StoreRepository) Upsert(ctx context.Context, store *domain.StoreProfile) error {
	query := `
		INSERT INTO stores (store_id, name, partner_program, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id) DO UPDATE
		SET name = excluded.name, partner_program = excluded.partner_program, updated_at = excluded.updated_at
	`

	store.UpdatedAt = time.Now().UTC()

	if _, err := r.db.ExecContext(ctx, query, store.StoreID, store.Name, store.PartnerProgram, store.UpdatedAt); err != nil {
		r.logger.Error("Failed to save store profile", map[string]interface{}{
			"store_id": store.StoreID,
			"error":    err.Error(),
		})
		return fmt.Errorf("failed to save store profile: %w", err)
	}

	return nil
}

func (r *StoreRepository) FindByID(ctx context.Context, storeID int64) (*domain.StoreProfile, error) {
	query := `
		SELECT store_id, name, partner_program, updated_at
		FROM stores
		WHERE store_id = $1
	`

	var store domain.StoreProfile
	err := r.db.QueryRowContext(ctx, query, storeID).Scan(
		&store.StoreID,
		&store.Name,
		&store.PartnerProgram,
		&store.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store profile: %w", err)
	}

	return &store, nil
}
