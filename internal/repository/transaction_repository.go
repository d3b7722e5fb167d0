package repository

import (
	"context"
	"fmt"
	"strings"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

// TransactionRepository reads purchase transactions owned by the payment
// collaborator. It never writes.
type TransactionRepository struct {
	db     DBTX
	logger logger.Logger
}

func NewTransactionRepository(db DBTX, logger logger.Logger) domain.TransactionLookup {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TransactionRepository) FindTransactions(ctx context.Context, ids []int64) (map[int64]domain.TransactionSummary, error) {
	summaries := make(map[int64]domain.TransactionSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `
		SELECT id, amount, status, occurred_at
		FROM purchase_transactions
		WHERE id IN (` + strings.Join(placeholders, ", ") + `)
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to look up purchase transactions", map[string]interface{}{
			"ids":   len(ids),
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to look up purchase transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var summary domain.TransactionSummary
		if err := rows.Scan(&summary.ID, &summary.Amount, &summary.Status, &summary.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase transaction: %w", err)
		}
		summary.Amount = domain.NormalizeMoney(summary.Amount)
		summaries[summary.ID] = summary
	}

	return summaries, rows.Err()
}
