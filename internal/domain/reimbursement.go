package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ObligationStatus string

const (
	ObligationStatusPending ObligationStatus = "pending"
	ObligationStatusSettled ObligationStatus = "settled"
)

// PaymentMethodCashbackRedemption tags obligations created from balance
// redemptions.
const PaymentMethodCashbackRedemption = "cashback_redemption"

// ReimbursementObligation is the platform's accumulated debt to a store.
// TotalAmount equals the sum of the debit movements linked to it.
type ReimbursementObligation struct {
	ID            int64            `json:"id"`
	StoreID       int64            `json:"store_id"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaymentMethod string           `json:"payment_method"`
	Note          string           `json:"note"`
	Status        ObligationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	SettledAt     *time.Time       `json:"settled_at,omitempty"`
}

// ReimbursementNoteLine formats one entry of an obligation's note trail.
func ReimbursementNoteLine(amount decimal.Decimal, usageTransactionID *int64, customerID int64) string {
	usage := "-"
	if usageTransactionID != nil {
		usage = fmt.Sprintf("%d", *usageTransactionID)
	}
	return fmt.Sprintf("+%s usage_tx=%s customer=%d", amount.StringFixed(MoneyScale), usage, customerID)
}

type ReimbursementDetail struct {
	Obligation *ReimbursementObligation `json:"obligation"`
	Movements  []*Movement              `json:"movements"`
}

type ReimbursementRepository interface {
	// FindLatestPending returns nil when the store has no pending obligation.
	FindLatestPending(ctx context.Context, storeID int64) (*ReimbursementObligation, error)
	// Create reports false when another pending obligation for the store
	// already exists.
	Create(ctx context.Context, obligation *ReimbursementObligation) (bool, error)
	AddAmount(ctx context.Context, id int64, amount decimal.Decimal, noteLine string, at time.Time) error
	FindByID(ctx context.Context, id int64) (*ReimbursementObligation, error)
	ListPending(ctx context.Context, storeID *int64) ([]*ReimbursementObligation, error)
	// MarkSettled reports false when the obligation was not pending.
	MarkSettled(ctx context.Context, id int64, at time.Time) (bool, error)
}

// ReimbursementAggregator folds debits into the store's pending obligation.
type ReimbursementAggregator interface {
	RecordDebitReimbursement(ctx context.Context, scope Scope, storeID int64, amount decimal.Decimal, usageTransactionID *int64, customerID int64) (int64, error)
}

type ReimbursementService interface {
	ReimbursementAggregator
	ListPending(ctx context.Context, storeID *int64) ([]*ReimbursementObligation, error)
	Get(ctx context.Context, id int64) (*ReimbursementDetail, error)
	MarkSettled(ctx context.Context, id int64) (*ReimbursementObligation, error)
}
