package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CreditRequest struct {
	CustomerID          int64
	StoreID             int64
	Amount              decimal.Decimal
	Description         string
	OriginTransactionID *int64
}

type DebitRequest struct {
	CustomerID         int64
	StoreID            int64
	Amount             decimal.Decimal
	Description        string
	UsageTransactionID *int64
}

type RefundRequest struct {
	CustomerID           int64
	StoreID              int64
	Amount               decimal.Decimal
	Description          string
	RelatedTransactionID *int64
}

func (r CreditRequest) Validate() (decimal.Decimal, error) {
	return validateRequest(r.CustomerID, r.StoreID, r.Amount)
}

func (r DebitRequest) Validate() (decimal.Decimal, error) {
	return validateRequest(r.CustomerID, r.StoreID, r.Amount)
}

func (r RefundRequest) Validate() (decimal.Decimal, error) {
	return validateRequest(r.CustomerID, r.StoreID, r.Amount)
}

func validateRequest(customerID, storeID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validateKey(customerID, storeID); err != nil {
		return decimal.Zero, err
	}
	return ValidateAmount(amount)
}

// ObligationOutcome is the advisory result of the reimbursement step of a
// debit. Err is never joined into the debit's own error.
type ObligationOutcome struct {
	ReimbursementID *int64
	Err             error
}

// MutationResult is the committed effect of a ledger operation.
type MutationResult struct {
	Movement   *Movement
	Balance    BalanceRecord
	Obligation *ObligationOutcome
	// MovementRecorded is false when the audit entry could not be written
	// and the balance committed without it.
	MovementRecorded bool
}

type LedgerService interface {
	Credit(ctx context.Context, req CreditRequest) (*MutationResult, error)
	Debit(ctx context.Context, req DebitRequest) (*MutationResult, error)
	Refund(ctx context.Context, req RefundRequest) (*MutationResult, error)
}

// TransactionSummary is the purchase data shown next to a movement.
type TransactionSummary struct {
	ID         int64           `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// TransactionLookup resolves purchase transactions owned by the payment
// collaborator. Missing ids are simply absent from the result.
type TransactionLookup interface {
	FindTransactions(ctx context.Context, ids []int64) (map[int64]TransactionSummary, error)
}

type MovementView struct {
	Movement           *Movement           `json:"movement"`
	OriginTransaction  *TransactionSummary `json:"origin_transaction,omitempty"`
	UsageTransaction   *TransactionSummary `json:"usage_transaction,omitempty"`
	RelatedTransaction *TransactionSummary `json:"related_transaction,omitempty"`
}

type MovementPage struct {
	Items    []MovementView `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Total    int64          `json:"total"`
}

type Statistics struct {
	MovementCount         int64           `json:"movement_count"`
	LastMovementAt        *time.Time      `json:"last_movement_at,omitempty"`
	TotalCreditedHistoric decimal.Decimal `json:"total_credited_historic"`
	TotalUsedHistoric     decimal.Decimal `json:"total_used_historic"`
	TotalRefunded         decimal.Decimal `json:"total_refunded"`
	AvgCredit             decimal.Decimal `json:"avg_credit"`
	AvgDebit              decimal.Decimal `json:"avg_debit"`
}

type ReconcileResult struct {
	Key      BalanceKey     `json:"key"`
	Expected BalanceRecord  `json:"expected"`
	Actual   *BalanceRecord `json:"actual,omitempty"`
	Drifted  bool           `json:"drifted"`
	Repaired bool           `json:"repaired"`
	Error    string         `json:"error,omitempty"`
}

type ReconcileReport struct {
	Checked  int               `json:"checked"`
	Drifted  int               `json:"drifted"`
	Repaired int               `json:"repaired"`
	Failed   int               `json:"failed"`
	Results  []ReconcileResult `json:"results"`
}

type BalanceQuery interface {
	GetStoreBalance(ctx context.Context, customerID, storeID int64) (decimal.Decimal, error)
	GetAllBalances(ctx context.Context, customerID int64, filter BalanceFilter) ([]BalanceView, error)
	GetMovementHistory(ctx context.Context, customerID, storeID int64, page, pageSize int) (*MovementPage, error)
	GetStatistics(ctx context.Context, customerID, storeID int64) (*Statistics, error)
	// Reconcile recomputes balances from movement history. A nil customerID
	// runs over every known key.
	Reconcile(ctx context.Context, customerID *int64) (*ReconcileReport, error)
	// DetectDrift runs the same comparison as Reconcile without repairing.
	DetectDrift(ctx context.Context, customerID *int64) (*ReconcileReport, error)
}
