package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceKey identifies one per-store balance.
type BalanceKey struct {
	CustomerID int64 `json:"customer_id"`
	StoreID    int64 `json:"store_id"`
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("customer:%d:store:%d", k.CustomerID, k.StoreID)
}

func (k BalanceKey) Validate() error {
	return validateKey(k.CustomerID, k.StoreID)
}

// BalanceRecord is the authoritative state of a (customer, store) balance.
// Available always equals TotalCredited minus TotalUsed.
type BalanceRecord struct {
	CustomerID    int64           `json:"customer_id"`
	StoreID       int64           `json:"store_id"`
	Available     decimal.Decimal `json:"available"`
	TotalCredited decimal.Decimal `json:"total_credited"`
	TotalUsed     decimal.Decimal `json:"total_used"`
	Version       int64           `json:"version"`
	LastUpdated   time.Time       `json:"last_updated"`
}

func NewBalanceRecord(customerID, storeID int64) BalanceRecord {
	return BalanceRecord{
		CustomerID:    customerID,
		StoreID:       storeID,
		Available:     decimal.Zero,
		TotalCredited: decimal.Zero,
		TotalUsed:     decimal.Zero,
	}
}

func (b BalanceRecord) Key() BalanceKey {
	return BalanceKey{CustomerID: b.CustomerID, StoreID: b.StoreID}
}

func (b BalanceRecord) Validate() error {
	if b.Available.IsNegative() {
		return fmt.Errorf("%w: available %s is negative", ErrInsufficientBalance, b.Available)
	}
	if b.TotalUsed.IsNegative() || b.TotalCredited.IsNegative() {
		return fmt.Errorf("%w: totals must not be negative", ErrInvalidAmount)
	}
	if !b.Available.Equal(b.TotalCredited.Sub(b.TotalUsed)) {
		return fmt.Errorf("balance %s out of balance: available=%s credited=%s used=%s",
			b.Key(), b.Available, b.TotalCredited, b.TotalUsed)
	}
	return nil
}

// SameAmounts compares the money fields only.
func (b BalanceRecord) SameAmounts(other BalanceRecord) bool {
	return b.Available.Equal(other.Available) &&
		b.TotalCredited.Equal(other.TotalCredited) &&
		b.TotalUsed.Equal(other.TotalUsed)
}

// BalanceDelta is the input of BalanceRepository.ApplyDelta.
type BalanceDelta struct {
	CustomerID    int64
	StoreID       int64
	CreditedDelta decimal.Decimal
	UsedDelta     decimal.Decimal
}

// Signed is the change applied to Available.
func (d BalanceDelta) Signed() decimal.Decimal {
	return d.CreditedDelta.Sub(d.UsedDelta)
}

// Apply computes the record that results from applying d to current. It
// never mutates current.
func (d BalanceDelta) Apply(current BalanceRecord, now time.Time) (BalanceRecord, error) {
	next := current
	next.TotalCredited = NormalizeMoney(current.TotalCredited.Add(d.CreditedDelta))
	next.TotalUsed = NormalizeMoney(current.TotalUsed.Add(d.UsedDelta))
	next.Available = NormalizeMoney(current.Available.Add(d.Signed()))
	next.LastUpdated = now

	if next.Available.IsNegative() {
		return current, fmt.Errorf("%w: available %s, requested %s",
			ErrInsufficientBalance, current.Available, d.Signed().Neg())
	}
	if next.TotalUsed.IsNegative() {
		return current, fmt.Errorf("%w: refund exceeds total used %s", ErrInvalidAmount, current.TotalUsed)
	}
	return next, nil
}

// ReplayMovements rebuilds the money fields of a balance purely from its
// movement history: credited is the sum of credits, used is debits minus
// refunds.
func ReplayMovements(key BalanceKey, movements []*Movement) BalanceRecord {
	record := NewBalanceRecord(key.CustomerID, key.StoreID)
	for _, m := range movements {
		switch m.Type() {
		case OperationCredit:
			record.TotalCredited = record.TotalCredited.Add(m.Amount)
		case OperationDebit:
			record.TotalUsed = record.TotalUsed.Add(m.Amount)
		case OperationRefund:
			record.TotalUsed = record.TotalUsed.Sub(m.Amount)
		}
	}
	record.TotalCredited = NormalizeMoney(record.TotalCredited)
	record.TotalUsed = NormalizeMoney(record.TotalUsed)
	record.Available = NormalizeMoney(record.TotalCredited.Sub(record.TotalUsed))
	return record
}

// BalanceView is one row of a customer's balance dashboard.
type BalanceView struct {
	StoreID        int64           `json:"store_id"`
	StoreName      string          `json:"store_name,omitempty"`
	PartnerProgram bool            `json:"partner_program"`
	Available      decimal.Decimal `json:"available"`
	TotalCredited  decimal.Decimal `json:"total_credited"`
	TotalUsed      decimal.Decimal `json:"total_used"`
	LastUpdated    time.Time       `json:"last_updated"`
}

type BalanceFilter struct {
	PartnerProgramOnly bool
	IncludeZero        bool
}

type BalanceRepository interface {
	// Get returns zero when no record exists.
	Get(ctx context.Context, customerID, storeID int64) (decimal.Decimal, error)
	Find(ctx context.Context, customerID, storeID int64) (*BalanceRecord, error)
	// GetAll may include zero balance rows regardless of filter.IncludeZero.
	GetAll(ctx context.Context, customerID int64, filter BalanceFilter) ([]BalanceView, error)
	ApplyDelta(ctx context.Context, delta BalanceDelta) (before BalanceRecord, after BalanceRecord, err error)
	Overwrite(ctx context.Context, record BalanceRecord, expectedVersion int64) (BalanceRecord, error)
	ListKeys(ctx context.Context, customerID *int64) ([]BalanceKey, error)
	// CustomersByStore lists every customer holding a balance record at
	// the store, zero balances included.
	CustomersByStore(ctx context.Context, storeID int64) ([]int64, error)
}
