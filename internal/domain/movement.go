package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OperationType string

const (
	OperationCredit OperationType = "credit"
	OperationDebit  OperationType = "debit"
	OperationRefund OperationType = "refund"
)

// Link carries the operation specific references of a Movement. Only the
// three link types below implement it.
type Link interface {
	OperationType() OperationType
	isLink()
}

type CreditLink struct {
	OriginTransactionID *int64
}

type DebitLink struct {
	UsageTransactionID *int64
	ReimbursementID    *int64
}

type RefundLink struct {
	RelatedTransactionID *int64
}

func (CreditLink) OperationType() OperationType { return OperationCredit }
func (DebitLink) OperationType() OperationType  { return OperationDebit }
func (RefundLink) OperationType() OperationType { return OperationRefund }

func (CreditLink) isLink() {}
func (DebitLink) isLink()  {}
func (RefundLink) isLink() {}

// Movement is one immutable audit entry of a balance change.
type Movement struct {
	ID            int64
	CustomerID    int64
	StoreID       int64
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	OccurredAt    time.Time
	Link          Link
}

func (m *Movement) Type() OperationType {
	if m.Link == nil {
		return ""
	}
	return m.Link.OperationType()
}

// Delta is the signed effect of the movement on the available balance.
func (m *Movement) Delta() decimal.Decimal {
	if m.Type() == OperationDebit {
		return m.Amount.Neg()
	}
	return m.Amount
}

func (m *Movement) Key() BalanceKey {
	return BalanceKey{CustomerID: m.CustomerID, StoreID: m.StoreID}
}

func (m *Movement) Validate() error {
	if m.Link == nil {
		return fmt.Errorf("movement for %s has no operation link", m.Key())
	}
	if !m.Amount.IsPositive() {
		return fmt.Errorf("%w: movement amount %s", ErrInvalidAmount, m.Amount)
	}
	if !m.BalanceBefore.Add(m.Delta()).Equal(m.BalanceAfter) {
		return fmt.Errorf("%s movement inconsistent: %s -> %s for amount %s",
			m.Type(), m.BalanceBefore, m.BalanceAfter, m.Amount)
	}
	return nil
}

// OriginTransactionID returns the purchase that produced a credit.
func (m *Movement) OriginTransactionID() *int64 {
	if l, ok := m.Link.(CreditLink); ok {
		return l.OriginTransactionID
	}
	return nil
}

// UsageTransactionID returns the purchase a debit paid for.
func (m *Movement) UsageTransactionID() *int64 {
	if l, ok := m.Link.(DebitLink); ok {
		return l.UsageTransactionID
	}
	return nil
}

func (m *Movement) ReimbursementID() *int64 {
	if l, ok := m.Link.(DebitLink); ok {
		return l.ReimbursementID
	}
	return nil
}

func (m *Movement) RelatedTransactionID() *int64 {
	if l, ok := m.Link.(RefundLink); ok {
		return l.RelatedTransactionID
	}
	return nil
}

type movementJSON struct {
	ID                   int64           `json:"id"`
	CustomerID           int64           `json:"customer_id"`
	StoreID              int64           `json:"store_id"`
	OperationType        OperationType   `json:"operation_type"`
	Amount               decimal.Decimal `json:"amount"`
	BalanceBefore        decimal.Decimal `json:"balance_before"`
	BalanceAfter         decimal.Decimal `json:"balance_after"`
	Description          string          `json:"description,omitempty"`
	OriginTransactionID  *int64          `json:"origin_transaction_id,omitempty"`
	UsageTransactionID   *int64          `json:"usage_transaction_id,omitempty"`
	ReimbursementID      *int64          `json:"reimbursement_id,omitempty"`
	RelatedTransactionID *int64          `json:"related_transaction_id,omitempty"`
	OccurredAt           time.Time       `json:"occurred_at"`
}

func (m Movement) MarshalJSON() ([]byte, error) {
	return json.Marshal(movementJSON{
		ID:                   m.ID,
		CustomerID:           m.CustomerID,
		StoreID:              m.StoreID,
		OperationType:        m.Type(),
		Amount:               m.Amount,
		BalanceBefore:        m.BalanceBefore,
		BalanceAfter:         m.BalanceAfter,
		Description:          m.Description,
		OriginTransactionID:  m.OriginTransactionID(),
		UsageTransactionID:   m.UsageTransactionID(),
		ReimbursementID:      m.ReimbursementID(),
		RelatedTransactionID: m.RelatedTransactionID(),
		OccurredAt:           m.OccurredAt,
	})
}

func (m *Movement) UnmarshalJSON(data []byte) error {
	var raw movementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	link, err := NewLink(raw.OperationType, raw.OriginTransactionID, raw.UsageTransactionID, raw.ReimbursementID, raw.RelatedTransactionID)
	if err != nil {
		return err
	}

	*m = Movement{
		ID:            raw.ID,
		CustomerID:    raw.CustomerID,
		StoreID:       raw.StoreID,
		Amount:        raw.Amount,
		BalanceBefore: raw.BalanceBefore,
		BalanceAfter:  raw.BalanceAfter,
		Description:   raw.Description,
		OccurredAt:    raw.OccurredAt,
		Link:          link,
	}
	return nil
}

// NewLink rebuilds a Link from its flattened storage form. References that
// do not belong to the operation type are rejected.
func NewLink(op OperationType, origin, usage, reimbursement, related *int64) (Link, error) {
	switch op {
	case OperationCredit:
		if usage != nil || reimbursement != nil || related != nil {
			return nil, fmt.Errorf("credit movement cannot carry debit or refund references")
		}
		return CreditLink{OriginTransactionID: origin}, nil
	case OperationDebit:
		if origin != nil || related != nil {
			return nil, fmt.Errorf("debit movement cannot carry credit or refund references")
		}
		return DebitLink{UsageTransactionID: usage, ReimbursementID: reimbursement}, nil
	case OperationRefund:
		if origin != nil || usage != nil || reimbursement != nil {
			return nil, fmt.Errorf("refund movement cannot carry credit or debit references")
		}
		return RefundLink{RelatedTransactionID: related}, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", op)
	}
}

// MovementRepository is append only.
type MovementRepository interface {
	Append(ctx context.Context, movement *Movement) error
	// Query returns newest first.
	Query(ctx context.Context, customerID, storeID int64, limit, offset int) ([]*Movement, error)
	Count(ctx context.Context, customerID, storeID int64) (int64, error)
	QueryByReimbursement(ctx context.Context, reimbursementID int64) ([]*Movement, error)
	// All returns the full history in chronological order.
	All(ctx context.Context, customerID, storeID int64) ([]*Movement, error)
}
