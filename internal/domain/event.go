package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypePurchaseApproved  EventType = "purchase_approved"
	EventTypeBalanceRedeemed   EventType = "balance_redeemed"
	EventTypePurchaseCancelled EventType = "purchase_cancelled"
)

// LedgerEvent is a collaborator notification processed asynchronously.
type LedgerEvent struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	CustomerID    int64           `json:"customer_id"`
	StoreID       int64           `json:"store_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
}

func (e *LedgerEvent) Validate() error {
	switch e.Type {
	case EventTypePurchaseApproved, EventTypeBalanceRedeemed, EventTypePurchaseCancelled:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if err := validateKey(e.CustomerID, e.StoreID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if _, err := ValidateAmount(e.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// DeadLetter is an accepted event that could not be applied after every
// attempt. It stays visible until the process restarts.
type DeadLetter struct {
	Event    LedgerEvent `json:"event"`
	Error    string      `json:"error"`
	Attempts int         `json:"attempts"`
	FailedAt time.Time   `json:"failed_at"`
}

type EventStats struct {
	Submitted      int64         `json:"submitted"`
	Completed      int64         `json:"completed"`
	Failed         int64         `json:"failed"`
	Declined       int64         `json:"declined"`
	Retried        int64         `json:"retried"`
	Rejected       int64         `json:"rejected"`
	AvgProcessTime time.Duration `json:"avg_process_time"`
	QueueLength    int           `json:"queue_length"`
	QueueCapacity  int           `json:"queue_capacity"`
	DeadLetters    []DeadLetter  `json:"dead_letters"`
}

type EventIntakeService interface {
	// Submit validates and queues the event, returning its id.
	Submit(ctx context.Context, event *LedgerEvent) (string, error)
	Stats() EventStats
	Shutdown()
}
