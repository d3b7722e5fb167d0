package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"cashback/internal/concurrent"
	"cashback/internal/domain"
	"cashback/pkg/logger"
)

var defaultDescriptions = map[domain.EventType]string{
	domain.EventTypePurchaseApproved:  "purchase reward",
	domain.EventTypeBalanceRedeemed:   "balance redemption",
	domain.EventTypePurchaseCancelled: "purchase cancelled",
}

type EventIntakeSettings struct {
	Workers   int
	QueueSize int
	// MaxAttempts bounds how often a transiently failing event is applied
	// before it is parked as a dead letter.
	MaxAttempts          int
	RetryInitialInterval time.Duration
	DeadLetterLimit      int
}

func DefaultEventIntakeSettings() EventIntakeSettings {
	return EventIntakeSettings{
		Workers:              4,
		QueueSize:            256,
		MaxAttempts:          3,
		RetryInitialInterval: 200 * time.Millisecond,
		DeadLetterLimit:      100,
	}
}

// EventIntakeService queues collaborator events and applies them to the
// ledger from a worker pool.
type EventIntakeService struct {
	ledger   domain.LedgerService
	pool     *concurrent.WorkerPool
	settings EventIntakeSettings
	logger   logger.Logger

	retried     atomic.Int64
	deadMu      sync.Mutex
	deadLetters []domain.DeadLetter
}

func NewEventIntakeService(ledger domain.LedgerService, settings EventIntakeSettings, logger logger.Logger) *EventIntakeService {
	defaults := DefaultEventIntakeSettings()
	if settings.Workers <= 0 {
		settings.Workers = defaults.Workers
	}
	if settings.QueueSize <= 0 {
		settings.QueueSize = defaults.QueueSize
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 1
	}
	if settings.RetryInitialInterval <= 0 {
		settings.RetryInitialInterval = defaults.RetryInitialInterval
	}
	if settings.DeadLetterLimit <= 0 {
		settings.DeadLetterLimit = defaults.DeadLetterLimit
	}

	s := &EventIntakeService{
		ledger:   ledger,
		settings: settings,
		logger:   logger,
	}
	s.pool = concurrent.NewWorkerPool(settings.Workers, settings.QueueSize, s.process, logger)
	s.pool.Start()
	return s
}

func (s *EventIntakeService) Submit(ctx context.Context, event *domain.LedgerEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("%w: empty event", domain.ErrInvalidEvent)
	}
	if err := event.Validate(); err != nil {
		s.logger.InfoContext(ctx, "Ledger event rejected", map[string]interface{}{
			"type":   event.Type,
			"reason": err.Error(),
		})
		return "", err
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	if event.Description == "" {
		event.Description = defaultDescriptions[event.Type]
	}

	if !s.pool.Submit(event) {
		return "", fmt.Errorf("%w: capacity %d", domain.ErrEventQueueFull, s.pool.QueueCapacity())
	}
	return event.ID, nil
}

// process applies the event, retrying transient storage failures. Business
// rejections and ambiguous commits are returned on the first attempt.
func (s *EventIntakeService) process(ctx context.Context, event *domain.LedgerEvent) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := s.apply(ctx, event)
		if err == nil {
			return nil
		}
		if !redeliverable(ctx, err) {
			return backoff.Permanent(err)
		}
		if attempts < s.settings.MaxAttempts {
			s.retried.Add(1)
			s.logger.WarnContext(ctx, "Ledger event failed, retrying", map[string]interface{}{
				"event_id": event.ID,
				"type":     event.Type,
				"attempt":  attempts,
				"error":    err.Error(),
			})
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.settings.RetryInitialInterval
	eb.MaxInterval = 20 * s.settings.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.settings.MaxAttempts-1)), ctx)

	err := backoff.Retry(operation, policy)
	if err == nil {
		return nil
	}
	if !domain.IsBusinessError(err) {
		s.park(event, err, attempts)
	}
	return fmt.Errorf("event %s (%s): %w", event.ID, event.Type, err)
}

func redeliverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || domain.IsBusinessError(err) || errors.Is(err, domain.ErrCommitOutcomeUnknown) {
		return false
	}
	return errors.Is(err, domain.ErrStorageUnavailable) ||
		errors.Is(err, domain.ErrConcurrentModificationRetryExceeded)
}

// park keeps the newest failures, dropping the oldest past the limit.
func (s *EventIntakeService) park(event *domain.LedgerEvent, err error, attempts int) {
	s.deadMu.Lock()
	defer s.deadMu.Unlock()

	s.deadLetters = append(s.deadLetters, domain.DeadLetter{
		Event:    *event,
		Error:    err.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	})
	if over := len(s.deadLetters) - s.settings.DeadLetterLimit; over > 0 {
		s.deadLetters = append([]domain.DeadLetter(nil), s.deadLetters[over:]...)
	}
}

func (s *EventIntakeService) apply(ctx context.Context, event *domain.LedgerEvent) error {
	var err error
	switch event.Type {
	case domain.EventTypePurchaseApproved:
		_, err = s.ledger.Credit(ctx, domain.CreditRequest{
			CustomerID:          event.CustomerID,
			StoreID:             event.StoreID,
			Amount:              event.Amount,
			Description:         event.Description,
			OriginTransactionID: event.TransactionID,
		})
	case domain.EventTypeBalanceRedeemed:
		_, err = s.ledger.Debit(ctx, domain.DebitRequest{
			CustomerID:         event.CustomerID,
			StoreID:            event.StoreID,
			Amount:             event.Amount,
			Description:        event.Description,
			UsageTransactionID: event.TransactionID,
		})
	case domain.EventTypePurchaseCancelled:
		_, err = s.ledger.Refund(ctx, domain.RefundRequest{
			CustomerID:           event.CustomerID,
			StoreID:              event.StoreID,
			Amount:               event.Amount,
			Description:          event.Description,
			RelatedTransactionID: event.TransactionID,
		})
	default:
		err = fmt.Errorf("%w: unknown type %q", domain.ErrInvalidEvent, event.Type)
	}
	return err
}

func (s *EventIntakeService) Stats() domain.EventStats {
	stats := s.pool.GetStats()

	s.deadMu.Lock()
	deadLetters := make([]domain.DeadLetter, len(s.deadLetters))
	copy(deadLetters, s.deadLetters)
	s.deadMu.Unlock()

	return domain.EventStats{
		Submitted:      stats.Submitted,
		Completed:      stats.Completed,
		Failed:         stats.Failed,
		Declined:       stats.Declined,
		Retried:        s.retried.Load(),
		Rejected:       stats.Rejected,
		AvgProcessTime: stats.AvgProcessTime,
		QueueLength:    s.pool.QueueLength(),
		QueueCapacity:  s.pool.QueueCapacity(),
		DeadLetters:    deadLetters,
	}
}

// Shutdown drains already accepted events and stops the workers.
func (s *EventIntakeService) Shutdown() {
	s.pool.Stop()
}
