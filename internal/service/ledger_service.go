package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cashback/internal/concurrent"
	"cashback/internal/domain"
	"cashback/pkg/circuitbreaker"
	"cashback/pkg/logger"
	"cashback/pkg/metrics"
	"cashback/pkg/tracing"
)

const (
	savepointReimbursement = "reimbursement"
	savepointMovement      = "movement"
)

type LedgerSettings struct {
	OperationTimeout     time.Duration
	MaxRetries           int
	RetryInitialInterval time.Duration
}

func DefaultLedgerSettings() LedgerSettings {
	return LedgerSettings{
		OperationTimeout:     5 * time.Second,
		MaxRetries:           5,
		RetryInitialInterval: 20 * time.Millisecond,
	}
}

// LedgerService is the only writer of balances and movements.
type LedgerService struct {
	uow        domain.UnitOfWork
	aggregator domain.ReimbursementAggregator
	locks      *concurrent.KeyMutex[domain.BalanceKey]
	breaker    *circuitbreaker.CircuitBreaker
	settings   LedgerSettings
	logger     logger.Logger
}

func NewLedgerService(
	uow domain.UnitOfWork,
	aggregator domain.ReimbursementAggregator,
	locks *concurrent.KeyMutex[domain.BalanceKey],
	breaker *circuitbreaker.CircuitBreaker,
	settings LedgerSettings,
	logger logger.Logger,
) domain.LedgerService {
	return &LedgerService{
		uow:        uow,
		aggregator: aggregator,
		locks:      locks,
		breaker:    breaker,
		settings:   settings,
		logger:     logger,
	}
}

type mutation struct {
	op          domain.OperationType
	key         domain.BalanceKey
	amount      decimal.Decimal
	description string
	delta       domain.BalanceDelta
	usageTxID   *int64
	link        func(reimbursementID *int64) domain.Link
}

func (s *LedgerService) Credit(ctx context.Context, req domain.CreditRequest) (*domain.MutationResult, error) {
	amount, err := req.Validate()
	if err != nil {
		return s.reject(ctx, domain.OperationCredit, req.CustomerID, req.StoreID, err)
	}

	return s.execute(ctx, mutation{
		op:          domain.OperationCredit,
		key:         domain.BalanceKey{CustomerID: req.CustomerID, StoreID: req.StoreID},
		amount:      amount,
		description: req.Description,
		delta:       domain.BalanceDelta{CustomerID: req.CustomerID, StoreID: req.StoreID, CreditedDelta: amount},
		link: func(*int64) domain.Link {
			return domain.CreditLink{OriginTransactionID: req.OriginTransactionID}
		},
	})
}

func (s *LedgerService) Debit(ctx context.Context, req domain.DebitRequest) (*domain.MutationResult, error) {
	amount, err := req.Validate()
	if err != nil {
		return s.reject(ctx, domain.OperationDebit, req.CustomerID, req.StoreID, err)
	}

	return s.execute(ctx, mutation{
		op:          domain.OperationDebit,
		key:         domain.BalanceKey{CustomerID: req.CustomerID, StoreID: req.StoreID},
		amount:      amount,
		description: req.Description,
		delta:       domain.BalanceDelta{CustomerID: req.CustomerID, StoreID: req.StoreID, UsedDelta: amount},
		usageTxID:   req.UsageTransactionID,
		link: func(reimbursementID *int64) domain.Link {
			return domain.DebitLink{UsageTransactionID: req.UsageTransactionID, ReimbursementID: reimbursementID}
		},
	})
}

// Refund restores balance spent by a debit. It lowers TotalUsed and leaves
// any reimbursement obligation untouched.
func (s *LedgerService) Refund(ctx context.Context, req domain.RefundRequest) (*domain.MutationResult, error) {
	amount, err := req.Validate()
	if err != nil {
		return s.reject(ctx, domain.OperationRefund, req.CustomerID, req.StoreID, err)
	}

	return s.execute(ctx, mutation{
		op:          domain.OperationRefund,
		key:         domain.BalanceKey{CustomerID: req.CustomerID, StoreID: req.StoreID},
		amount:      amount,
		description: req.Description,
		delta:       domain.BalanceDelta{CustomerID: req.CustomerID, StoreID: req.StoreID, UsedDelta: amount.Neg()},
		link: func(*int64) domain.Link {
			return domain.RefundLink{RelatedTransactionID: req.RelatedTransactionID}
		},
	})
}

func (s *LedgerService) reject(ctx context.Context, op domain.OperationType, customerID, storeID int64, err error) (*domain.MutationResult, error) {
	metrics.RecordLedgerOperation(string(op), outcomeLabel(err), 0)
	s.logger.InfoContext(ctx, "Ledger operation rejected", map[string]interface{}{
		"operation":   op,
		"customer_id": customerID,
		"store_id":    storeID,
		"reason":      err.Error(),
	})
	return nil, err
}

func (s *LedgerService) execute(ctx context.Context, m mutation) (result *domain.MutationResult, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "ledger."+string(m.op),
		attribute.Int64("customer_id", m.key.CustomerID),
		attribute.Int64("store_id", m.key.StoreID),
		attribute.String("amount", m.amount.String()),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.settings.OperationTimeout)
	defer cancel()

	defer func() {
		metrics.RecordLedgerOperation(string(m.op), outcomeLabel(err), time.Since(start))
		if err != nil && !domain.IsBusinessError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	unlock, err := s.locks.Lock(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for balance lock: %w", domain.ErrStorageUnavailable, err)
	}
	defer unlock()

	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.RecordLedgerRetry(string(m.op))
		}

		err := guard(s.breaker, func() error {
			r, err := s.apply(ctx, m)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil && !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.Retry(operation, s.newBackOff(ctx))
	if err != nil {
		return nil, s.finalError(ctx, m, attempt, err)
	}

	fields := map[string]interface{}{
		"operation":     m.op,
		"customer_id":   m.key.CustomerID,
		"store_id":      m.key.StoreID,
		"amount":        m.amount.String(),
		"balance_after": result.Balance.Available.String(),
		"attempts":      attempt,
	}
	if result.Obligation != nil && result.Obligation.ReimbursementID != nil {
		fields["reimbursement_id"] = *result.Obligation.ReimbursementID
	}
	s.logger.InfoContext(ctx, "Ledger operation committed", fields)

	return result, nil
}

func (s *LedgerService) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.settings.RetryInitialInterval
	eb.MaxInterval = 50 * s.settings.RetryInitialInterval
	eb.MaxElapsedTime = s.settings.OperationTimeout
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.settings.MaxRetries)), ctx)
}

func (s *LedgerService) finalError(ctx context.Context, m mutation, attempts int, err error) error {
	fields := map[string]interface{}{
		"operation":   m.op,
		"customer_id": m.key.CustomerID,
		"store_id":    m.key.StoreID,
		"amount":      m.amount.String(),
		"attempts":    attempts,
		"error":       err.Error(),
	}

	switch {
	case domain.IsBusinessError(err):
		s.logger.InfoContext(ctx, "Ledger operation rejected", fields)
		return err
	case errors.Is(err, domain.ErrCommitOutcomeUnknown):
		fields["reconcile_needed"] = true
		s.logger.ErrorContext(ctx, "Ledger commit outcome unknown, not retrying", fields)
		return classify(err)
	case errors.Is(err, domain.ErrConcurrentModification):
		s.logger.ErrorContext(ctx, "Ledger operation exhausted concurrency retries", fields)
		return fmt.Errorf("%w: %w", domain.ErrConcurrentModificationRetryExceeded, err)
	default:
		s.logger.ErrorContext(ctx, "Ledger operation failed", fields)
		return classify(err)
	}
}

// apply runs one attempt in a single transaction. The reimbursement and
// movement writes each sit in their own savepoint so that their failure
// never undoes the balance change.
func (s *LedgerService) apply(ctx context.Context, m mutation) (*domain.MutationResult, error) {
	var result *domain.MutationResult

	err := s.uow.WithTx(ctx, func(scope domain.Scope) error {
		before, after, err := scope.Balances().ApplyDelta(ctx, m.delta)
		if err != nil {
			return err
		}

		res := &domain.MutationResult{Balance: after}

		var reimbursementID *int64
		if m.op == domain.OperationDebit {
			res.Obligation = s.recordReimbursement(ctx, scope, m)
			reimbursementID = res.Obligation.ReimbursementID
		}

		movement := &domain.Movement{
			CustomerID:    m.key.CustomerID,
			StoreID:       m.key.StoreID,
			Amount:        m.amount,
			BalanceBefore: before.Available,
			BalanceAfter:  after.Available,
			Description:   m.description,
			OccurredAt:    after.LastUpdated,
			Link:          m.link(reimbursementID),
		}

		err = scope.Savepoint(ctx, savepointMovement, func() error {
			return scope.Movements().Append(ctx, movement)
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			metrics.RecordMovementAppendFailure()
			s.logger.ErrorContext(ctx, "Movement append failed, balance committed without audit entry", map[string]interface{}{
				"operation":        m.op,
				"customer_id":      m.key.CustomerID,
				"store_id":         m.key.StoreID,
				"amount":           m.amount.String(),
				"balance_before":   before.Available.String(),
				"balance_after":    after.Available.String(),
				"reconcile_needed": true,
				"error":            err.Error(),
			})
			movement.ID = 0
		} else {
			res.MovementRecorded = true
		}
		res.Movement = movement

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LedgerService) recordReimbursement(ctx context.Context, scope domain.Scope, m mutation) *domain.ObligationOutcome {
	outcome := &domain.ObligationOutcome{}

	err := scope.Savepoint(ctx, savepointReimbursement, func() error {
		id, err := s.aggregator.RecordDebitReimbursement(ctx, scope, m.key.StoreID, m.amount, m.usageTxID, m.key.CustomerID)
		if err != nil {
			return err
		}
		outcome.ReimbursementID = &id
		return nil
	})
	if err != nil {
		outcome.ReimbursementID = nil
		outcome.Err = err
		metrics.RecordReimbursementFailure()
		s.logger.WarnContext(ctx, "Reimbursement obligation not recorded, debit proceeds", map[string]interface{}{
			"customer_id": m.key.CustomerID,
			"store_id":    m.key.StoreID,
			"amount":      m.amount.String(),
			"error":       err.Error(),
		})
	}

	return outcome
}
