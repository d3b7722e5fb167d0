package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cashback/internal/domain"
	"cashback/pkg/circuitbreaker"
	"cashback/pkg/logger"
)

// aggregateAttempts bounds the find-or-create loop when a concurrent
// writer creates or settles the pending obligation between steps.
const aggregateAttempts = 3

type ReimbursementService struct {
	uow      domain.UnitOfWork
	auditLog domain.AuditLogService
	breaker  *circuitbreaker.CircuitBreaker
	logger   logger.Logger
	now      func() time.Time
}

func NewReimbursementService(
	uow domain.UnitOfWork,
	auditLog domain.AuditLogService,
	breaker *circuitbreaker.CircuitBreaker,
	logger logger.Logger,
) domain.ReimbursementService {
	return &ReimbursementService{
		uow:      uow,
		auditLog: auditLog,
		breaker:  breaker,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordDebitReimbursement adds amount to the store's pending obligation,
// creating one when none is pending, and returns its id. It writes through
// scope so the caller's transaction owns the change.
func (s *ReimbursementService) RecordDebitReimbursement(
	ctx context.Context,
	scope domain.Scope,
	storeID int64,
	amount decimal.Decimal,
	usageTransactionID *int64,
	customerID int64,
) (int64, error) {
	amount, err := domain.ValidateAmount(amount)
	if err != nil {
		return 0, err
	}

	repo := scope.Reimbursements()
	noteLine := domain.ReimbursementNoteLine(amount, usageTransactionID, customerID)

	for attempt := 1; attempt <= aggregateAttempts; attempt++ {
		pending, err := repo.FindLatestPending(ctx, storeID)
		if err != nil {
			return 0, err
		}

		if pending != nil {
			err = repo.AddAmount(ctx, pending.ID, amount, noteLine, s.now())
			if errors.Is(err, domain.ErrObligationNotPending) {
				continue
			}
			if err != nil {
				return 0, err
			}

			s.logger.DebugContext(ctx, "Debit added to pending reimbursement", map[string]interface{}{
				"reimbursement_id": pending.ID,
				"store_id":         storeID,
				"amount":           amount.String(),
			})
			return pending.ID, nil
		}

		obligation := &domain.ReimbursementObligation{
			StoreID:       storeID,
			TotalAmount:   amount,
			PaymentMethod: domain.PaymentMethodCashbackRedemption,
			Note:          noteLine,
			Status:        domain.ObligationStatusPending,
		}
		created, err := repo.Create(ctx, obligation)
		if err != nil {
			return 0, err
		}
		if !created {
			continue
		}

		s.logger.InfoContext(ctx, "Reimbursement obligation opened", map[string]interface{}{
			"reimbursement_id": obligation.ID,
			"store_id":         storeID,
			"amount":           amount.String(),
		})
		return obligation.ID, nil
	}

	return 0, fmt.Errorf("%w: pending reimbursement for store %d kept changing", domain.ErrConcurrentModification, storeID)
}

func (s *ReimbursementService) ListPending(ctx context.Context, storeID *int64) ([]*domain.ReimbursementObligation, error) {
	var obligations []*domain.ReimbursementObligation
	err := guard(s.breaker, func() error {
		var err error
		obligations, err = s.uow.Reimbursements().ListPending(ctx, storeID)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list pending reimbursements", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return obligations, nil
}

func (s *ReimbursementService) Get(ctx context.Context, id int64) (*domain.ReimbursementDetail, error) {
	var detail *domain.ReimbursementDetail
	err := guard(s.breaker, func() error {
		obligation, err := s.uow.Reimbursements().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if obligation == nil {
			return fmt.Errorf("%w: id=%d", domain.ErrObligationNotFound, id)
		}

		movements, err := s.uow.Movements().QueryByReimbursement(ctx, id)
		if err != nil {
			return err
		}

		detail = &domain.ReimbursementDetail{Obligation: obligation, Movements: movements}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// MarkSettled closes a pending obligation. The next debit at the store
// opens a new one.
func (s *ReimbursementService) MarkSettled(ctx context.Context, id int64) (*domain.ReimbursementObligation, error) {
	var settled *domain.ReimbursementObligation
	err := guard(s.breaker, func() error {
		return s.uow.WithTx(ctx, func(scope domain.Scope) error {
			repo := scope.Reimbursements()

			obligation, err := repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if obligation == nil {
				return fmt.Errorf("%w: id=%d", domain.ErrObligationNotFound, id)
			}

			ok, err := repo.MarkSettled(ctx, id, s.now())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: id=%d status=%s", domain.ErrObligationNotPending, id, obligation.Status)
			}

			settled, err = repo.FindByID(ctx, id)
			return err
		})
	})
	if err != nil {
		if domain.IsBusinessError(err) {
			s.logger.InfoContext(ctx, "Reimbursement settlement rejected", map[string]interface{}{
				"reimbursement_id": id,
				"reason":           err.Error(),
			})
		} else {
			s.logger.ErrorContext(ctx, "Failed to settle reimbursement", map[string]interface{}{
				"reimbursement_id": id,
				"error":            err.Error(),
			})
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "Reimbursement settled", map[string]interface{}{
		"reimbursement_id": id,
		"store_id":         settled.StoreID,
		"total_amount":     settled.TotalAmount.String(),
	})

	if s.auditLog != nil {
		details := fmt.Sprintf("store=%d total=%s", settled.StoreID, settled.TotalAmount.StringFixed(domain.MoneyScale))
		if err := s.auditLog.LogAction(ctx, domain.EntityTypeReimbursement, id, domain.ActionTypeSettle, details); err != nil {
			s.logger.WarnContext(ctx, "Settlement audit log not written", map[string]interface{}{
				"reimbursement_id": id,
				"error":            err.Error(),
			})
		}
	}

	return settled, nil
}
