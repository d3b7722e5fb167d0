package service

import (
	"context"

	"cashback/internal/domain"
	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

// CachedLedgerService invalidates read projections after every committed
// mutation.
type CachedLedgerService struct {
	ledger domain.LedgerService
	cache  cache.Cache
	logger logger.Logger
}

func NewCachedLedgerService(ledger domain.LedgerService, cacheInstance cache.Cache, logger logger.Logger) domain.LedgerService {
	return &CachedLedgerService{
		ledger: ledger,
		cache:  cacheInstance,
		logger: logger,
	}
}

func (s *CachedLedgerService) Credit(ctx context.Context, req domain.CreditRequest) (*domain.MutationResult, error) {
	result, err := s.ledger.Credit(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, req.CustomerID, req.StoreID, "credit")
	return result, nil
}

func (s *CachedLedgerService) Debit(ctx context.Context, req domain.DebitRequest) (*domain.MutationResult, error) {
	result, err := s.ledger.Debit(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, req.CustomerID, req.StoreID, "debit")
	return result, nil
}

func (s *CachedLedgerService) Refund(ctx context.Context, req domain.RefundRequest) (*domain.MutationResult, error) {
	result, err := s.ledger.Refund(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, req.CustomerID, req.StoreID, "refund")
	return result, nil
}

func (s *CachedLedgerService) invalidate(ctx context.Context, customerID, storeID int64, op string) {
	// the operation context may be close to its deadline; invalidation must still run
	ctx = context.WithoutCancel(ctx)
	if err := cache.InvalidateBalanceCache(ctx, s.cache, customerID, storeID); err != nil {
		s.logger.ErrorContext(ctx, "Error invalidating balance cache after "+op, map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
	}
}
