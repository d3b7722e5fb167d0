package service

import (
	"context"

	"github.com/shopspring/decimal"

	"cashback/internal/domain"
	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

// CachedBalanceQueryService wraps the query side with read-through caching
type CachedBalanceQueryService struct {
	query        domain.BalanceQuery
	cache        cache.Cache
	cacheManager cache.CacheStrategy
	warmUp       *cache.WarmUpManager
	logger       logger.Logger
}

// NewCachedBalanceQueryService creates a cached query side. warmUp may be
// nil, in which case repaired customers are only invalidated.
func NewCachedBalanceQueryService(
	query domain.BalanceQuery,
	cacheInstance cache.Cache,
	cacheManager cache.CacheStrategy,
	warmUp *cache.WarmUpManager,
	logger logger.Logger,
) domain.BalanceQuery {
	return &CachedBalanceQueryService{
		query:        query,
		cache:        cacheInstance,
		cacheManager: cacheManager,
		warmUp:       warmUp,
		logger:       logger,
	}
}

func (s *CachedBalanceQueryService) GetStoreBalance(ctx context.Context, customerID, storeID int64) (decimal.Decimal, error) {
	key := cache.StoreBalanceCacheKey(customerID, storeID)

	var (
		amount    decimal.Decimal
		sourceErr error
	)
	err := s.cacheManager.ReadThrough(ctx, key, &amount, func() (interface{}, error) {
		v, err := s.query.GetStoreBalance(ctx, customerID, storeID)
		sourceErr = err
		return v, err
	}, cache.MediumExpiration)

	if sourceErr != nil {
		return decimal.Zero, sourceErr
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Cache read-through error for store balance", map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
		// Fallback to direct service call
		return s.query.GetStoreBalance(ctx, customerID, storeID)
	}

	return amount, nil
}

func (s *CachedBalanceQueryService) GetAllBalances(ctx context.Context, customerID int64, filter domain.BalanceFilter) ([]domain.BalanceView, error) {
	key := cache.CustomerBalancesCacheKey(customerID, filter.PartnerProgramOnly, filter.IncludeZero)

	var (
		views     []domain.BalanceView
		sourceErr error
	)
	err := s.cacheManager.ReadThrough(ctx, key, &views, func() (interface{}, error) {
		v, err := s.query.GetAllBalances(ctx, customerID, filter)
		sourceErr = err
		return v, err
	}, cache.MediumExpiration)

	if sourceErr != nil {
		return nil, sourceErr
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Cache read-through error for customer balances", map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		})
		return s.query.GetAllBalances(ctx, customerID, filter)
	}

	return views, nil
}

// GetMovementHistory is not cached; pages shift with every movement.
func (s *CachedBalanceQueryService) GetMovementHistory(ctx context.Context, customerID, storeID int64, page, pageSize int) (*domain.MovementPage, error) {
	return s.query.GetMovementHistory(ctx, customerID, storeID, page, pageSize)
}

func (s *CachedBalanceQueryService) GetStatistics(ctx context.Context, customerID, storeID int64) (*domain.Statistics, error) {
	key := cache.StatisticsCacheKey(customerID, storeID)

	var (
		stats     *domain.Statistics
		sourceErr error
	)
	err := s.cacheManager.ReadThrough(ctx, key, &stats, func() (interface{}, error) {
		v, err := s.query.GetStatistics(ctx, customerID, storeID)
		sourceErr = err
		return v, err
	}, cache.ShortExpiration)

	if sourceErr != nil {
		return nil, sourceErr
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Cache read-through error for statistics", map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
		return s.query.GetStatistics(ctx, customerID, storeID)
	}

	return stats, nil
}

func (s *CachedBalanceQueryService) Reconcile(ctx context.Context, customerID *int64) (*domain.ReconcileReport, error) {
	report, err := s.query.Reconcile(ctx, customerID)
	if err != nil {
		return nil, err
	}

	repaired := make(map[int64]struct{})
	for _, r := range report.Results {
		if !r.Repaired {
			continue
		}
		if cacheErr := cache.InvalidateBalanceCache(ctx, s.cache, r.Key.CustomerID, r.Key.StoreID); cacheErr != nil {
			s.logger.ErrorContext(ctx, "Error invalidating balance cache after reconcile", map[string]interface{}{
				"customer_id": r.Key.CustomerID,
				"store_id":    r.Key.StoreID,
				"error":       cacheErr.Error(),
			})
		}
		repaired[r.Key.CustomerID] = struct{}{}
	}

	if s.warmUp != nil && len(repaired) > 0 {
		ids := make([]int64, 0, len(repaired))
		for id := range repaired {
			ids = append(ids, id)
		}
		s.warmUp.WarmUpCustomers(ctx, ids)
	}

	return report, nil
}

func (s *CachedBalanceQueryService) DetectDrift(ctx context.Context, customerID *int64) (*domain.ReconcileReport, error) {
	return s.query.DetectDrift(ctx, customerID)
}
