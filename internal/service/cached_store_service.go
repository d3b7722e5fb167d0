package service

import (
	"context"

	"cashback/internal/domain"
	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

// CachedStoreService drops the dashboards of every customer holding a
// balance at a store whenever that store's profile is written, since the
// dashboard embeds the name and the partner program flag.
type CachedStoreService struct {
	stores   domain.StoreService
	balances domain.BalanceRepository
	cache    cache.Cache
	logger   logger.Logger
}

func NewCachedStoreService(stores domain.StoreService, balances domain.BalanceRepository, cacheInstance cache.Cache, logger logger.Logger) domain.StoreService {
	return &CachedStoreService{
		stores:   stores,
		balances: balances,
		cache:    cacheInstance,
		logger:   logger,
	}
}

func (s *CachedStoreService) RegisterStore(ctx context.Context, store *domain.StoreProfile) (*domain.StoreProfile, error) {
	registered, err := s.stores.RegisterStore(ctx, store)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	customers, err := s.balances.CustomersByStore(ctx, registered.StoreID)
	if err == nil {
		err = cache.InvalidateCustomerBalancesCache(ctx, s.cache, customers)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error invalidating balance cache after store update", map[string]interface{}{
			"store_id": registered.StoreID,
			"error":    err.Error(),
		})
	}
	return registered, nil
}

func (s *CachedStoreService) GetStore(ctx context.Context, storeID int64) (*domain.StoreProfile, error) {
	return s.stores.GetStore(ctx, storeID)
}
