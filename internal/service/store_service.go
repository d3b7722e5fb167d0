package service

import (
	"context"
	"fmt"
	"strings"

	"cashback/internal/domain"
	"cashback/pkg/circuitbreaker"
	"cashback/pkg/logger"
)

type StoreService struct {
	repo    domain.StoreRepository
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

func NewStoreService(repo domain.StoreRepository, breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) domain.StoreService {
	return &StoreService{
		repo:    repo,
		breaker: breaker,
		logger:  logger,
	}
}

func (s *StoreService) RegisterStore(ctx context.Context, store *domain.StoreProfile) (*domain.StoreProfile, error) {
	if store == nil || store.StoreID <= 0 {
		return nil, fmt.Errorf("%w: store id must be positive", domain.ErrInvalidIdentifier)
	}
	store.Name = strings.TrimSpace(store.Name)

	err := guard(s.breaker, func() error {
		return s.repo.Upsert(ctx, store)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to register store", map[string]interface{}{
			"store_id": store.StoreID,
			"error":    err.Error(),
		})
		return nil, err
	}

	s.logger.InfoContext(ctx, "Store registered", map[string]interface{}{
		"store_id":        store.StoreID,
		"partner_program": store.PartnerProgram,
	})
	return store, nil
}

func (s *StoreService) GetStore(ctx context.Context, storeID int64) (*domain.StoreProfile, error) {
	var store *domain.StoreProfile
	err := guard(s.breaker, func() error {
		var err error
		store, err = s.repo.FindByID(ctx, storeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: id=%d", domain.ErrStoreNotFound, storeID)
	}
	return store, nil
}
