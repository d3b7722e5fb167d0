package cache

import (
	"context"
	"fmt"
	"sync"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

// WarmUpManager preloads customer balance projections, typically right
// after a reconcile rewrote them.
type WarmUpManager struct {
	cache       Cache
	logger      logger.Logger
	source      domain.BalanceQuery
	concurrency int
}

// NewWarmUpManager takes the uncached query side as source.
func NewWarmUpManager(cache Cache, logger logger.Logger, source domain.BalanceQuery, concurrency int) *WarmUpManager {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &WarmUpManager{
		cache:       cache,
		logger:      logger,
		source:      source,
		concurrency: concurrency,
	}
}

// WarmUpCustomer caches the default dashboard and every per-store balance
// listed in it.
func (w *WarmUpManager) WarmUpCustomer(ctx context.Context, customerID int64) error {
	views, err := w.source.GetAllBalances(ctx, customerID, domain.BalanceFilter{})
	if err != nil {
		return fmt.Errorf("balance dashboard warm-up failed: %w", err)
	}
	if err := w.cache.Set(ctx, CustomerBalancesCacheKey(customerID, false, false), views, MediumExpiration); err != nil {
		return fmt.Errorf("balance dashboard warm-up failed: %w", err)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(views))

	for _, view := range views {
		wg.Add(1)
		go func(storeID int64) {
			defer wg.Done()
			if err := w.warmUpStoreBalance(ctx, customerID, storeID); err != nil {
				errChan <- fmt.Errorf("store balance warm-up failed: %w", err)
			}
		}(view.StoreID)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		w.logger.Error("Warm-up error", map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		})
		return err
	}

	w.logger.Debug("Customer warm-up completed", map[string]interface{}{
		"customer_id": customerID,
		"stores":      len(views),
	})
	return nil
}

// WarmUpCustomers warms several customers with bounded parallelism. Errors
// are logged per customer and do not stop the others.
func (w *WarmUpManager) WarmUpCustomers(ctx context.Context, customerIDs []int64) {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, w.concurrency)

	for _, id := range customerIDs {
		wg.Add(1)
		go func(customerID int64) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			if err := w.WarmUpCustomer(ctx, customerID); err != nil {
				w.logger.Warn("Customer warm-up failed", map[string]interface{}{
					"customer_id": customerID,
					"error":       err.Error(),
				})
			}
		}(id)
	}

	wg.Wait()
	w.logger.Info("Customer warm-up finished", map[string]interface{}{"customers": len(customerIDs)})
}

func (w *WarmUpManager) warmUpStoreBalance(ctx context.Context, customerID, storeID int64) error {
	amount, err := w.source.GetStoreBalance(ctx, customerID, storeID)
	if err != nil {
		return err
	}
	return w.cache.Set(ctx, StoreBalanceCacheKey(customerID, storeID), amount, MediumExpiration)
}
