package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cashback/pkg/logger"
	"cashback/pkg/metrics"
)

const (
	BalancePrefix       = "balance"
	StoreBalanceKey     = "balance:customer:%d:store:%d"
	CustomerBalancesKey = "balance:customer:%d:all:%t:%t"
	StatisticsKey       = "statistics:customer:%d:store:%d"
)

const (
	ShortExpiration  = 5 * time.Minute
	MediumExpiration = 30 * time.Minute
	LongExpiration   = 2 * time.Hour
)

// CacheStrategy defines the caching patterns used by the read side.
type CacheStrategy interface {
	// ReadThrough checks the cache first; on a miss it fetches from the
	// source and stores the result.
	ReadThrough(ctx context.Context, key string, dest interface{}, fetchFunc func() (interface{}, error), expiration time.Duration) error
}

type CacheManager struct {
	cache  Cache
	logger logger.Logger
}

func NewCacheManager(cache Cache, logger logger.Logger) CacheStrategy {
	return &CacheManager{
		cache:  cache,
		logger: logger,
	}
}

func (cm *CacheManager) ReadThrough(ctx context.Context, key string, dest interface{}, fetchFunc func() (interface{}, error), expiration time.Duration) error {
	err := cm.cache.Get(ctx, key, dest)
	if err == nil {
		metrics.RecordCacheHit()
		return nil
	}

	metrics.RecordCacheMiss()
	if !errors.Is(err, ErrCacheMiss) {
		// fall through to the source, a broken cache must not fail reads
		cm.logger.Warn("Cache error in read-through", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	data, err := fetchFunc()
	if err != nil {
		return err
	}

	if err := cm.cache.Set(ctx, key, data, expiration); err != nil {
		cm.logger.Warn("Cache set error in read-through", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	return copyData(data, dest)
}

func StoreBalanceCacheKey(customerID, storeID int64) string {
	return fmt.Sprintf(StoreBalanceKey, customerID, storeID)
}

func CustomerBalancesCacheKey(customerID int64, partnerOnly, includeZero bool) string {
	return fmt.Sprintf(CustomerBalancesKey, customerID, partnerOnly, includeZero)
}

func StatisticsCacheKey(customerID, storeID int64) string {
	return fmt.Sprintf(StatisticsKey, customerID, storeID)
}

// InvalidateBalanceCache drops every read projection touched by a
// mutation of the (customer, store) balance.
func InvalidateBalanceCache(ctx context.Context, cache Cache, customerID, storeID int64) error {
	keys := []string{
		StoreBalanceCacheKey(customerID, storeID),
		StatisticsCacheKey(customerID, storeID),
	}
	for _, partnerOnly := range []bool{false, true} {
		for _, includeZero := range []bool{false, true} {
			keys = append(keys, CustomerBalancesCacheKey(customerID, partnerOnly, includeZero))
		}
	}
	return cache.DeleteMultiple(ctx, keys)
}

// InvalidateCustomerBalancesCache drops the dashboard projections of the
// given customers, used when a store profile they hold a balance at changes.
func InvalidateCustomerBalancesCache(ctx context.Context, cache Cache, customerIDs []int64) error {
	if len(customerIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(customerIDs)*4)
	for _, customerID := range customerIDs {
		for _, partnerOnly := range []bool{false, true} {
			for _, includeZero := range []bool{false, true} {
				keys = append(keys, CustomerBalancesCacheKey(customerID, partnerOnly, includeZero))
			}
		}
	}
	return cache.DeleteMultiple(ctx, keys)
}

func copyData(src, dest interface{}) error {
	switch d := dest.(type) {
	case *interface{}:
		*d = src
		return nil
	default:
		data, err := json.Marshal(src)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, dest)
	}
}
