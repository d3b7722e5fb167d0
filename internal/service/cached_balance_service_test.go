package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

func newCachedHarness(t *testing.T) (*harness, cache.Cache, domain.LedgerService, domain.BalanceQuery) {
	h := newHarness(t)
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	warmUp := cache.NewWarmUpManager(c, logger.Nop(), h.query, 2)
	query := NewCachedBalanceQueryService(h.query, c, cache.NewCacheManager(c, logger.Nop()), warmUp, logger.Nop())
	ledger := NewCachedLedgerService(h.ledger, c, logger.Nop())
	return h, c, ledger, query
}

func TestCachedBalanceQueryService_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	h, c, ledger, query := newCachedHarness(t)

	_, err := ledger.Credit(ctx, domain.CreditRequest{CustomerID: 1, StoreID: 5, Amount: dec("50")})
	require.NoError(t, err)

	amount, err := query.GetStoreBalance(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "50.00", amount.StringFixed(2))

	var cached decimal.Decimal
	require.NoError(t, c.Get(ctx, cache.StoreBalanceCacheKey(1, 5), &cached))
	assert.True(t, cached.Equal(amount))

	views, err := query.GetAllBalances(ctx, 1, domain.BalanceFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)

	_, err = ledger.Debit(ctx, domain.DebitRequest{CustomerID: 1, StoreID: 5, Amount: dec("20")})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Get(ctx, cache.StoreBalanceCacheKey(1, 5), &cached), cache.ErrCacheMiss)
	var cachedViews []domain.BalanceView
	assert.ErrorIs(t, c.Get(ctx, cache.CustomerBalancesCacheKey(1, false, false), &cachedViews), cache.ErrCacheMiss)

	amount, err = query.GetStoreBalance(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "30.00", amount.StringFixed(2))

	stats, err := query.GetStatistics(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.MovementCount)

	h.assertBalance(1, 5, "30.00")
}

func TestCachedBalanceQueryService_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	_, c, _, query := newCachedHarness(t)

	_, err := query.GetStoreBalance(ctx, 0, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	var cached decimal.Decimal
	assert.ErrorIs(t, c.Get(ctx, cache.StoreBalanceCacheKey(0, 5), &cached), cache.ErrCacheMiss)
}

func TestCachedBalanceQueryService_ReconcileRefreshesCache(t *testing.T) {
	ctx := context.Background()
	h, c, ledger, query := newCachedHarness(t)

	_, err := ledger.Credit(ctx, domain.CreditRequest{CustomerID: 1, StoreID: 5, Amount: dec("50")})
	require.NoError(t, err)

	_, err = h.db.Exec(`UPDATE balances SET available = '70.00', total_credited = '70.00' WHERE customer_id = 1 AND store_id = 5`)
	require.NoError(t, err)

	// prime the cache with the drifted value
	amount, err := query.GetStoreBalance(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "70.00", amount.StringFixed(2))

	dry, err := query.DetectDrift(ctx, ptr(1))
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Drifted)

	report, err := query.Reconcile(ctx, ptr(1))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	// warmed with the repaired value
	var cached decimal.Decimal
	require.NoError(t, c.Get(ctx, cache.StoreBalanceCacheKey(1, 5), &cached))
	assert.Equal(t, "50.00", cached.StringFixed(2))

	amount, err = query.GetStoreBalance(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "50.00", amount.StringFixed(2))

	page, err := query.GetMovementHistory(ctx, 1, 5, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}
