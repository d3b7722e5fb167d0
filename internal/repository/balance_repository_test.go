package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestBalanceRepository_GetMissingIsZero(t *testing.T) {
	store, _ := newTestStore(t)

	available, err := store.Balances().Get(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.True(t, available.IsZero())

	record, err := store.Balances().Find(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestBalanceRepository_ApplyDelta(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	repo := store.Balances()

	before, after, err := repo.ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, CreditedDelta: dec("50.00")})
	require.NoError(t, err)
	assert.True(t, before.Available.IsZero())
	assert.True(t, after.Available.Equal(dec("50")))
	assert.Equal(t, int64(1), after.Version)

	_, after, err = repo.ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, UsedDelta: dec("30")})
	require.NoError(t, err)
	assert.True(t, after.Available.Equal(dec("20")))
	assert.True(t, after.TotalUsed.Equal(dec("30")))
	assert.Equal(t, int64(2), after.Version)

	_, _, err = repo.ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, UsedDelta: dec("25")})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	record, err := repo.Find(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, record.Available.Equal(dec("20")))
	assert.Equal(t, int64(2), record.Version)
	assert.NoError(t, record.Validate())
}

func TestBalanceRepository_DebitOnMissingRecordDoesNotCreateIt(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, _, err := store.Balances().ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 3, StoreID: 3, UsedDelta: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	record, err := store.Balances().Find(ctx, 3, 3)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestBalanceRepository_OverwriteDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	repo := store.Balances()

	_, after, err := repo.ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, CreditedDelta: dec("10")})
	require.NoError(t, err)

	stale := after
	_, err = repo.Overwrite(ctx, stale, after.Version-1)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	_, err = repo.Overwrite(ctx, domain.NewBalanceRecord(1, 5), 0)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	fixed := after
	fixed.TotalCredited = dec("12")
	fixed.Available = dec("12")
	written, err := repo.Overwrite(ctx, fixed, after.Version)
	require.NoError(t, err)
	assert.Equal(t, after.Version+1, written.Version)
}

func TestBalanceRepository_GetAllAndListKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Stores().Upsert(ctx, &domain.StoreProfile{StoreID: 5, Name: "Partner", PartnerProgram: true}))
	require.NoError(t, store.Stores().Upsert(ctx, &domain.StoreProfile{StoreID: 6, Name: "Regular"}))

	for _, storeID := range []int64{5, 6, 7} {
		_, _, err := store.Balances().ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: storeID, CreditedDelta: dec("5")})
		require.NoError(t, err)
	}
	_, _, err := store.Balances().ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 2, StoreID: 5, CreditedDelta: dec("5")})
	require.NoError(t, err)

	all, err := store.Balances().GetAll(ctx, 1, domain.BalanceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Partner", all[0].StoreName)
	assert.True(t, all[0].PartnerProgram)
	assert.Equal(t, "", all[2].StoreName)

	partner, err := store.Balances().GetAll(ctx, 1, domain.BalanceFilter{PartnerProgramOnly: true})
	require.NoError(t, err)
	require.Len(t, partner, 1)
	assert.Equal(t, int64(5), partner[0].StoreID)

	keys, err := store.Balances().ListKeys(ctx, ptr(1))
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = store.Balances().ListKeys(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	customers, err := store.Balances().CustomersByStore(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, customers)

	customers, err = store.Balances().CustomersByStore(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, customers)
}
