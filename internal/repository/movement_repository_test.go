package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestMovementRepository_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	repo := store.Movements()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	movements := []*domain.Movement{
		{CustomerID: 1, StoreID: 5, Amount: dec("50"), BalanceBefore: dec("0"), BalanceAfter: dec("50"),
			Description: "reward", OccurredAt: base, Link: domain.CreditLink{OriginTransactionID: ptr(100)}},
		{CustomerID: 1, StoreID: 5, Amount: dec("30"), BalanceBefore: dec("50"), BalanceAfter: dec("20"),
			OccurredAt: base.Add(time.Minute), Link: domain.DebitLink{UsageTransactionID: ptr(101), ReimbursementID: ptr(9)}},
		{CustomerID: 1, StoreID: 5, Amount: dec("30"), BalanceBefore: dec("20"), BalanceAfter: dec("50"),
			OccurredAt: base.Add(2 * time.Minute), Link: domain.RefundLink{RelatedTransactionID: ptr(101)}},
	}
	for _, m := range movements {
		require.NoError(t, repo.Append(ctx, m))
		assert.NotZero(t, m.ID)
	}

	page, err := repo.Query(ctx, 1, 5, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, domain.OperationRefund, page[0].Type())
	assert.Equal(t, domain.OperationDebit, page[1].Type())
	assert.Equal(t, int64(9), *page[1].ReimbursementID())

	count, err := repo.Count(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	all, err := repo.All(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.OperationCredit, all[0].Type())
	assert.Equal(t, int64(100), *all[0].OriginTransactionID())
	assert.True(t, all[0].OccurredAt.Equal(base))

	linked, err := repo.QueryByReimbursement(ctx, 9)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, movements[1].ID, linked[0].ID)
}

func TestMovementRepository_AppendRejectsInconsistentMovement(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Movements().Append(context.Background(), &domain.Movement{
		CustomerID: 1, StoreID: 5, Amount: dec("10"), BalanceBefore: dec("0"), BalanceAfter: dec("20"),
		OccurredAt: time.Now(), Link: domain.CreditLink{},
	})
	assert.Error(t, err)

	count, err := store.Movements().Count(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Zero(t, count)
}
