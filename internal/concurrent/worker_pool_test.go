package concurrent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

func newEvent(id string, t domain.EventType) *domain.LedgerEvent {
	return &domain.LedgerEvent{ID: id, Type: t, CustomerID: 1, StoreID: 1, Amount: decimal.NewFromInt(1)}
}

func TestWorkerPool_ProcessesAndDrainsOnStop(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	pool := NewWorkerPool(2, 10, func(ctx context.Context, e *domain.LedgerEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen[e.ID] = true
		if e.ID == "bad" {
			return errors.New("rejected")
		}
		return nil
	}, logger.Nop())

	assert.False(t, pool.Submit(newEvent("early", domain.EventTypePurchaseApproved)))

	pool.Start()
	require.True(t, pool.Submit(newEvent("a", domain.EventTypePurchaseApproved)))
	require.True(t, pool.Submit(newEvent("b", domain.EventTypeBalanceRedeemed)))
	require.True(t, pool.Submit(newEvent("bad", domain.EventTypePurchaseCancelled)))
	pool.Stop()

	assert.False(t, pool.Submit(newEvent("late", domain.EventTypePurchaseApproved)))

	stats := pool.GetStats()
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.CompletedByType[domain.EventTypeBalanceRedeemed])
	assert.Len(t, seen, 3)
}

func TestWorkerPool_RejectsWhenQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	pool := NewWorkerPool(1, 1, func(ctx context.Context, e *domain.LedgerEvent) error {
		started <- struct{}{}
		<-release
		return nil
	}, logger.Nop())
	pool.Start()

	require.True(t, pool.Submit(newEvent("1", domain.EventTypePurchaseApproved)))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up the first event")
	}
	require.True(t, pool.Submit(newEvent("2", domain.EventTypePurchaseApproved)))
	assert.False(t, pool.Submit(newEvent("3", domain.EventTypePurchaseApproved)))

	close(release)
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(2), stats.Completed)
}

func TestWorkerPool_BusinessRejectionsAreDeclined(t *testing.T) {
	var logs bytes.Buffer
	pool := NewWorkerPool(1, 4, func(ctx context.Context, e *domain.LedgerEvent) error {
		if e.ID == "broken" {
			return errors.New("disk I/O error")
		}
		return fmt.Errorf("event %s: %w: available 0, requested 10", e.ID, domain.ErrInsufficientBalance)
	}, logger.NewForEnv(logger.InfoLevel, &logs, "test"))

	pool.Start()
	require.True(t, pool.Submit(newEvent("redeem", domain.EventTypeBalanceRedeemed)))
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.Declined)
	assert.Zero(t, stats.Failed)
	assert.Contains(t, logs.String(), `"message":"Event declined"`)
	assert.NotContains(t, logs.String(), `"level":"error"`)

	logs.Reset()
	pool = NewWorkerPool(1, 4, pool.processor, logger.NewForEnv(logger.InfoLevel, &logs, "test"))
	pool.Start()
	require.True(t, pool.Submit(newEvent("broken", domain.EventTypePurchaseApproved)))
	pool.Stop()

	stats = pool.GetStats()
	assert.Zero(t, stats.Declined)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Contains(t, logs.String(), `"level":"error"`)
}
