package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestStore_WithTxCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	err := store.WithTx(ctx, func(s domain.Scope) error {
		_, _, err := s.Balances().ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, CreditedDelta: dec("50")})
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(s domain.Scope) error {
		if _, _, err := s.Balances().ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, UsedDelta: dec("20")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	available, err := store.Balances().Get(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("50")), "got %s", available)
}

func TestStore_SavepointIsolatesFailure(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	err := store.WithTx(ctx, func(s domain.Scope) error {
		if _, _, err := s.Balances().ApplyDelta(ctx, domain.BalanceDelta{CustomerID: 1, StoreID: 5, CreditedDelta: dec("10")}); err != nil {
			return err
		}

		spErr := s.Savepoint(ctx, "reimbursement", func() error {
			_, err := s.Reimbursements().Create(ctx, &domain.ReimbursementObligation{
				StoreID:       5,
				TotalAmount:   dec("10"),
				PaymentMethod: domain.PaymentMethodCashbackRedemption,
			})
			if err != nil {
				return err
			}
			return errors.New("aggregation failed")
		})
		assert.Error(t, spErr)
		return nil
	})
	require.NoError(t, err)

	available, err := store.Balances().Get(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("10")))

	pending, err := store.Reimbursements().ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_WithTxHonoursCancelledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	err := store.WithTx(ctx, func(s domain.Scope) error { return nil })
	assert.Error(t, err)
}

func TestStore_SavepointRejectsBadName(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	err := store.WithTx(ctx, func(s domain.Scope) error {
		return s.Savepoint(ctx, "x; DROP TABLE balances", func() error { return nil })
	})
	assert.Error(t, err)
}

func TestCommitError_MarksAmbiguousFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		ambiguous bool
	}{
		{"bad connection", driver.ErrBadConn, true},
		{"disk full", errors.New("database or disk is full"), true},
		{"cancelled before commit", context.Canceled, false},
		{"deadline before commit", context.DeadlineExceeded, false},
		{"already rolled back", sql.ErrTxDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := commitError(tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.ambiguous, errors.Is(err, domain.ErrCommitOutcomeUnknown))
		})
	}
}
