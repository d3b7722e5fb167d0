package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/concurrent"
	"cashback/internal/database"
	"cashback/internal/domain"
	"cashback/internal/repository"
	"cashback/pkg/logger"
)

type harness struct {
	t              *testing.T
	db             *sql.DB
	store          *repository.Store
	locks          *concurrent.KeyMutex[domain.BalanceKey]
	audit          domain.AuditLogService
	reimbursements domain.ReimbursementService
	ledger         domain.LedgerService
	query          domain.BalanceQuery
}

func testLedgerSettings() LedgerSettings {
	return LedgerSettings{
		OperationTimeout:     5 * time.Second,
		MaxRetries:           3,
		RetryInitialInterval: time.Millisecond,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrationService(db, database.DialectSQLite, logger.Nop()).RunMigrations(context.Background()))

	store := repository.NewStore(db, database.DialectSQLite, logger.Nop())
	locks := concurrent.NewKeyMutex[domain.BalanceKey]()
	audit := NewAuditLogService(store.AuditLogs(), logger.Nop())
	reimbursements := NewReimbursementService(store, audit, nil, logger.Nop())

	h := &harness{
		t:              t,
		db:             db,
		store:          store,
		locks:          locks,
		audit:          audit,
		reimbursements: reimbursements,
	}
	h.ledger = h.newLedger(store, reimbursements, testLedgerSettings())
	h.query = NewBalanceQueryService(store, store, locks, nil,
		repository.NewTransactionRepository(db, logger.Nop()), audit,
		BalanceQuerySettings{ReconcileConcurrency: 2}, logger.Nop())
	return h
}

func (h *harness) newLedger(uow domain.UnitOfWork, aggregator domain.ReimbursementAggregator, settings LedgerSettings) domain.LedgerService {
	return NewLedgerService(uow, aggregator, h.locks, nil, settings, logger.Nop())
}

func (h *harness) credit(customerID, storeID int64, amount string) {
	h.t.Helper()
	_, err := h.ledger.Credit(context.Background(), domain.CreditRequest{
		CustomerID:  customerID,
		StoreID:     storeID,
		Amount:      dec(amount),
		Description: "purchase reward",
	})
	require.NoError(h.t, err)
}

func (h *harness) assertBalance(customerID, storeID int64, expected string) {
	h.t.Helper()
	amount, err := h.query.GetStoreBalance(context.Background(), customerID, storeID)
	require.NoError(h.t, err)
	assert.Equal(h.t, expected, amount.StringFixed(2))

	record, err := h.store.Balances().Find(context.Background(), customerID, storeID)
	require.NoError(h.t, err)
	if record != nil {
		assert.NoError(h.t, record.Validate())
	}
}

func (h *harness) movementCount(customerID, storeID int64) int64 {
	h.t.Helper()
	count, err := h.store.Movements().Count(context.Background(), customerID, storeID)
	require.NoError(h.t, err)
	return count
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(v int64) *int64 { return &v }

// faultyUoW injects failures at the transaction boundary and, optionally,
// into movement appends. afterCommitErrs are reported once each after the
// transaction really committed.
type faultyUoW struct {
	domain.UnitOfWork

	mu              sync.Mutex
	txErrs          []error
	afterCommitErrs []error
	alwaysErr       error
	failMovements   bool
	calls           atomic.Int32
}

func (u *faultyUoW) WithTx(ctx context.Context, fn func(domain.Scope) error) error {
	u.calls.Add(1)

	u.mu.Lock()
	if len(u.txErrs) > 0 {
		err := u.txErrs[0]
		u.txErrs = u.txErrs[1:]
		u.mu.Unlock()
		return err
	}
	u.mu.Unlock()

	if u.alwaysErr != nil {
		return u.alwaysErr
	}

	err := u.UnitOfWork.WithTx(ctx, func(scope domain.Scope) error {
		if u.failMovements {
			scope = movementFailScope{Scope: scope}
		}
		return fn(scope)
	})
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.afterCommitErrs) > 0 {
		err = u.afterCommitErrs[0]
		u.afterCommitErrs = u.afterCommitErrs[1:]
	}
	return err
}

type movementFailScope struct {
	domain.Scope
}

func (s movementFailScope) Movements() domain.MovementRepository {
	return failingMovements{MovementRepository: s.Scope.Movements()}
}

type failingMovements struct {
	domain.MovementRepository
}

func (failingMovements) Append(context.Context, *domain.Movement) error {
	return errors.New("movements table is read-only")
}

type failingAggregator struct {
	err error
}

func (a failingAggregator) RecordDebitReimbursement(context.Context, domain.Scope, int64, decimal.Decimal, *int64, int64) (int64, error) {
	return 0, a.err
}

// partialAggregator writes an obligation through the scope and then fails,
// so the savepoint must discard the write.
type partialAggregator struct{}

func (partialAggregator) RecordDebitReimbursement(ctx context.Context, scope domain.Scope, storeID int64, amount decimal.Decimal, _ *int64, _ int64) (int64, error) {
	_, err := scope.Reimbursements().Create(ctx, &domain.ReimbursementObligation{
		StoreID:       storeID,
		TotalAmount:   amount,
		PaymentMethod: domain.PaymentMethodCashbackRedemption,
	})
	if err != nil {
		return 0, err
	}
	return 0, errors.New("note trail rejected")
}
