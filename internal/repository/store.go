package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"cashback/internal/database"
	"cashback/internal/domain"
	"cashback/pkg/logger"
)

// DBTX is satisfied by *sql.DB, *sql.Tx and the replica router.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type scope struct {
	tx             *sql.Tx
	balances       *BalanceRepository
	movements      *MovementRepository
	reimbursements *ReimbursementRepository
	stores         *StoreRepository
	auditLogs      *AuditLogRepository
	logger         logger.Logger
}

func newScope(db DBTX, tx *sql.Tx, dialect database.Dialect, logger logger.Logger) *scope {
	return &scope{
		tx:             tx,
		balances:       &BalanceRepository{db: db, logger: logger},
		movements:      &MovementRepository{db: db, logger: logger},
		reimbursements: &ReimbursementRepository{db: db, dialect: dialect, logger: logger},
		stores:         &StoreRepository{db: db, logger: logger},
		auditLogs:      &AuditLogRepository{db: db, logger: logger},
		logger:         logger,
	}
}

func (s *scope) Balances() domain.BalanceRepository             { return s.balances }
func (s *scope) Movements() domain.MovementRepository           { return s.movements }
func (s *scope) Reimbursements() domain.ReimbursementRepository { return s.reimbursements }
func (s *scope) Stores() domain.StoreRepository                 { return s.stores }
func (s *scope) AuditLogs() domain.AuditLogRepository           { return s.auditLogs }

func (s *scope) Savepoint(ctx context.Context, name string, fn func() error) error {
	if s.tx == nil {
		return fn()
	}
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			s.logger.Error("Failed to roll back to savepoint", map[string]interface{}{
				"savepoint": name,
				"error":     rbErr.Error(),
			})
			return fmt.Errorf("%w (rollback to savepoint %s failed: %v)", err, name, rbErr)
		}
		return err
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// Store is the unit of work over a database/sql pool.
type Store struct {
	*scope
	db      *sql.DB
	dialect database.Dialect
	logger  logger.Logger
}

func NewStore(db *sql.DB, dialect database.Dialect, logger logger.Logger) *Store {
	return &Store{
		scope:   newScope(db, nil, dialect, logger),
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// WithTx runs fn in one transaction. It commits when fn returns nil and
// rolls back otherwise, including when ctx is cancelled before commit.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Scope) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newScope(tx, tx, s.dialect, s.logger)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("Failed to roll back transaction", map[string]interface{}{"error": rbErr.Error()})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return commitError(err)
	}
	return nil
}

// commitError marks a failed commit as ambiguous unless the transaction is
// known to be rolled back: a cancelled context makes database/sql roll back
// before sending COMMIT.
func commitError(err error) error {
	if errors.Is(err, sql.ErrTxDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return fmt.Errorf("failed to commit transaction: %w: %w", domain.ErrCommitOutcomeUnknown, err)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
