package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cashback/pkg/logger"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(strings.ToLower(driver)) {
	case DialectSQLite, "sqlite":
		return DialectSQLite, nil
	case DialectPostgres, "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) autoIncrementPK() string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// moneyType keeps amounts exact. SQLite has no fixed point type, so
// values are stored as their decimal text.
func (d Dialect) moneyType() string {
	if d == DialectPostgres {
		return "NUMERIC(18,2)"
	}
	return "TEXT"
}

// ForUpdate is the row lock suffix for SELECT statements. SQLite locks
// the whole database for the write transaction instead.
func (d Dialect) ForUpdate() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

type Migration struct {
	ID        int64
	Name      string
	AppliedAt time.Time
}

type migrationStep struct {
	Name string
	Func func(ctx context.Context, tx *sql.Tx, d Dialect) error
}

type MigrationService struct {
	db      *sql.DB
	dialect Dialect
	logger  logger.Logger
}

func NewMigrationService(db *sql.DB, dialect Dialect, logger logger.Logger) *MigrationService {
	return &MigrationService{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (m *MigrationService) InitMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS migrations (
        id %s,
        name TEXT NOT NULL UNIQUE,
        applied_at TIMESTAMP NOT NULL
    )
    `, m.dialect.autoIncrementPK())

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		m.logger.Error("Failed to create migrations table", map[string]interface{}{"error": err.Error()})
		return err
	}

	return nil
}

func (m *MigrationService) IsMigrationApplied(ctx context.Context, name string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM migrations WHERE name = $1"
	if err := m.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		m.logger.Error("Failed to check migration status", map[string]interface{}{"name": name, "error": err.Error()})
		return false, err
	}

	return count > 0, nil
}

func (m *MigrationService) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, name, applied_at FROM migrations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		if err := rows.Scan(&mig.ID, &mig.Name, &mig.AppliedAt); err != nil {
			return nil, err
		}
		applied = append(applied, mig)
	}

	return applied, rows.Err()
}

func (m *MigrationService) ApplyMigration(ctx context.Context, step migrationStep) (err error) {
	applied, err := m.IsMigrationApplied(ctx, step.Name)
	if err != nil {
		return err
	}

	if applied {
		m.logger.Debug("Migration already applied", map[string]interface{}{"name": step.Name})
		return nil
	}

	m.logger.Info("Applying migration", map[string]interface{}{"name": step.Name})

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("Failed to begin migration transaction", map[string]interface{}{"error": err.Error()})
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
			m.logger.Error("Migration rolled back", map[string]interface{}{"name": step.Name, "error": err.Error()})
		}
	}()

	if err = step.Func(ctx, tx, m.dialect); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "INSERT INTO migrations (name, applied_at) VALUES ($1, $2)", step.Name, time.Now().UTC()); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	m.logger.Info("Migration applied", map[string]interface{}{"name": step.Name})
	return nil
}

func (m *MigrationService) RunMigrations(ctx context.Context) error {
	m.logger.Info("Running migrations", map[string]interface{}{"dialect": string(m.dialect)})

	if err := m.InitMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, step := range migrationSteps() {
		if err := m.ApplyMigration(ctx, step); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", step.Name, err)
		}
	}

	return nil
}

func migrationSteps() []migrationStep {
	return []migrationStep{
		{"create_balances_table", CreateBalancesTable},
		{"create_movements_table", CreateMovementsTable},
		{"create_reimbursement_obligations_table", CreateReimbursementObligationsTable},
		{"create_stores_table", CreateStoresTable},
		{"create_audit_logs_table", CreateAuditLogsTable},
		{"create_purchase_transactions_table", CreatePurchaseTransactionsTable},
	}
}

func execAll(ctx context.Context, tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func CreateBalancesTable(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx, fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS balances (
        customer_id BIGINT NOT NULL,
        store_id BIGINT NOT NULL,
        available %[1]s NOT NULL,
        total_credited %[1]s NOT NULL,
        total_used %[1]s NOT NULL,
        version BIGINT NOT NULL DEFAULT 0,
        last_updated TIMESTAMP NOT NULL,
        PRIMARY KEY (customer_id, store_id)
    )
    `, d.moneyType()))
}

func CreateMovementsTable(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx,
		fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS movements (
        id %[1]s,
        customer_id BIGINT NOT NULL,
        store_id BIGINT NOT NULL,
        operation_type TEXT NOT NULL,
        amount %[2]s NOT NULL,
        balance_before %[2]s NOT NULL,
        balance_after %[2]s NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        origin_transaction_id BIGINT,
        usage_transaction_id BIGINT,
        reimbursement_id BIGINT,
        related_transaction_id BIGINT,
        occurred_at TIMESTAMP NOT NULL
    )
    `, d.autoIncrementPK(), d.moneyType()),
		`CREATE INDEX IF NOT EXISTS movements_customer_store_idx ON movements (customer_id, store_id)`,
		`CREATE INDEX IF NOT EXISTS movements_reimbursement_idx ON movements (reimbursement_id)`,
	)
}

func CreateReimbursementObligationsTable(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx,
		fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS reimbursement_obligations (
        id %[1]s,
        store_id BIGINT NOT NULL,
        total_amount %[2]s NOT NULL,
        payment_method TEXT NOT NULL,
        note TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL,
        settled_at TIMESTAMP
    )
    `, d.autoIncrementPK(), d.moneyType()),
		`CREATE INDEX IF NOT EXISTS reimbursement_store_status_idx ON reimbursement_obligations (store_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS reimbursement_one_pending_idx ON reimbursement_obligations (store_id) WHERE status = 'pending'`,
	)
}

func CreateStoresTable(ctx context.Context, tx *sql.Tx, _ Dialect) error {
	return execAll(ctx, tx, `
    CREATE TABLE IF NOT EXISTS stores (
        store_id BIGINT PRIMARY KEY,
        name TEXT NOT NULL,
        partner_program BOOLEAN NOT NULL DEFAULT FALSE,
        updated_at TIMESTAMP NOT NULL
    )
    `)
}

func CreateAuditLogsTable(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx,
		fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS audit_logs (
        id %s,
        entity_type TEXT NOT NULL,
        entity_id BIGINT NOT NULL,
        action TEXT NOT NULL,
        details TEXT,
        created_at TIMESTAMP NOT NULL
    )
    `, d.autoIncrementPK()),
		`CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity_type, entity_id)`,
	)
}

// CreatePurchaseTransactionsTable creates the purchase table shared with the
// payment collaborator when the ledger runs against its own database. The
// ledger only reads it.
func CreatePurchaseTransactionsTable(ctx context.Context, tx *sql.Tx, d Dialect) error {
	return execAll(ctx, tx, fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS purchase_transactions (
        id %s,
        customer_id BIGINT NOT NULL,
        store_id BIGINT NOT NULL,
        amount %s NOT NULL,
        status TEXT NOT NULL,
        occurred_at TIMESTAMP NOT NULL
    )
    `, d.autoIncrementPK(), d.moneyType()))
}
