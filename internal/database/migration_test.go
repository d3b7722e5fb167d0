package database

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/pkg/logger"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	svc := NewMigrationService(db, DialectSQLite, logger.Nop())

	require.NoError(t, svc.RunMigrations(ctx))
	require.NoError(t, svc.RunMigrations(ctx))

	applied, err := svc.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, len(migrationSteps()))

	for _, table := range []string{"balances", "movements", "reimbursement_obligations", "stores", "audit_logs", "purchase_transactions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestRunMigrations_OnePendingObligationPerStore(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	require.NoError(t, NewMigrationService(db, DialectSQLite, logger.Nop()).RunMigrations(ctx))

	insert := `INSERT INTO reimbursement_obligations (store_id, total_amount, payment_method, status, created_at, updated_at)
		VALUES ($1, '1.00', 'cashback_redemption', $2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`

	_, err := db.Exec(insert, 5, "pending")
	require.NoError(t, err)
	_, err = db.Exec(insert, 5, "settled")
	require.NoError(t, err)
	_, err = db.Exec(insert, 5, "pending")
	assert.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("postgresql")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)
	assert.Equal(t, " FOR UPDATE", d.ForUpdate())

	d, err = ParseDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)
	assert.Empty(t, d.ForUpdate())

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}
