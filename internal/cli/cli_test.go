package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "file:"+t.Name()+"?mode=memory&cache=shared")
	t.Setenv("DB_MAX_OPEN_CONNS", "1")
	t.Setenv("REDIS_ENABLED", "false")

	for _, cmd := range rootCmd.Commands() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	_, err := execute(t, "migrate")
	require.NoError(t, err)
}

func TestReconcileCommand_DryRunPrintsReport(t *testing.T) {
	out, err := execute(t, "reconcile", "--dry-run")
	require.NoError(t, err)

	var report domain.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Zero(t, report.Checked)
	assert.Zero(t, report.Repaired)
}

func TestReconcileCommand_RejectsInvalidCustomer(t *testing.T) {
	_, err := execute(t, "reconcile", "--customer", "0")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}
