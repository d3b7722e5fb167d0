package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cashback/pkg/factory"
)

// Version is stamped at build time with -ldflags "-X cashback/internal/cli.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cashback",
	Short: "Per-store cashback ledger",
	Long: `Cashback keeps one balance per customer and store, records every
credit, debit and refund as an immutable movement, and aggregates redeemed
cashback into reimbursement obligations owed by each store.`,
	SilenceUsage: true,
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newFactory builds the application graph and applies migrations, closing
// it again when migrations fail.
func newFactory(ctx context.Context) (factory.Factory, error) {
	f, err := factory.NewFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("application could not be initialised: %w", err)
	}

	if err := f.Migrate(ctx); err != nil {
		_ = f.Close(ctx)
		return nil, err
	}
	return f, nil
}
