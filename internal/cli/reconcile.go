package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"cashback/internal/domain"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().Int64P("customer", "c", 0, "Only reconcile balances of this customer")
	reconcileCmd.Flags().Bool("dry-run", false, "Report drift without repairing it")
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild balances from the movement log",
	Long: `Recompute every balance from its movement history and compare it with
the stored projection. Drifted balances are overwritten from the movements
unless --dry-run is given. The report is printed as JSON.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	customer, _ := cmd.Flags().GetInt64("customer")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	var customerID *int64
	if cmd.Flags().Changed("customer") {
		if customer <= 0 {
			return domain.ErrInvalidIdentifier
		}
		customerID = &customer
	}

	f, err := newFactory(ctx)
	if err != nil {
		return err
	}
	defer f.Close(ctx)

	query := f.GetBalanceQuery()

	var report *domain.ReconcileReport
	if dryRun {
		report, err = query.DetectDrift(ctx, customerID)
	} else {
		report, err = query.Reconcile(ctx, customerID)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
