package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := newFactory(ctx)
	if err != nil {
		return err
	}
	defer f.Close(ctx)

	f.GetLogger().Info("Migrations applied", map[string]interface{}{
		"driver": f.GetConfig().Database.Driver,
	})
	return nil
}
