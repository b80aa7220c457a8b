package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"loan-intake/internal/shared/storage/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations to DATABASE_URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sqlDB, dialect, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", dialect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
