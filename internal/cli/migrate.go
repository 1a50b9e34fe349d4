package cli

import (
	"fmt"

	"DocrestAPI/internal/db"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL migrations",
	}
	cmd.AddCommand(newMigrateStep(rootOpts, "up", "Apply all pending migrations", true))
	cmd.AddCommand(newMigrateStep(rootOpts, "down", "Roll back the last migration", false))
	return cmd
}

func newMigrateStep(rootOpts *RootOptions, use, short string, up bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if err := db.Migrate(cfg.PostgresDSN, cfg.MigrationsDir, up); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ migrate %s done (%s)\n", use, cfg.MigrationsDir)
			return nil
		},
	}
}
