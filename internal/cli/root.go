// Package cli собирает команды docrest: serve, migrate, check, cache.
package cli

import (
	"DocrestAPI/internal/config"
	"DocrestAPI/internal/logger"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Debug     bool
	ModelsDir string

	// Config заполняется в PersistentPreRunE
	Config *config.Config
}

// NewRootCommand creates the root command for the docrest CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docrest",
		Short: "docrest - REST resources over a document store",
		Long:  "Serves find/get/create/update/patch/remove over HTTP for every resource defined in the models directory.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetDebug(opts.Debug)
			if opts.Config == nil {
				opts.Config = config.LoadConfig()
			}
			if opts.ModelsDir != "" {
				opts.Config.ModelsDir = opts.ModelsDir
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.ModelsDir, "models", "", "models directory (overrides MODELS_DIR)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))

	return cmd
}
