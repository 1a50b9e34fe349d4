package cli

import (
	"fmt"

	"DocrestAPI/internal/model"

	"github.com/spf13/cobra"
)

// NewCheckCommand загружает и линкует модели без подключения к хранилищу.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [models-dir]",
		Short: "Validate resource definitions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.Config.ModelsDir
			if len(args) == 1 {
				dir = args[0]
			}
			registry, err := model.InitRegistry(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range registry.Models() {
				kind := "model"
				if m.Base() != nil {
					kind = "discriminator of " + m.Base().Name
				}
				fmt.Fprintf(out, "  %s -> %s (%s)\n", m.Name, m.CollectionName(), kind)
			}
			fmt.Fprintf(out, "✓ %d models valid\n", len(registry.Models()))
			return nil
		},
	}
}
