package cli

import (
	"fmt"

	"DocrestAPI/internal/countcache"
	"DocrestAPI/internal/db"

	"github.com/spf13/cobra"
)

func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared count cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Drop every cached total from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if cfg.RedisAddr == "" {
				// in-memory кэш живёт внутри процесса serve
				fmt.Fprintln(cmd.OutOrStdout(), "REDIS_ADDR is not set; nothing to flush")
				return nil
			}
			rdb, err := db.ConnectRedis(cmd.Context(), cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer rdb.Close()
			if err := countcache.NewRedis(rdb, 0).Flush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ count cache flushed")
			return nil
		},
	})
	return cmd
}
