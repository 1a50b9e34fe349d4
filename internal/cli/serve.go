package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"DocrestAPI/internal/db"
	"DocrestAPI/internal/logger"
	"DocrestAPI/internal/model"
	"DocrestAPI/internal/router"

	"github.com/spf13/cobra"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rootOpts, cmd)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	if err := logger.Init(cfg.LogDir); err != nil {
		return fmt.Errorf("log init failed: %w", err)
	}
	defer logger.Close()

	store, err := db.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("store_init_failed", map[string]any{"backend": cfg.StoreBackend, "error": err.Error()})
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	// Initialize registry
	registry, err := model.InitRegistry(cfg.ModelsDir)
	if err != nil {
		logger.Error("registry_init_failed", map[string]any{"error": err.Error()})
		return err
	}
	if err := registry.Bind(ctx, store); err != nil {
		logger.Error("registry_bind_failed", map[string]any{"error": err.Error()})
		return err
	}
	logger.Info("models_initialized", map[string]any{"count": len(registry.Models())})

	mux := http.NewServeMux()
	if err := router.InitRoutes(mux, cfg, registry, db.OpenCountCache(ctx, cfg)); err != nil {
		logger.Error("router_init_failed", map[string]any{"error": err.Error()})
		return err
	}

	// Start HTTP server
	logger.Info("server_start", map[string]any{"port": cfg.Port})
	fmt.Fprintf(cmd.OutOrStdout(), "🚀 Starting server on port %s\n", cfg.Port)
	err = router.Serve(ctx, ":"+cfg.Port, router.Handler(cfg, mux))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server_error", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}
