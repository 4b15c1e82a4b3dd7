package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diaguru/diaguru/internal/app"
	"github.com/diaguru/diaguru/pkg/config"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := app.NewContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- container.Server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			container.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return container.Server.Shutdown(shutdownCtx)
		},
	}
}
