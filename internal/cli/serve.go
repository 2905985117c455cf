package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpDelivery "github.com/dealpop/dashboard/internal/delivery/http"
	"github.com/dealpop/dashboard/internal/domain"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(getApp func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API",
		Long:  "Serves the dashboard HTTP API, the alert stream and Prometheus metrics until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp()
			cfg := app.Config
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hub := httpDelivery.NewHub(cfg.Server.AllowedOrigins, app.Logger)
			defer hub.Relay(app.Alerts)()

			// captures written by the extension reach open dashboards right away
			err := app.Extension.Watch(ctx, func(products []domain.CapturedProduct) {
				app.Logger.Info().Int("products", len(products)).Msg("Extension storage changed")
				hub.BroadcastJSON(map[string]any{"type": "extension", "count": len(products)})
			})
			if err != nil {
				app.Logger.Warn().Err(err).Str("path", app.Extension.Path()).Msg("Extension storage watch disabled")
			}

			router := httpDelivery.SetupRouter(cfg, app.Handler(hub), httpDelivery.RouterDeps{
				Logger:   app.Logger,
				Metrics:  app.Metrics,
				Gatherer: app.Registry,
			})
			srv := &http.Server{
				Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info().
					Str("addr", srv.Addr).
					Str("environment", cfg.Environment()).
					Str("version", app.Version).
					Msg("Server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			app.Logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("port", "", "listen port (overrides server.port)")
	return cmd
}
