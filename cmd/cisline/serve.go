package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cisline/internal/app"
	"cisline/internal/config"
	"cisline/internal/db"
	"cisline/internal/logging"
	"cisline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			log := logging.New(cfg.Log, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			appCtx, err := app.Open(ctx, workspace, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
				defer cancel()
				if err := appCtx.Close(closeCtx); err != nil {
					log.Error().Err(err).Msg("close workspace")
				}
			}()

			handler, err := server.New(server.Config{
				Engine:   appCtx.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:        cfg.Server.JWTSecret,
					AllowHeaderActor: cfg.Server.AllowHeaderActor,
				},
				Metrics:         appCtx.Metrics,
				Log:             log.With().Str("component", "http").Logger(),
				CheckEmailRate:  cfg.Server.CheckEmailRate,
				CheckEmailBurst: cfg.Server.CheckEmailBurst,
				MaxUploadBytes:  cfg.Server.MaxUploadBytes,
			})
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" && !cfg.Server.AllowHeaderActor {
				log.Warn().Msg("no CISLINE_JWT_SECRET and header actors disabled: the API is read-only")
			}

			err = server.StartWebhooks(ctx, appCtx.Engine.Repo, cfg.Webhooks, server.WebhookOptions{
				Log: log.With().Str("component", "webhooks").Logger(),
			})
			if err != nil {
				return fmt.Errorf("start webhooks: %w", err)
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log.Info().Str("addr", cfg.Server.Addr).Str("base_path", basePathOrDefault(basePath)).Msg("serving cisline API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

func basePathOrDefault(p string) string {
	if p == "" {
		return "/api"
	}
	return p
}
