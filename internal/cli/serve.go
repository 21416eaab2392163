package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/api"
)

// shutdownTimeout bounds how long the HTTP server waits for in-flight
// requests to drain on SIGTERM/SIGINT, mirroring the teacher's
// cmd/api/main.go.
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the "serve" command, which runs the read-only
// HTTP query surface (§6 "Outputs to collaborators") over the inventory
// store.
func NewServeCommand() *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only IP/ASN/session inventory HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := InitConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := newLogger(verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			ctx := context.Background()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			orchestrator := buildOrchestrator(st, cfg, logger)

			router := api.SetupRoutes(logger, st, orchestrator)

			srv := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

			serverErrors := make(chan error, 1)
			go func() {
				logger.Info("enrichd api server starting", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					serverErrors <- err
				}
			}()

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server failed: %w", err)
			case sig := <-stop:
				logger.Info("shutdown signal received", zap.String("signal", sig.String()))

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("server shutdown failed", zap.Error(err))
					srv.Close()
				}
				logger.Info("server stopped")
			}

			return nil
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", ":3000", "Address to listen on")

	return serveCmd
}
