// Command enrichd-workflows serves the durable Restate wrappers around the
// cascade's bulk staleness/backfill operations (§4.I), generalized from
// the teacher's cmd/workflows/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"
	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/cli"
	"github.com/cowrie-intel/enrichd/internal/store"
	"github.com/cowrie-intel/enrichd/internal/workflows"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	port := getEnv("ENRICHD_WORKFLOWS_PORT", "9080")

	cfg, err := cli.InitConfig(os.Getenv("ENRICHD_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		URL:       cfg.Database.URL,
		Namespace: cfg.Database.Namespace,
		Database:  cfg.Database.Name,
		User:      cfg.Database.User,
		Pass:      cfg.Database.Pass,
	}, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close(ctx)

	if err := st.EnsureSchemaState(ctx); err != nil {
		logger.Fatal("failed to ensure schema state", zap.Error(err))
	}

	orchestrator := cli.BuildOrchestratorForWorkflows(st, cfg, logger)

	backfillWorkflow := workflows.NewBackfillASNWorkflow(orchestrator)
	refreshWorkflow := workflows.NewRefreshStaleWorkflow(orchestrator)

	restateServer := server.NewRestate().
		Bind(restate.Reflect(backfillWorkflow)).
		Bind(restate.Reflect(refreshWorkflow))

	handler, err := restateServer.Handler()
	if err != nil {
		logger.Fatal("failed to create restate handler", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("enrichd workflow service starting", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down workflow service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("workflow service stopped")
}
