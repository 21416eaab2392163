package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Pinger is the subset of internal/store.Store the health check depends on.
type Pinger interface {
	SchemaVersion(ctx context.Context) (string, error)
}

// HealthHandler creates a health check handler with store connectivity check.
func HealthHandler(logger *zap.Logger, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		services := make(map[string]string)
		services["api"] = "ok"

		dbStatus := "ok"
		if _, err := store.SchemaVersion(ctx); err != nil {
			dbStatus = "unavailable"
			logger.Debug("store connectivity check failed", zap.Error(err))
		}
		services["store"] = dbStatus

		overallStatus := "healthy"
		if dbStatus != "ok" {
			overallStatus = "degraded"
			logger.Warn("store connectivity issue", zap.String("store_status", dbStatus))
		}

		response := HealthResponse{
			Status:    overallStatus,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  services,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode health response", zap.Error(err))
		}
	}
}
