package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/api/handlers"
	"github.com/cowrie-intel/enrichd/internal/api/middleware"
	"github.com/cowrie-intel/enrichd/internal/enrichment/cascade"
	"github.com/cowrie-intel/enrichd/internal/store"
)

// SetupRoutes configures all routes and middleware for the read-only
// enrichment API: health, and lookups against the three-tier inventory
// (ASNInventory, IPInventory, SessionSummary) the cascade maintains.
// Mutation is exclusively the job of the CLI/workflows driving the
// cascade directly; this surface never writes.
func SetupRoutes(logger *zap.Logger, db *store.Store, orchestrator *cascade.Orchestrator) *chi.Mux {
	r := chi.NewRouter()

	// Middleware chain - order matters!
	// 1. Request ID - must be first to ensure all logs have request IDs
	r.Use(middleware.RequestID())

	// 2. Logger - logs all requests with request IDs
	r.Use(middleware.Logger(logger))

	// 3. Recoverer - recovers from panics
	r.Use(chimiddleware.Recoverer)

	// Health check endpoint (no authentication required)
	r.Get("/health", handlers.HealthHandler(logger, db))

	// Query endpoints are read-only; rate limit by remote address so a
	// single noisy caller can't starve the rest.
	queryRateLimiter := middleware.NewRateLimiter(120, logger)
	queryRateLimiter.StartCleanupRoutine(10*time.Minute, 1*time.Hour)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(queryRateLimiter))

		r.Route("/ip/{ip}", func(r chi.Router) {
			r.Get("/", handlers.IPInventoryHandler(db, logger))
			r.Get("/asn-history", handlers.IPASNHistoryHandler(db, logger))
		})

		r.Get("/asn/{asn}", handlers.ASNInventoryHandler(db, logger))
		r.Get("/session/{session_id}", handlers.SessionSummaryHandler(db, logger))
		r.Get("/stats", handlers.StatsHandler(orchestrator, logger))
	})

	return r
}
