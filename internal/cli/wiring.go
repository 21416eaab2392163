package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/enrichment/cascade"
	"github.com/cowrie-intel/enrichd/internal/enrichment/geoip"
	"github.com/cowrie-intel/enrichd/internal/enrichment/reputation"
	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
	"github.com/cowrie-intel/enrichd/internal/store"
)

// newLogger builds the process-wide structured logger. Verbose mode uses
// zap's development config (human-readable, debug level); the default
// mirrors the teacher's cmd/api and cmd/workflows use of zap.NewProduction.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore connects to the inventory store and ensures the schema_state
// bookkeeping row exists, per internal/store.EnsureSchemaState.
func openStore(ctx context.Context, cfg *Config, logger *zap.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		URL:       cfg.Database.URL,
		Namespace: cfg.Database.Namespace,
		Database:  cfg.Database.Name,
		User:      cfg.Database.User,
		Pass:      cfg.Database.Pass,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchemaState(ctx); err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("ensure schema state: %w", err)
	}
	return st, nil
}

// buildOrchestrator wires the cascade's three provider clients (§4.D-F)
// from configuration, following the teacher's cmd/workflows/main.go
// pattern of constructing each client from getEnv-style settings before
// handing them to the orchestrator.
func buildOrchestrator(st *store.Store, cfg *Config, logger *zap.Logger) *cascade.Orchestrator {
	cache := blobcache.New(cfg.Cache.Root, blobcache.WithLogger(logger))

	geoClient := geoip.New(cfg.OfflineGeo.Path, geoip.WithLogger(logger))

	whoisLimiter := ratelimit.NewPerSecond(cfg.Whois.RateLimit, cfg.Whois.Burst)
	whoisClient := whois.New(whoisLimiter, cache, whois.WithLogger(logger))

	var repClient *reputation.Client
	if cfg.Reputation.Enabled {
		repLimiter := ratelimit.NewPerSecond(cfg.Reputation.RateLimit, cfg.Reputation.Burst)
		repClient = reputation.New(cfg.Reputation.Secret, repLimiter, cache, reputation.WithLogger(logger))
	} else {
		repClient = reputation.New("", ratelimit.Unlimited, cache, reputation.WithLogger(logger))
	}

	return cascade.New(st, geoClient, whoisClient, repClient, cascade.WithLogger(logger))
}

// BuildOrchestratorForWorkflows exposes buildOrchestrator to the
// cmd/enrichd-workflows binary, which wires the same provider stack
// (§4.D-F) behind a restate service instead of a cobra command.
func BuildOrchestratorForWorkflows(st *store.Store, cfg *Config, logger *zap.Logger) *cascade.Orchestrator {
	return buildOrchestrator(st, cfg, logger)
}
