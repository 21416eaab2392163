package workflows

import (
	"context"
	"fmt"
	"time"

	restate "github.com/restatedev/sdk-go"

	"github.com/cowrie-intel/enrichd/internal/enrichment/cascade"
)

// RefreshStaleWorkflow drives cascade.Orchestrator.RefreshStaleData as a
// durable batch job, one source at a time or "all".
type RefreshStaleWorkflow struct {
	orchestrator *cascade.Orchestrator
}

// NewRefreshStaleWorkflow constructs a RefreshStaleWorkflow.
func NewRefreshStaleWorkflow(orchestrator *cascade.Orchestrator) *RefreshStaleWorkflow {
	return &RefreshStaleWorkflow{orchestrator: orchestrator}
}

// ServiceName returns the Restate service name.
func (w *RefreshStaleWorkflow) ServiceName() string { return "RefreshStaleWorkflow" }

// RefreshStaleRequest selects which provider(s) to refresh and how many
// rows per invocation.
type RefreshStaleRequest struct {
	Source string `json:"source"` // "whois", "scanner-reputation", or "all"
	Limit  int    `json:"limit"`
}

// RefreshStaleResponse reports rows refreshed per source.
type RefreshStaleResponse struct {
	RefreshedBySource map[string]int `json:"refreshed_by_source"`
}

// Run refreshes stale rows via a single durable step. Like
// BackfillASNWorkflow, the underlying operation commits and upserts per
// row, so a retried step after a crash re-derives the same answers rather
// than duplicating history entries.
func (w *RefreshStaleWorkflow) Run(ctx restate.Context, req RefreshStaleRequest) (RefreshStaleResponse, error) {
	source := resolveSource(req.Source)
	limit := resolveLimit(req.Limit)

	counts, err := restate.Run[map[string]int](ctx, func(stepCtx restate.RunContext) (map[string]int, error) {
		runCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		return w.orchestrator.RefreshStaleData(runCtx, source, limit)
	})
	if err != nil {
		return RefreshStaleResponse{}, fmt.Errorf("refresh stale workflow: %w", err)
	}

	return RefreshStaleResponse{RefreshedBySource: counts}, nil
}
