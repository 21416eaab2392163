// Package workflows wraps the enrichment cascade's bulk operations
// (§4.G.4) as durable Restate services, generalizing the teacher's
// internal/workflows package (read for its restate.Run step structuring
// before its scan/vuln-graph bodies were deleted — see DESIGN.md).
package workflows

import (
	"context"
	"fmt"
	"time"

	restate "github.com/restatedev/sdk-go"

	"github.com/cowrie-intel/enrichd/internal/enrichment/cascade"
)

// BackfillASNWorkflow drives cascade.Orchestrator.BackfillMissingASNs as a
// durable, restartable-on-crash batch job.
type BackfillASNWorkflow struct {
	orchestrator *cascade.Orchestrator
}

// NewBackfillASNWorkflow constructs a BackfillASNWorkflow.
func NewBackfillASNWorkflow(orchestrator *cascade.Orchestrator) *BackfillASNWorkflow {
	return &BackfillASNWorkflow{orchestrator: orchestrator}
}

// ServiceName returns the Restate service name.
func (w *BackfillASNWorkflow) ServiceName() string { return "BackfillASNWorkflow" }

// BackfillASNRequest bounds how many rows one invocation processes.
type BackfillASNRequest struct {
	Limit int `json:"limit"`
}

// BackfillASNResponse reports how many rows were patched.
type BackfillASNResponse struct {
	Patched int `json:"patched"`
}

// Run patches IP rows that have no current_asn via a durable step.
// BackfillMissingASNs writes each row as it goes and its upserts are
// idempotent, so a crash mid-run only replays already-converged writes on
// retry rather than double-counting them.
func (w *BackfillASNWorkflow) Run(ctx restate.Context, req BackfillASNRequest) (BackfillASNResponse, error) {
	limit := resolveLimit(req.Limit)

	patched, err := restate.Run[int](ctx, func(stepCtx restate.RunContext) (int, error) {
		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		return w.orchestrator.BackfillMissingASNs(runCtx, limit)
	})
	if err != nil {
		return BackfillASNResponse{}, fmt.Errorf("backfill asn workflow: %w", err)
	}

	return BackfillASNResponse{Patched: patched}, nil
}
