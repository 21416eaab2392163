package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cowrie-intel/enrichd/internal/enrichment/cascade"
)

func TestBackfillASNWorkflow_ServiceName(t *testing.T) {
	w := &BackfillASNWorkflow{}
	assert.Equal(t, "BackfillASNWorkflow", w.ServiceName())
}

func TestResolveLimit_DefaultsWhenZeroOrNegative(t *testing.T) {
	assert.Equal(t, defaultBatchLimit, resolveLimit(0))
	assert.Equal(t, defaultBatchLimit, resolveLimit(-5))
	assert.Equal(t, 25, resolveLimit(25))
}

func TestNewBackfillASNWorkflow_StoresOrchestrator(t *testing.T) {
	o := &cascade.Orchestrator{}
	w := NewBackfillASNWorkflow(o)
	assert.NotNil(t, w)
	assert.Same(t, o, w.orchestrator)
}
