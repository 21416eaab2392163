package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshStaleWorkflow_ServiceName(t *testing.T) {
	w := &RefreshStaleWorkflow{}
	assert.Equal(t, "RefreshStaleWorkflow", w.ServiceName())
}

func TestResolveSource_DefaultsToAllWhenEmpty(t *testing.T) {
	assert.Equal(t, "all", resolveSource(""))
	assert.Equal(t, "whois", resolveSource("whois"))
}
