package cascade

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/models"
)

func TestBackfillMissingASNs_PatchesRowsWithWhoisAnswer(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.ipRows["203.0.113.1"] = models.IPInventory{
		IPAddress:           "203.0.113.1",
		Enrichment:          map[string]json.RawMessage{},
		EnrichmentUpdatedAt: &now,
	}
	store.ipRows["203.0.113.2"] = models.IPInventory{
		IPAddress:           "203.0.113.2",
		Enrichment:          map[string]json.RawMessage{},
		EnrichmentUpdatedAt: &now,
	}

	w := &fakeWhois{rec: &whois.Record{ASN: intPtr(64500), ASNOrg: "TESTNET"}}
	orch := New(store, &fakeGeo{}, w, &fakeReputation{})

	patched, err := orch.BackfillMissingASNs(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, patched)

	row := store.ipRows["203.0.113.1"]
	require.NotNil(t, row.CurrentASN)
	assert.Equal(t, 64500, *row.CurrentASN)
	assert.Contains(t, row.Enrichment, models.SourceWhois)
}

func TestBackfillMissingASNs_AbsentIsSkippedNotCountedAsPatched(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.ipRows["203.0.113.3"] = models.IPInventory{
		IPAddress:           "203.0.113.3",
		Enrichment:          map[string]json.RawMessage{},
		EnrichmentUpdatedAt: &now,
	}

	w := &fakeWhois{err: whois.ErrAbsent}
	orch := New(store, &fakeGeo{}, w, &fakeReputation{})

	patched, err := orch.BackfillMissingASNs(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, patched)
}
