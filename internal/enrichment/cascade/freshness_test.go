package cascade

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowrie-intel/enrichd/internal/models"
)

func rawOf(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestIsFresh_EmptyEnrichmentIsNotFresh(t *testing.T) {
	inv := &models.IPInventory{Enrichment: map[string]json.RawMessage{}}
	assert.False(t, isFresh(inv, time.Hour, nil))
}

func TestIsFresh_MissingOfflineGeoForcesRefresh(t *testing.T) {
	now := time.Now().UTC()
	inv := &models.IPInventory{
		Enrichment:          map[string]json.RawMessage{models.SourceWhois: rawOf(t, models.WhoisRecord{})},
		EnrichmentUpdatedAt: &now,
	}
	assert.False(t, isFresh(inv, time.Hour, nil))
}

func TestIsFresh_OfflineDBAgeExactlySevenDaysIsStillFresh(t *testing.T) {
	now := time.Now().UTC()
	inv := &models.IPInventory{
		Enrichment:          map[string]json.RawMessage{models.SourceOfflineGeo: rawOf(t, models.OfflineGeoRecord{})},
		EnrichmentUpdatedAt: &now,
	}
	assert.True(t, isFresh(inv, 7*24*time.Hour, nil), "strict > means exactly 7 days is not stale")
}

func TestIsFresh_OfflineDBAgeOverSevenDaysForcesRefresh(t *testing.T) {
	now := time.Now().UTC()
	inv := &models.IPInventory{
		Enrichment:          map[string]json.RawMessage{models.SourceOfflineGeo: rawOf(t, models.OfflineGeoRecord{})},
		EnrichmentUpdatedAt: &now,
	}
	assert.False(t, isFresh(inv, 7*24*time.Hour+time.Second, nil))
}

func TestIsFresh_StaleWhoisForcesRefresh(t *testing.T) {
	old := time.Now().UTC().Add(-91 * 24 * time.Hour)
	inv := &models.IPInventory{
		Enrichment: map[string]json.RawMessage{
			models.SourceOfflineGeo: rawOf(t, models.OfflineGeoRecord{}),
			models.SourceWhois:      rawOf(t, models.WhoisRecord{}),
		},
		EnrichmentUpdatedAt: &old,
	}
	assert.False(t, isFresh(inv, time.Hour, nil))
}

func TestIsFresh_MissingWhoisDoesNotForceRefresh(t *testing.T) {
	now := time.Now().UTC()
	inv := &models.IPInventory{
		Enrichment:          map[string]json.RawMessage{models.SourceOfflineGeo: rawOf(t, models.OfflineGeoRecord{})},
		EnrichmentUpdatedAt: &now,
	}
	assert.True(t, isFresh(inv, time.Hour, nil))
}

func TestIsFresh_StaleReputationForcesRefresh(t *testing.T) {
	old := time.Now().UTC().Add(-8 * 24 * time.Hour)
	inv := &models.IPInventory{
		Enrichment: map[string]json.RawMessage{
			models.SourceOfflineGeo: rawOf(t, models.OfflineGeoRecord{}),
			models.SourceReputation: rawOf(t, models.ReputationRecord{}),
		},
		EnrichmentUpdatedAt: &old,
	}
	assert.False(t, isFresh(inv, time.Hour, nil))
}
