package cascade

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowrie-intel/enrichd/internal/enrichment/geoip"
	"github.com/cowrie-intel/enrichd/internal/enrichment/reputation"
	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/models"
)

func TestEnrichIP_FullCascadeCleanData(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeo{rec: &geoip.Record{
		CountryCode: "US", CountryName: "United States", City: "Mountain View",
		ASN: intPtr(15169), ASNOrg: "GOOGLE",
	}}
	w := &fakeWhois{err: errors.New("must not be called")}
	rep := &fakeReputation{rec: &reputation.Record{Noise: false, RIOT: true, Classification: "benign", Name: "Google Public DNS"}}

	orch := New(store, geo, w, rep)

	inv, err := orch.EnrichIP(t.Context(), "8.8.8.8")
	require.NoError(t, err)
	require.NotNil(t, inv)

	require.NotNil(t, inv.CurrentASN)
	assert.Equal(t, 15169, *inv.CurrentASN)
	assert.Equal(t, "US", inv.GeoCountry())
	assert.Empty(t, inv.IPType())
	assert.False(t, inv.IsScanner())
	assert.ElementsMatch(t, []string{models.SourceOfflineGeo, models.SourceReputation}, enrichmentKeys(inv))
	assert.Equal(t, 0, w.calls, "whois must not be called when offline already has an ASN")

	asnRow, ok := store.asnRows[15169]
	require.True(t, ok)
	assert.Equal(t, "GOOGLE", asnRow.OrganizationName)
}

func TestEnrichIP_WhoisFallbackWhenOfflineAbsent(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeo{rec: nil} // absent
	w := &fakeWhois{rec: &whois.Record{ASN: intPtr(4837), ASNOrg: "CHINANET", CountryCode: "CN", Registry: "apnic"}}
	rep := &fakeReputation{rec: nil}

	orch := New(store, geo, w, rep)

	inv, err := orch.EnrichIP(t.Context(), "203.0.113.5")
	require.NoError(t, err)
	require.NotNil(t, inv.CurrentASN)
	assert.Equal(t, 4837, *inv.CurrentASN)
	assert.Contains(t, enrichmentKeys(inv), models.SourceWhois)
	assert.NotContains(t, enrichmentKeys(inv), models.SourceOfflineGeo)
	assert.Equal(t, 1, w.calls)
}

func TestEnrichIP_FreshRowIsCacheHitNoProviderCalls(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	offlineRaw, err := json.Marshal(models.OfflineGeoRecord{CountryCode: "US", ASN: intPtr(15169), CachedAt: now})
	require.NoError(t, err)
	store.ipRows["8.8.4.4"] = models.IPInventory{
		IPAddress:           "8.8.4.4",
		CurrentASN:          intPtr(15169),
		FirstSeen:           now.Add(-time.Hour),
		LastSeen:            now.Add(-time.Hour),
		SessionCount:        1,
		Enrichment:          map[string]json.RawMessage{models.SourceOfflineGeo: offlineRaw},
		EnrichmentUpdatedAt: &now,
	}

	geo := &fakeGeo{age: time.Hour}
	w := &fakeWhois{}
	rep := &fakeReputation{}
	orch := New(store, geo, w, rep)

	inv, err := orch.EnrichIP(t.Context(), "8.8.4.4")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, 0, geo.calls)
	assert.Equal(t, 0, w.calls)
	assert.Equal(t, 0, rep.calls)
	assert.Equal(t, 1, orch.Stats().CacheHits)
}

func TestEnrichIP_ReputationQuotaExhaustionIsNotAFailure(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeo{rec: &geoip.Record{ASN: intPtr(13335), ASNOrg: "CLOUDFLARENET"}}
	w := &fakeWhois{}
	rep := &fakeReputation{rec: nil, err: nil} // disabled/quota-exhausted substitute: (nil, nil)

	orch := New(store, geo, w, rep)

	inv, err := orch.EnrichIP(t.Context(), "1.1.1.1")
	require.NoError(t, err)
	assert.NotContains(t, enrichmentKeys(inv), models.SourceReputation)
	assert.Equal(t, 0, orch.Stats().Errors)
}

func TestEnrichIP_AttributesASNCountersOnNewAndReturningIP(t *testing.T) {
	store := newFakeStore()
	// offline DB always reported older than its max age, so every call
	// runs the full cascade instead of hitting the freshness cache.
	geo := &fakeGeo{rec: &geoip.Record{ASN: intPtr(15169), ASNOrg: "GOOGLE"}, age: 30 * 24 * time.Hour}
	w := &fakeWhois{}
	rep := &fakeReputation{}
	orch := New(store, geo, w, rep)

	_, err := orch.EnrichIP(t.Context(), "8.8.8.8")
	require.NoError(t, err)
	asnRow := store.asnRows[15169]
	assert.Equal(t, 1, asnRow.UniqueIPCount, "new IP increments unique_ip_count")
	assert.Equal(t, 1, asnRow.TotalSessionCount)

	_, err = orch.EnrichIP(t.Context(), "8.8.8.8")
	require.NoError(t, err)
	asnRow = store.asnRows[15169]
	assert.Equal(t, 1, asnRow.UniqueIPCount, "returning IP does not re-increment unique_ip_count")
	assert.Equal(t, 2, asnRow.TotalSessionCount)
}

func TestEnrichIP_InsertRaceReturnsCompetingRow(t *testing.T) {
	store := newFakeStore()
	winner := models.IPInventory{
		IPAddress:    "198.51.100.7",
		SessionCount: 1,
		FirstSeen:    time.Now().UTC(),
		LastSeen:     time.Now().UTC(),
		Enrichment:   map[string]json.RawMessage{},
	}
	store.winRaceOnInsert["198.51.100.7"] = winner

	geo := &fakeGeo{rec: nil}
	w := &fakeWhois{rec: nil, err: whois.ErrAbsent}
	rep := &fakeReputation{}
	orch := New(store, geo, w, rep)

	inv, err := orch.EnrichIP(t.Context(), "198.51.100.7")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "198.51.100.7", inv.IPAddress)
}

func TestEnrichIP_AllProvidersFailFallsBackToMinimalInventory(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeo{ageErr: errors.New("db not found"), err: errors.New("offline db missing")}
	w := &fakeWhois{err: errors.New("dns down")}
	rep := &fakeReputation{err: errors.New("network down")}
	orch := New(store, geo, w, rep)

	inv, err := orch.EnrichIP(t.Context(), "203.0.113.99")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Empty(t, inv.Enrichment)
	assert.Equal(t, 1, inv.SessionCount)
}

func enrichmentKeys(inv *models.IPInventory) []string {
	keys := make([]string, 0, len(inv.Enrichment))
	for k := range inv.Enrichment {
		keys = append(keys, k)
	}
	return keys
}
