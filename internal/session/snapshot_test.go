package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowrie-intel/enrichd/internal/models"
)

type fakeStore struct {
	sessions map[string]models.SessionSummary
	applied  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]models.SessionSummary{}, applied: map[string]bool{}}
}

func (f *fakeStore) GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := sess
	return &cp, nil
}

func (f *fakeStore) ApplySnapshot(ctx context.Context, sessionID string, asn *int, country, ipType *string, enrichment map[string]interface{}, enrichmentAt time.Time) error {
	sess := f.sessions[sessionID]
	sess.SnapshotASN = asn
	sess.SnapshotCountry = country
	sess.SnapshotIPType = ipType
	sess.EnrichmentAt = &enrichmentAt
	f.sessions[sessionID] = sess
	f.applied[sessionID] = true
	return nil
}

func (f *fakeStore) SelectSessionsMissingSnapshot(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	var out []models.SessionSummary
	for _, s := range f.sessions {
		if !s.HasSnapshot() {
			out = append(out, s)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type fakeCascade struct {
	inv   *models.IPInventory
	err   error
	calls int
}

func (f *fakeCascade) EnrichIP(ctx context.Context, ip string) (*models.IPInventory, error) {
	f.calls++
	return f.inv, f.err
}

func sampleInventory(asn int, country string) *models.IPInventory {
	raw, _ := json.Marshal(models.OfflineGeoRecord{CountryCode: country, ASN: &asn})
	return &models.IPInventory{
		IPAddress:  "198.51.100.9",
		CurrentASN: &asn,
		Enrichment: map[string]json.RawMessage{models.SourceOfflineGeo: raw},
	}
}

func TestCaptureSnapshot_WritesSnapshotColumns(t *testing.T) {
	store := newFakeStore()
	store.sessions["sess-1"] = models.SessionSummary{SessionID: "sess-1", SourceIP: "198.51.100.9"}
	cascade := &fakeCascade{inv: sampleInventory(64500, "US")}

	c := New(store, cascade)
	err := c.CaptureSnapshot(t.Context(), "sess-1", "198.51.100.9")
	require.NoError(t, err)

	sess := store.sessions["sess-1"]
	require.NotNil(t, sess.SnapshotASN)
	assert.Equal(t, 64500, *sess.SnapshotASN)
	require.NotNil(t, sess.SnapshotCountry)
	assert.Equal(t, "US", *sess.SnapshotCountry)
	require.NotNil(t, sess.EnrichmentAt)
}

func TestCaptureSnapshot_AlreadySnapshottedIsNoOp(t *testing.T) {
	store := newFakeStore()
	at := time.Now().UTC()
	store.sessions["sess-2"] = models.SessionSummary{SessionID: "sess-2", SourceIP: "198.51.100.9", EnrichmentAt: &at}
	cascade := &fakeCascade{inv: sampleInventory(64500, "US")}

	c := New(store, cascade)
	err := c.CaptureSnapshot(t.Context(), "sess-2", "198.51.100.9")
	require.NoError(t, err)
	assert.Equal(t, 0, cascade.calls, "write-once: must not re-enrich an already-snapshotted session")
	assert.False(t, store.applied["sess-2"])
}

func TestCaptureSnapshot_UnknownSessionErrors(t *testing.T) {
	store := newFakeStore()
	cascade := &fakeCascade{inv: sampleInventory(1, "US")}
	c := New(store, cascade)

	err := c.CaptureSnapshot(t.Context(), "does-not-exist", "198.51.100.9")
	assert.Error(t, err)
}

func TestBackfillHistoricalSessions_SkipsAlreadySnapshotted(t *testing.T) {
	store := newFakeStore()
	at := time.Now().UTC()
	store.sessions["sess-done"] = models.SessionSummary{SessionID: "sess-done", SourceIP: "10.0.0.1", EnrichmentAt: &at}
	store.sessions["sess-pending"] = models.SessionSummary{SessionID: "sess-pending", SourceIP: "10.0.0.2"}

	cascade := &fakeCascade{inv: sampleInventory(64500, "US")}
	c := New(store, cascade)

	n, err := c.BackfillHistoricalSessions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, store.applied["sess-pending"])
	assert.False(t, store.applied["sess-done"])
}
