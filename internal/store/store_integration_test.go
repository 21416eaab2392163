package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// setupTestStore connects to a local SurrealDB instance under a disposable
// namespace/database, mirroring the teacher's internal/db integration test
// setup. Requires SurrealDB running at ws://localhost:8000/rpc.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	st, err := Open(ctx, Config{
		URL:       "ws://localhost:8000/rpc",
		Namespace: "test",
		Database:  "store_test",
		User:      "root",
		Pass:      "root",
	}, zaptest.NewLogger(t))
	require.NoError(t, err, "failed to connect to SurrealDB")

	t.Cleanup(func() { st.Close(context.Background()) })
	return st
}

func TestEnsureASN_CreatesThenFillsOnlyBlankFields(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	created, err := st.EnsureASN(ctx, 64500, "Example Org", "US", "arin")
	require.NoError(t, err)
	assert.Equal(t, "Example Org", created.OrganizationName)

	// A second call with different org data must not overwrite the
	// already-populated fields (§4.H.1 step 3).
	again, err := st.EnsureASN(ctx, 64500, "Different Org", "DE", "ripe")
	require.NoError(t, err)
	assert.Equal(t, "Example Org", again.OrganizationName)
	assert.Equal(t, "US", again.OrganizationCountry)
	assert.Equal(t, "arin", again.RIRRegistry)
}

func TestEnsureASN_FillsBlankFieldOnSecondCall(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	_, err := st.EnsureASN(ctx, 64501, "", "", "")
	require.NoError(t, err)

	filled, err := st.EnsureASN(ctx, 64501, "Later Org", "US", "arin")
	require.NoError(t, err)
	assert.Equal(t, "Later Org", filled.OrganizationName)
}

func TestInsertAndUpdateIPInventory(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	asn := 64500
	inv := models.IPInventory{
		IPAddress:    "198.51.100.10",
		CurrentASN:   &asn,
		FirstSeen:    now,
		LastSeen:     now,
		SessionCount: 1,
	}

	created, err := st.InsertIPInventory(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.10", created.IPAddress)

	created.SessionCount = 2
	created.LastSeen = now.Add(time.Minute)
	updated, err := st.UpdateIPInventory(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.SessionCount)
}

func TestRecordAndResolveDeadLetter(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	dl, err := st.RecordDeadLetter(ctx, models.DeadLetterEvent{
		Reason:      "invalid ip address",
		PayloadJSON: `{"bad":"payload"}`,
	})
	require.NoError(t, err)
	assert.False(t, dl.Resolved)

	unresolved, err := st.ListUnresolvedDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, unresolved)

	require.NoError(t, st.ResolveDeadLetter(ctx, dl.ID))
}

func TestUpsertFileIntelligence_UpdatesExistingRowRatherThanDuplicating(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	rec := models.FileReputationRecord{Classification: "unknown"}
	require.NoError(t, st.UpsertFileIntelligence(ctx, "sess-file-1", "deadbeef", "payload.sh", "http://x/payload.sh", rec))

	rec.Classification = "malicious"
	rec.PositiveRatio = 0.4
	require.NoError(t, st.UpsertFileIntelligence(ctx, "sess-file-1", "deadbeef", "payload.sh", "http://x/payload.sh", rec))
}

func TestRecordSSHKeyObservation_IncrementsUniqueSessionsOncePerSession(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	bits := 256

	require.NoError(t, st.RecordSSHKeyObservation(ctx, "sess-key-1", "hash-a", "ssh-ed25519", "fp-a", "", "~/.ssh/authorized_keys", "direct", &bits))
	// same session re-observing the same key must not double-count unique_sessions
	require.NoError(t, st.RecordSSHKeyObservation(ctx, "sess-key-1", "hash-a", "ssh-ed25519", "fp-a", "", "~/.ssh/authorized_keys", "direct", &bits))
	require.NoError(t, st.RecordSSHKeyObservation(ctx, "sess-key-2", "hash-a", "ssh-ed25519", "fp-a", "", "~/.ssh/authorized_keys", "direct", &bits))
}

func TestRecordPasswordUsage_DeduplicatesRepeatedAttemptsWithinSession(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.RecordPasswordUsage(ctx, "sess-pw-1", "hash-admin", "root", false, 9999, true, now))
	require.NoError(t, st.RecordPasswordUsage(ctx, "sess-pw-1", "hash-admin", "root", true, 9999, true, now.Add(time.Second)))
}
