package sshkey

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store is the subset of internal/store.Store the enricher depends on.
type Store interface {
	RecordSSHKeyObservation(ctx context.Context, sessionID string, keyHash, keyType, fingerprint, comment, targetPath, extractionMethod string, keyBits *int) error
}

// Enricher watches command input for authorized_keys manipulation and
// records every distinct key it finds.
type Enricher struct {
	store  Store
	logger *zap.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(e *Enricher) { e.logger = logger } }

// New constructs an Enricher.
func New(store Store, opts ...Option) *Enricher {
	e := &Enricher{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessCommand extracts keys from a command string tied to sessionID and
// records one observation per distinct key found, regardless of the target
// path the command writes to.
func (e *Enricher) ProcessCommand(ctx context.Context, sessionID, command string) (int, error) {
	keys := ExtractFromCommand(command)
	for _, k := range keys {
		if err := e.store.RecordSSHKeyObservation(ctx, sessionID, k.Hash, k.KeyType, k.Fingerprint, k.Comment, k.TargetPath, k.ExtractionMethod, k.Bits); err != nil {
			return 0, fmt.Errorf("record ssh key observation for session %s: %w", sessionID, err)
		}
	}
	return len(keys), nil
}
