package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// InsertRawEvent inserts an immutable event row. The loader is assumed not
// to resubmit a (source_path, source_inode, source_generation,
// source_offset) key it has already submitted; this is an append, not an
// upsert.
func (s *Store) InsertRawEvent(ctx context.Context, e models.RawEvent) (*models.RawEvent, error) {
	if e.PayloadHash == "" {
		sum := sha256.Sum256([]byte(e.PayloadJSON))
		e.PayloadHash = hex.EncodeToString(sum[:])
	}
	if e.IngestAt.IsZero() {
		e.IngestAt = time.Now().UTC()
	}
	if e.IngestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		e.IngestID = id.String()
	}

	rows, err := queryOne[models.RawEvent](ctx, s.db, `CREATE raw_events CONTENT {
		source_path: $source_path,
		source_offset: $source_offset,
		source_inode: $source_inode,
		source_generation: $source_generation,
		payload_json: $payload_json,
		payload_hash: $payload_hash,
		session_id: $session_id,
		event_type: $event_type,
		event_timestamp: $event_timestamp,
		ingest_id: $ingest_id,
		ingest_at: $ingest_at,
		risk_score: $risk_score,
		quarantined: $quarantined
	}`, map[string]interface{}{
		"source_path":       e.SourcePath,
		"source_offset":     e.SourceOffset,
		"source_inode":      e.SourceInode,
		"source_generation": e.SourceGeneration,
		"payload_json":      e.PayloadJSON,
		"payload_hash":      e.PayloadHash,
		"session_id":        e.SessionID,
		"event_type":        e.EventType,
		"event_timestamp":   e.EventTimestamp,
		"ingest_id":         e.IngestID,
		"ingest_at":         e.IngestAt,
		"risk_score":        e.RiskScore,
		"quarantined":       e.Quarantined,
	})
	if err != nil {
		s.logger.Error("insert raw event failed", zap.Error(err), zap.String("unique_key", e.UniqueKey()))
		return nil, fmt.Errorf("insert raw event: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert raw event: no row returned")
	}
	return &rows[0], nil
}
