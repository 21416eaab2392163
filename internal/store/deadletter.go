package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// RecordDeadLetter quarantines a payload that failed ingest validation.
// This is an offline-triage sink only; the core never re-processes these
// rows automatically (§4.L).
func (s *Store) RecordDeadLetter(ctx context.Context, ev models.DeadLetterEvent) (*models.DeadLetterEvent, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	rows, err := queryOne[models.DeadLetterEvent](ctx, s.db, `CREATE dead_letter_events CONTENT {
		ingest_id: $ingest_id,
		source: $source,
		source_offset: $source_offset,
		reason: $reason,
		payload_json: $payload_json,
		created_at: $created_at,
		resolved: false,
		resolved_at: NONE
	}`, map[string]interface{}{
		"ingest_id":     ev.IngestID,
		"source":        ev.Source,
		"source_offset": ev.SourceOffset,
		"reason":        ev.Reason,
		"payload_json":  ev.PayloadJSON,
		"created_at":    ev.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record dead letter: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("record dead letter: no row returned")
	}
	return &rows[0], nil
}

// ResolveDeadLetter marks a quarantined row as resolved after offline
// triage. It never triggers automatic reprocessing.
func (s *Store) ResolveDeadLetter(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return s.exec(ctx,
		`UPDATE dead_letter_events SET resolved = true, resolved_at = $resolved_at WHERE id = $id`,
		map[string]interface{}{"id": id, "resolved_at": now})
}

// ListUnresolvedDeadLetters returns quarantined rows awaiting triage.
func (s *Store) ListUnresolvedDeadLetters(ctx context.Context, limit int) ([]models.DeadLetterEvent, error) {
	rows, err := queryOne[models.DeadLetterEvent](ctx, s.db,
		`SELECT * FROM dead_letter_events WHERE resolved = false ORDER BY created_at ASC LIMIT $limit`,
		map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return rows, nil
}
