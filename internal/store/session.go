package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// GetSessionSummary reads one session row by primary key.
func (s *Store) GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	rows, err := queryOne[models.SessionSummary](ctx, s.db,
		`SELECT * FROM session_summaries WHERE session_id = $session_id LIMIT 1`,
		map[string]interface{}{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("get session summary %s: %w", sessionID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// InsertSessionSummary creates a session row. Snapshot columns, if set on
// the struct, are written as given; this method does not check write-once
// semantics. CaptureSnapshot writes snapshots through ApplySnapshot, not
// through this method.
func (s *Store) InsertSessionSummary(ctx context.Context, sess models.SessionSummary) (*models.SessionSummary, error) {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	rows, err := queryOne[models.SessionSummary](ctx, s.db, `CREATE session_summaries CONTENT {
		session_id: $session_id,
		first_event_at: $first_event_at,
		last_event_at: $last_event_at,
		event_count: $event_count,
		command_count: $command_count,
		file_downloads: $file_downloads,
		login_attempts: $login_attempts,
		ssh_key_injections: $ssh_key_injections,
		unique_ssh_keys: $unique_ssh_keys,
		vt_flagged: $vt_flagged,
		dshield_flagged: $dshield_flagged,
		risk_score: $risk_score,
		source_files: $source_files,
		enrichment: $enrichment,
		source_ip: $source_ip,
		snapshot_asn: $snapshot_asn,
		snapshot_country: $snapshot_country,
		snapshot_ip_type: $snapshot_ip_type,
		enrichment_at: $enrichment_at,
		ssh_key_fingerprint: $ssh_key_fingerprint,
		password_hash: $password_hash,
		command_signature: $command_signature,
		created_at: $created_at,
		updated_at: $updated_at
	}`, sessionParams(sess))
	if err != nil {
		return nil, fmt.Errorf("insert session summary %s: %w", sess.SessionID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert session summary %s: no row returned", sess.SessionID)
	}
	return &rows[0], nil
}

// ApplySnapshot writes the write-once snapshot columns on an existing
// session row. The caller (internal/session.CaptureSnapshot) must first
// confirm HasSnapshot() is false; this method does not re-check, matching
// the teacher's convention of keeping single-purpose store methods dumb
// and putting invariants in the calling package.
func (s *Store) ApplySnapshot(ctx context.Context, sessionID string, asn *int, country, ipType *string, enrichment map[string]interface{}, enrichmentAt time.Time) error {
	return s.exec(ctx, `UPDATE session_summaries SET
		snapshot_asn = $asn,
		snapshot_country = $country,
		snapshot_ip_type = $ip_type,
		enrichment = $enrichment,
		enrichment_at = $enrichment_at,
		updated_at = $updated_at
		WHERE session_id = $session_id`, map[string]interface{}{
		"session_id":    sessionID,
		"asn":           asn,
		"country":       country,
		"ip_type":       ipType,
		"enrichment":    enrichment,
		"enrichment_at": enrichmentAt,
		"updated_at":    time.Now().UTC(),
	})
}

// SelectSessionsMissingSnapshot returns up to limit rows with no snapshot
// yet, for the historical backfill job (§4.J).
func (s *Store) SelectSessionsMissingSnapshot(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	rows, err := queryOne[models.SessionSummary](ctx, s.db,
		`SELECT * FROM session_summaries WHERE enrichment_at IS NONE AND source_ip != "" LIMIT $limit`,
		map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("select sessions missing snapshot: %w", err)
	}
	return rows, nil
}

func sessionParams(sess models.SessionSummary) map[string]interface{} {
	return map[string]interface{}{
		"session_id":          sess.SessionID,
		"first_event_at":      sess.FirstEventAt,
		"last_event_at":       sess.LastEventAt,
		"event_count":         sess.EventCount,
		"command_count":       sess.CommandCount,
		"file_downloads":      sess.FileDownloads,
		"login_attempts":      sess.LoginAttempts,
		"ssh_key_injections":  sess.SSHKeyInjections,
		"unique_ssh_keys":     sess.UniqueSSHKeys,
		"vt_flagged":          sess.VTFlagged,
		"dshield_flagged":     sess.DShieldFlagged,
		"risk_score":          sess.RiskScore,
		"source_files":        sess.SourceFiles,
		"enrichment":          sess.Enrichment,
		"source_ip":           sess.SourceIP,
		"snapshot_asn":        sess.SnapshotASN,
		"snapshot_country":    sess.SnapshotCountry,
		"snapshot_ip_type":    sess.SnapshotIPType,
		"enrichment_at":       sess.EnrichmentAt,
		"ssh_key_fingerprint": sess.SSHKeyFingerprint,
		"password_hash":       sess.PasswordHash,
		"command_signature":   sess.CommandSignature,
		"created_at":          sess.CreatedAt,
		"updated_at":          sess.UpdatedAt,
	}
}
