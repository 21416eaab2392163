package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// UpsertFileIntelligence records the file-reputation answer for one
// (session_id, sha256) pair, matching the teacher's files table's
// uq_files_session_hash constraint.
func (s *Store) UpsertFileIntelligence(ctx context.Context, sessionID, sha256, filename, downloadURL string, rec models.FileReputationRecord) error {
	now := time.Now().UTC()

	query := `BEGIN TRANSACTION;
LET $existing = (SELECT * FROM file_intelligence WHERE session_id = $session_id AND sha256 = $sha256 LIMIT 1);
IF array::len($existing) > 0 {
	UPDATE file_intelligence SET
		classification = $classification,
		positive_ratio = $positive_ratio,
		last_seen = $now
	WHERE session_id = $session_id AND sha256 = $sha256;
} ELSE {
	CREATE file_intelligence CONTENT {
		session_id: $session_id,
		sha256: $sha256,
		filename: $filename,
		download_url: $download_url,
		classification: $classification,
		positive_ratio: $positive_ratio,
		first_seen: $now,
		last_seen: $now
	};
};
COMMIT TRANSACTION;`

	err := s.exec(ctx, query, map[string]interface{}{
		"session_id":      sessionID,
		"sha256":          sha256,
		"filename":        filename,
		"download_url":    downloadURL,
		"classification":  rec.Classification,
		"positive_ratio":  rec.PositiveRatio,
		"now":             now,
	})
	if err != nil {
		s.logger.Error("upsert file intelligence failed", zap.Error(err), zap.String("sha256", sha256))
		return fmt.Errorf("upsert file intelligence %s/%s: %w", sessionID, sha256, err)
	}
	return nil
}

// RecordSSHKeyObservation upserts a per-key intelligence row (keyed by
// key_hash) and appends a session↔key link, incrementing unique_sessions
// only the first time a given session observes a given key.
func (s *Store) RecordSSHKeyObservation(ctx context.Context, sessionID string, keyHash, keyType, fingerprint, comment, targetPath, extractionMethod string, keyBits *int) error {
	now := time.Now().UTC()

	query := `BEGIN TRANSACTION;
LET $existing_key = (SELECT * FROM ssh_key_intelligence WHERE key_hash = $key_hash LIMIT 1);
LET $existing_link = (SELECT * FROM session_ssh_keys WHERE session_id = $session_id AND key_hash = $key_hash LIMIT 1);
LET $is_new_session = array::len($existing_link) = 0;

IF array::len($existing_key) > 0 {
	UPDATE ssh_key_intelligence SET
		times_seen += 1,
		unique_sessions += IF $is_new_session THEN 1 ELSE 0 END,
		last_seen = $now
	WHERE key_hash = $key_hash;
} ELSE {
	CREATE ssh_key_intelligence CONTENT {
		key_hash: $key_hash,
		key_type: $key_type,
		key_fingerprint: $fingerprint,
		key_bits: $key_bits,
		comment: $comment,
		times_seen: 1,
		unique_sessions: 1,
		first_seen: $now,
		last_seen: $now
	};
};

IF $is_new_session {
	CREATE session_ssh_keys CONTENT {
		session_id: $session_id,
		key_hash: $key_hash,
		target_path: $target_path,
		extraction_method: $extraction_method,
		observed_at: $now
	};
};
COMMIT TRANSACTION;`

	err := s.exec(ctx, query, map[string]interface{}{
		"session_id":        sessionID,
		"key_hash":          keyHash,
		"key_type":          keyType,
		"fingerprint":       fingerprint,
		"key_bits":          keyBits,
		"comment":           comment,
		"target_path":       targetPath,
		"extraction_method": extractionMethod,
		"now":               now,
	})
	if err != nil {
		s.logger.Error("record ssh key observation failed", zap.Error(err), zap.String("key_hash", keyHash))
		return fmt.Errorf("record ssh key observation %s: %w", keyHash, err)
	}
	return nil
}

// RecordPasswordUsage upserts the per-hash password tracking row and the
// per-session usage row, de-duplicating repeated attempts of the same
// password within one session into a single usage row (last attempt wins).
func (s *Store) RecordPasswordUsage(ctx context.Context, sessionID, passwordHash, username string, success bool, prevalence int, breached bool, timestamp time.Time) error {
	query := `BEGIN TRANSACTION;
LET $existing_tracking = (SELECT * FROM password_intelligence WHERE password_hash = $password_hash LIMIT 1);
LET $existing_usage = (SELECT * FROM password_session_usage WHERE session_id = $session_id AND password_hash = $password_hash LIMIT 1);
LET $is_new_session = array::len($existing_usage) = 0;

IF array::len($existing_tracking) > 0 {
	UPDATE password_intelligence SET
		times_seen += 1,
		unique_sessions += IF $is_new_session THEN 1 ELSE 0 END,
		prevalence = $prevalence,
		breached = $breached,
		last_seen = $timestamp
	WHERE password_hash = $password_hash;
} ELSE {
	CREATE password_intelligence CONTENT {
		password_hash: $password_hash,
		prevalence: $prevalence,
		breached: $breached,
		times_seen: 1,
		unique_sessions: 1,
		first_seen: $timestamp,
		last_seen: $timestamp
	};
};

IF $is_new_session {
	CREATE password_session_usage CONTENT {
		session_id: $session_id,
		password_hash: $password_hash,
		username: $username,
		success: $success,
		timestamp: $timestamp
	};
} ELSE {
	UPDATE password_session_usage SET
		username = $username,
		success = $success,
		timestamp = $timestamp
	WHERE session_id = $session_id AND password_hash = $password_hash;
};
COMMIT TRANSACTION;`

	err := s.exec(ctx, query, map[string]interface{}{
		"session_id":    sessionID,
		"password_hash": passwordHash,
		"username":      username,
		"success":       success,
		"prevalence":    prevalence,
		"breached":      breached,
		"timestamp":     timestamp,
	})
	if err != nil {
		s.logger.Error("record password usage failed", zap.Error(err), zap.String("session_id", sessionID))
		return fmt.Errorf("record password usage %s: %w", sessionID, err)
	}
	return nil
}
