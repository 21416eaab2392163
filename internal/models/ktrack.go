package models

import "time"

// FileReputationRecord is the file-reputation provider's answer for one
// SHA-256 hash.
type FileReputationRecord struct {
	Classification string    `json:"classification"`
	Malicious      bool      `json:"malicious"`
	PositiveRatio  float64   `json:"positive_ratio"`
	FirstSeen      *time.Time `json:"first_seen,omitempty"`
	CachedAt       time.Time `json:"cached_at"`
}

// FileIntelligence is a per-(session, sha256) row carrying the file's
// reputation lookup result.
type FileIntelligence struct {
	SessionID      string  `json:"session_id"`
	SHA256         string  `json:"sha256"`
	Filename       string  `json:"filename,omitempty"`
	DownloadURL    string  `json:"download_url,omitempty"`
	Classification string  `json:"classification"`
	PositiveRatio  float64 `json:"positive_ratio"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// SSHKeyIntelligence is a per-key-hash row deduplicating SSH public keys
// observed across sessions, with the fingerprint and size estimate computed
// at extraction time.
type SSHKeyIntelligence struct {
	KeyHash        string `json:"key_hash"`
	KeyType        string `json:"key_type"`
	KeyFingerprint string `json:"key_fingerprint"`
	KeyBits        *int   `json:"key_bits,omitempty"`
	Comment        string `json:"comment,omitempty"`

	TimesSeen     int `json:"times_seen"`
	UniqueSessions int `json:"unique_sessions"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// SessionSSHKeyLink is an append-only session-to-key observation: one row
// per (session, key) pair, written the first time that session observes
// that key; later extractions of the same key in the session add no row.
type SessionSSHKeyLink struct {
	SessionID         string    `json:"session_id"`
	KeyHash           string    `json:"key_hash"`
	TargetPath        string    `json:"target_path,omitempty"`
	ExtractionMethod  string    `json:"extraction_method"`
	ObservedAt        time.Time `json:"observed_at"`
}

// PasswordIntelligence is a per-SHA-1-hash row tracking how often a
// submitted password has been observed across all sessions, plus the
// breach-prevalence count from the hash-prefix service.
type PasswordIntelligence struct {
	PasswordHash   string `json:"password_hash"`
	Prevalence     int    `json:"prevalence"`
	Breached       bool   `json:"breached"`
	TimesSeen      int    `json:"times_seen"`
	UniqueSessions int    `json:"unique_sessions"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// PasswordSessionUsage is one session's use of a tracked password,
// deduplicated so repeated attempts in the same session update rather than
// multiply rows.
type PasswordSessionUsage struct {
	SessionID    string    `json:"session_id"`
	PasswordHash string    `json:"password_hash"`
	Username     string    `json:"username,omitempty"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}
