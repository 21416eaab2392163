package models

import (
	"encoding/json"
	"time"
)

// SessionSummary aggregates one honeypot session plus a frozen enrichment
// snapshot captured at the moment the session was first materialized.
//
// The Snapshot* fields are write-once: they must never be back-updated when
// the live IPInventory row changes later. They are the intended query
// surface for point-in-time analytics; joining source_ip -> IPInventory is
// the intended surface for current-state analytics.
type SessionSummary struct {
	SessionID string `json:"session_id"`

	FirstEventAt time.Time `json:"first_event_at"`
	LastEventAt  time.Time `json:"last_event_at"`

	EventCount          int `json:"event_count"`
	CommandCount        int `json:"command_count"`
	FileDownloads       int `json:"file_downloads"`
	LoginAttempts       int `json:"login_attempts"`
	SSHKeyInjections    int `json:"ssh_key_injections"`
	UniqueSSHKeys       int `json:"unique_ssh_keys"`

	VTFlagged      bool `json:"vt_flagged"`
	DShieldFlagged bool `json:"dshield_flagged"`
	RiskScore      *int `json:"risk_score,omitempty"`

	SourceFiles []string `json:"source_files,omitempty"`

	// Enrichment is the full enrichment document at capture time (a copy
	// of IPInventory.Enrichment for SourceIP as of EnrichmentAt).
	Enrichment map[string]json.RawMessage `json:"enrichment,omitempty"`

	// Snapshot columns — write-once, see CaptureSnapshot.
	SourceIP        string  `json:"source_ip,omitempty"`
	SnapshotASN     *int    `json:"snapshot_asn,omitempty"`
	SnapshotCountry *string `json:"snapshot_country,omitempty"`
	SnapshotIPType  *string `json:"snapshot_ip_type,omitempty"`
	EnrichmentAt    *time.Time `json:"enrichment_at,omitempty"`

	// Behavioral fingerprints, populated by the K-track enrichers.
	SSHKeyFingerprint string `json:"ssh_key_fingerprint,omitempty"`
	PasswordHash      string `json:"password_hash,omitempty"`
	CommandSignature  string `json:"command_signature,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSnapshot reports whether the write-once snapshot columns have already
// been populated. The historical-session backfill job must skip rows where
// this is true.
func (s SessionSummary) HasSnapshot() bool {
	return s.EnrichmentAt != nil
}
