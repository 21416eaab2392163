package models

import "time"

// DeadLetterEvent is a quarantined payload that failed validation during
// ingest (malformed JSON, invalid IP, missing required fields). It is an
// offline-triage sink only; nothing in the core re-processes these rows
// automatically.
type DeadLetterEvent struct {
	ID int64 `json:"id"`

	IngestID     string `json:"ingest_id,omitempty"`
	Source       string `json:"source,omitempty"`
	SourceOffset *int64 `json:"source_offset,omitempty"`

	Reason      string `json:"reason"`
	PayloadJSON string `json:"payload_json"`

	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// SchemaState is a row in the small key/value table tracking schema
// version and deployment flags.
type SchemaState struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
