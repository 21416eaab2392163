package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// CurrentSchemaVersion is written to schema_state on first run and checked
// by callers that need to refuse to operate against an older store.
const CurrentSchemaVersion = "1"

const schemaVersionKey = "schema_version"

// EnsureSchemaState writes the schema_version row if absent, mirroring
// cowrieprocessor.db.models.SchemaState's singleton-row convention.
func (s *Store) EnsureSchemaState(ctx context.Context) error {
	rows, err := queryOne[models.SchemaState](ctx, s.db,
		`SELECT * FROM schema_state WHERE key = $key LIMIT 1`,
		map[string]interface{}{"key": schemaVersionKey})
	if err != nil {
		return fmt.Errorf("read schema state: %w", err)
	}
	if len(rows) > 0 {
		return nil
	}

	if err := s.exec(ctx,
		`CREATE schema_state CONTENT { key: $key, value: $value }`,
		map[string]interface{}{"key": schemaVersionKey, "value": CurrentSchemaVersion}); err != nil {
		return fmt.Errorf("write schema state: %w", err)
	}

	s.logger.Info("schema state initialized", zap.String("version", CurrentSchemaVersion))
	return nil
}

// SchemaVersion returns the currently recorded schema version, or "" if
// the store has never been initialized.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	rows, err := queryOne[models.SchemaState](ctx, s.db,
		`SELECT * FROM schema_state WHERE key = $key LIMIT 1`,
		map[string]interface{}{"key": schemaVersionKey})
	if err != nil {
		return "", fmt.Errorf("read schema state: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Value, nil
}
