// Package store persists the enrichment core's tables
// (raw_events, session_summaries, ip_inventory, asn_inventory,
// ip_asn_history, dead_letter_events, schema_state) against SurrealDB,
// generalizing the teacher's internal/db package from a scan/vuln graph
// schema to this one.
package store

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"go.uber.org/zap"
)

// Store wraps a SurrealDB connection and the logger the rest of the
// package's files operate against.
type Store struct {
	db     *surrealdb.DB
	logger *zap.Logger
}

// Config describes how to connect and which namespace/database to select.
type Config struct {
	URL       string
	Namespace string
	Database  string
	User      string
	Pass      string
}

// Open connects to SurrealDB, signs in, and selects the namespace/database.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	db, err := surrealdb.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.User,
		"pass": cfg.Pass,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("sign in to store: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("select namespace/database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// queryOne runs a query expected to produce exactly one statement result
// and returns its typed rows, surfacing both transport and query-level
// errors the way the teacher's internal/db package does.
func queryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]interface{}) ([]T, error) {
	result, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if result == nil || len(*result) == 0 {
		return nil, nil
	}
	stmt := (*result)[0]
	if stmt.Error != nil {
		return nil, fmt.Errorf("query error: %w", stmt.Error)
	}
	return stmt.Result, nil
}

// exec runs a mutation query (CREATE/UPDATE/DELETE) and surfaces any
// query-level error; it discards the row payload.
func (s *Store) exec(ctx context.Context, query string, params map[string]interface{}) error {
	result, err := surrealdb.Query[[]map[string]interface{}](ctx, s.db, query, params)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if result != nil && len(*result) > 0 && (*result)[0].Error != nil {
		return fmt.Errorf("query error: %w", (*result)[0].Error)
	}
	return nil
}
