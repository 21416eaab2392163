// Package session implements session snapshot capture (§4.J): invoking
// the enrichment cascade for a session's source IP and freezing the
// result into the session row's write-once snapshot columns.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// Cascade is the capability the capturer needs from the enrichment
// orchestrator. *cascade.Orchestrator satisfies this.
type Cascade interface {
	EnrichIP(ctx context.Context, ip string) (*models.IPInventory, error)
}

// Store is the subset of internal/store.Store the capturer depends on.
type Store interface {
	GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	ApplySnapshot(ctx context.Context, sessionID string, asn *int, country, ipType *string, enrichment map[string]interface{}, enrichmentAt time.Time) error
	SelectSessionsMissingSnapshot(ctx context.Context, limit int) ([]models.SessionSummary, error)
}

// Capturer populates session snapshot columns from the cascade's current
// view of a session's source IP.
type Capturer struct {
	store   Store
	cascade Cascade
	logger  *zap.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(c *Capturer) { c.logger = logger } }

// New constructs a Capturer.
func New(store Store, cascade Cascade, opts ...Option) *Capturer {
	c := &Capturer{store: store, cascade: cascade, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CaptureSnapshot enriches sourceIP and writes the resulting snapshot
// columns onto the session row, once. If the row already carries a
// snapshot (HasSnapshot), this is a no-op — the columns are write-once
// and must never be back-updated by a later session from the same IP.
func (c *Capturer) CaptureSnapshot(ctx context.Context, sessionID, sourceIP string) error {
	sess, err := c.store.GetSessionSummary(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("capture snapshot: get session %s: %w", sessionID, err)
	}
	if sess == nil {
		return fmt.Errorf("capture snapshot: session %s not found", sessionID)
	}
	if sess.HasSnapshot() {
		c.logger.Debug("session already has a snapshot, skipping", zap.String("session_id", sessionID))
		return nil
	}

	inv, err := c.cascade.EnrichIP(ctx, sourceIP)
	if err != nil {
		return fmt.Errorf("capture snapshot: enrich ip %s: %w", sourceIP, err)
	}

	enrichment, err := rawMapToInterfaceMap(inv.Enrichment)
	if err != nil {
		return fmt.Errorf("capture snapshot: decode enrichment: %w", err)
	}

	country := inv.GeoCountry()
	ipType := inv.IPType()
	now := time.Now().UTC()

	if err := c.store.ApplySnapshot(ctx, sessionID, inv.CurrentASN, &country, &ipType, enrichment, now); err != nil {
		return fmt.Errorf("capture snapshot: apply %s: %w", sessionID, err)
	}
	return nil
}

// BackfillHistoricalSessions runs CaptureSnapshot for up to limit session
// rows missing a snapshot. Each row goes through the enrichment cascade: a
// fresh inventory row is copied as is, while a stale or missing one is
// re-enriched from the providers first. Rows that already gained a
// snapshot (a concurrent capture won) are skipped, not double-written.
func (c *Capturer) BackfillHistoricalSessions(ctx context.Context, limit int) (int, error) {
	rows, err := c.store.SelectSessionsMissingSnapshot(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("backfill historical sessions: select: %w", err)
	}

	backfilled := 0
	for _, row := range rows {
		if row.HasSnapshot() {
			continue
		}
		if err := c.CaptureSnapshot(ctx, row.SessionID, row.SourceIP); err != nil {
			c.logger.Warn("backfill session snapshot failed, skipping",
				zap.String("session_id", row.SessionID), zap.Error(err))
			continue
		}
		backfilled++
	}
	return backfilled, nil
}

func rawMapToInterfaceMap(m map[string]json.RawMessage) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}
