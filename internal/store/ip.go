package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// GetIPInventory reads the current ip_inventory row by primary key.
func (s *Store) GetIPInventory(ctx context.Context, ip string) (*models.IPInventory, error) {
	rows, err := queryOne[models.IPInventory](ctx, s.db,
		`SELECT * FROM ip_inventory WHERE ip_address = $ip LIMIT 1`,
		map[string]interface{}{"ip": ip})
	if err != nil {
		return nil, fmt.Errorf("get ip inventory %s: %w", ip, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// InsertIPInventory creates a new row (§4.G.1 step 6, new-row branch). A
// unique-index conflict on ip_address surfaces as a query error; callers
// must treat that as "competing writer won" and re-read (§4.G.1 step 7).
func (s *Store) InsertIPInventory(ctx context.Context, inv models.IPInventory) (*models.IPInventory, error) {
	rows, err := queryOne[models.IPInventory](ctx, s.db, `CREATE ip_inventory CONTENT {
		ip_address: $ip_address,
		current_asn: $current_asn,
		asn_last_verified: $asn_last_verified,
		first_seen: $first_seen,
		last_seen: $last_seen,
		session_count: $session_count,
		enrichment: $enrichment,
		enrichment_updated_at: $enrichment_updated_at,
		enrichment_version: $enrichment_version
	}`, map[string]interface{}{
		"ip_address":             inv.IPAddress,
		"current_asn":            inv.CurrentASN,
		"asn_last_verified":      inv.ASNLastVerified,
		"first_seen":             inv.FirstSeen,
		"last_seen":              inv.LastSeen,
		"session_count":          inv.SessionCount,
		"enrichment":             inv.Enrichment,
		"enrichment_updated_at":  inv.EnrichmentUpdatedAt,
		"enrichment_version":     inv.EnrichmentVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("insert ip inventory: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert ip inventory: no row returned")
	}
	return &rows[0], nil
}

// UpdateIPInventory replaces the enrichment document and derived columns
// on an existing row (§4.G.1 step 6, existing-row branch). Per §4.G.2
// sub-objects are swapped wholesale, never field-merged, so the caller
// passes the complete merged enrichment map.
func (s *Store) UpdateIPInventory(ctx context.Context, inv models.IPInventory) (*models.IPInventory, error) {
	rows, err := queryOne[models.IPInventory](ctx, s.db, `UPDATE ip_inventory SET
		current_asn = $current_asn,
		asn_last_verified = $asn_last_verified,
		last_seen = $last_seen,
		session_count = $session_count,
		enrichment = $enrichment,
		enrichment_updated_at = $enrichment_updated_at,
		enrichment_version = $enrichment_version
		WHERE ip_address = $ip_address`, map[string]interface{}{
		"ip_address":            inv.IPAddress,
		"current_asn":           inv.CurrentASN,
		"asn_last_verified":     inv.ASNLastVerified,
		"last_seen":             inv.LastSeen,
		"session_count":         inv.SessionCount,
		"enrichment":            inv.Enrichment,
		"enrichment_updated_at": inv.EnrichmentUpdatedAt,
		"enrichment_version":    inv.EnrichmentVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("update ip inventory %s: %w", inv.IPAddress, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("update ip inventory %s: no row returned", inv.IPAddress)
	}
	return &rows[0], nil
}

// PatchIPEnrichmentSource replaces exactly one provider sub-object on an
// existing row and, when newASN is non-nil, sets current_asn to it and
// asn_last_verified to asnVerifiedAt, whichever source is patched. Used by the
// staleness/backfill engine (§4.G.4), which must only touch the one
// sub-object it re-fetched. The enrichment map is re-marshaled as a whole
// on write (field-level JSON patching is not something SurrealDB does in
// place reliably), which is the "mark dirty" requirement from §4.G.4.
func (s *Store) PatchIPEnrichmentSource(ctx context.Context, ip string, source string, record json.RawMessage, newASN *int, asnVerifiedAt *time.Time) (*models.IPInventory, error) {
	current, err := s.GetIPInventory(ctx, ip)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("patch ip enrichment %s: row not found", ip)
	}

	if current.Enrichment == nil {
		current.Enrichment = map[string]json.RawMessage{}
	}
	current.Enrichment[source] = record

	now := time.Now().UTC()
	current.EnrichmentUpdatedAt = &now
	if newASN != nil {
		current.CurrentASN = newASN
		current.ASNLastVerified = asnVerifiedAt
	}

	updated, err := s.UpdateIPInventory(ctx, *current)
	if err != nil {
		s.logger.Error("patch ip enrichment source failed", zap.Error(err), zap.String("ip", ip), zap.String("source", source))
		return nil, err
	}
	return updated, nil
}

// SelectMissingASN returns up to limit rows with a null current_asn, for
// the backfill engine (§4.G.4).
func (s *Store) SelectMissingASN(ctx context.Context, limit int) ([]models.IPInventory, error) {
	rows, err := queryOne[models.IPInventory](ctx, s.db,
		`SELECT * FROM ip_inventory WHERE current_asn IS NONE LIMIT $limit`,
		map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("select missing asn: %w", err)
	}
	return rows, nil
}

// SelectStaleBySource returns up to limit rows whose enrichment already
// contains source's sub-object but whose enrichment_updated_at predates
// the cutoff — "only refresh what we previously had" (§4.G.4).
func (s *Store) SelectStaleBySource(ctx context.Context, source string, cutoff time.Time, limit int) ([]models.IPInventory, error) {
	rows, err := queryOne[models.IPInventory](ctx, s.db,
		`SELECT * FROM ip_inventory WHERE enrichment_updated_at < $cutoff AND enrichment[$source] != NONE LIMIT $limit`,
		map[string]interface{}{"cutoff": cutoff.UTC(), "source": source, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("select stale by source %s: %w", source, err)
	}
	return rows, nil
}

// AppendASNHistory records an observed ASN change for an IP. Called by the
// refresh engine whenever whois returns an ASN different from the row's
// current_asn (§4.I).
func (s *Store) AppendASNHistory(ctx context.Context, h models.IPASNHistory) error {
	if h.ObservedAt.IsZero() {
		h.ObservedAt = time.Now().UTC()
	}
	return s.exec(ctx, `CREATE ip_asn_history CONTENT {
		ip_address: $ip_address,
		asn_number: $asn_number,
		observed_at: $observed_at,
		verification_source: $verification_source
	}`, map[string]interface{}{
		"ip_address":           h.IPAddress,
		"asn_number":           h.ASNNumber,
		"observed_at":          h.ObservedAt,
		"verification_source":  h.VerificationSource,
	})
}

// IPASNHistoryFor returns the append-only ASN history for one IP, oldest
// first.
func (s *Store) IPASNHistoryFor(ctx context.Context, ip string) ([]models.IPASNHistory, error) {
	rows, err := queryOne[models.IPASNHistory](ctx, s.db,
		`SELECT * FROM ip_asn_history WHERE ip_address = $ip ORDER BY observed_at ASC`,
		map[string]interface{}{"ip": ip})
	if err != nil {
		return nil, fmt.Errorf("ip asn history %s: %w", ip, err)
	}
	return rows, nil
}
