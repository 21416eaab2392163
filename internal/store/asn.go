package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// EnsureASN is the exclusive write path for asn_inventory (§4.H.1). It is
// race-safe and idempotent: concurrent callers converge on one row because
// the read-modify-write happens inside a SurrealDB transaction, standing in
// for `SELECT ... FOR UPDATE`. Organizational fields are filled only when
// currently empty — they are never overwritten once set.
func (s *Store) EnsureASN(ctx context.Context, asn int, orgName, orgCountry, rir string) (*models.ASNInventory, error) {
	now := time.Now().UTC()

	query := `BEGIN TRANSACTION;
LET $existing = (SELECT * FROM asn_inventory WHERE asn_number = $asn LIMIT 1);
IF array::len($existing) > 0 {
	UPDATE asn_inventory SET
		last_seen = $now,
		organization_name = IF organization_name = "" OR organization_name = NONE THEN $org_name ELSE organization_name END,
		organization_country = IF organization_country = "" OR organization_country = NONE THEN $org_country ELSE organization_country END,
		rir_registry = IF rir_registry = "" OR rir_registry = NONE THEN $rir ELSE rir_registry END
	WHERE asn_number = $asn;
} ELSE {
	CREATE asn_inventory CONTENT {
		asn_number: $asn,
		organization_name: $org_name,
		organization_country: $org_country,
		rir_registry: $rir,
		asn_type: "",
		is_known_hosting: false,
		is_known_vpn: false,
		first_seen: $now,
		last_seen: $now,
		unique_ip_count: 0,
		total_session_count: 0,
		enrichment: {}
	};
};
RETURN (SELECT * FROM asn_inventory WHERE asn_number = $asn LIMIT 1);
COMMIT TRANSACTION;`

	rows, err := queryOne[models.ASNInventory](ctx, s.db, query, map[string]interface{}{
		"asn":         asn,
		"org_name":    orgName,
		"org_country": orgCountry,
		"rir":         rir,
		"now":         now,
	})
	if err != nil {
		s.logger.Error("ensure asn failed", zap.Error(err), zap.Int("asn", asn))
		return nil, fmt.Errorf("ensure asn %d: %w", asn, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ensure asn %d: no row returned", asn)
	}
	return &rows[0], nil
}

// GetASN reads the current asn_inventory row without locking.
func (s *Store) GetASN(ctx context.Context, asn int) (*models.ASNInventory, error) {
	rows, err := queryOne[models.ASNInventory](ctx, s.db,
		`SELECT * FROM asn_inventory WHERE asn_number = $asn LIMIT 1`,
		map[string]interface{}{"asn": asn})
	if err != nil {
		return nil, fmt.Errorf("get asn %d: %w", asn, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// TouchASNCounters increments unique_ip_count / total_session_count for an
// ASN; called by the cascade when it attributes a new or returning IP.
func (s *Store) TouchASNCounters(ctx context.Context, asn int, newIP bool, sessionDelta int) error {
	query := `UPDATE asn_inventory SET
		total_session_count += $session_delta,
		unique_ip_count += $ip_delta
		WHERE asn_number = $asn`
	ipDelta := 0
	if newIP {
		ipDelta = 1
	}
	return s.exec(ctx, query, map[string]interface{}{
		"asn":           asn,
		"session_delta": sessionDelta,
		"ip_delta":      ipDelta,
	})
}
