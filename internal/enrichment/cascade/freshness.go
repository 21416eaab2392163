package cascade

import (
	"time"

	"github.com/cowrie-intel/enrichd/internal/models"
)

const (
	offlineGeoMaxAge    = 7 * 24 * time.Hour
	whoisStaleAfter     = 90 * 24 * time.Hour
	reputationStaleAfter = 7 * 24 * time.Hour
)

// isFresh implements §4.G.3: a row is fresh iff its enrichment is
// non-empty, it has an offline-geo sub-object backed by a database no
// older than 7 days, and any whois/scanner-reputation sub-objects present
// are within their own TTLs. Missing whois/reputation never forces a
// refresh — they may have legitimately failed or been quota-exhausted.
func isFresh(inv *models.IPInventory, offlineDBAge time.Duration, offlineDBAgeErr error) bool {
	if inv == nil || len(inv.Enrichment) == 0 {
		return false
	}

	if _, hasOffline := inv.Enrichment[models.SourceOfflineGeo]; !hasOffline {
		return false
	}
	if offlineDBAgeErr != nil || offlineDBAge > offlineGeoMaxAge {
		return false
	}

	updatedAt := inv.EnrichmentUpdatedAt
	if _, hasWhois := inv.Enrichment[models.SourceWhois]; hasWhois {
		if updatedAt == nil || time.Since(updatedAt.UTC()) > whoisStaleAfter {
			return false
		}
	}
	if _, hasRep := inv.Enrichment[models.SourceReputation]; hasRep {
		if updatedAt == nil || time.Since(updatedAt.UTC()) > reputationStaleAfter {
			return false
		}
	}

	return true
}
