package cascade

import (
	"time"

	"github.com/cowrie-intel/enrichd/internal/enrichment/geoip"
	"github.com/cowrie-intel/enrichd/internal/enrichment/reputation"
	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/models"
)

func toOfflineGeoRecord(rec *geoip.Record, now time.Time) models.OfflineGeoRecord {
	return models.OfflineGeoRecord{
		CountryCode: rec.CountryCode,
		CountryName: rec.CountryName,
		City:        rec.City,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		AccuracyKM:  rec.AccuracyKM,
		ASN:         rec.ASN,
		ASNOrg:      rec.ASNOrg,
		CachedAt:    now,
	}
}

func toWhoisRecord(rec *whois.Record, now time.Time) models.WhoisRecord {
	return models.WhoisRecord{
		ASN:            rec.ASN,
		ASNOrg:         rec.ASNOrg,
		CountryCode:    rec.CountryCode,
		Registry:       rec.Registry,
		Prefix:         rec.Prefix,
		AllocationDate: rec.AllocationDate,
		CachedAt:       now,
	}
}

func toReputationRecord(rec *reputation.Record, now time.Time) models.ReputationRecord {
	var lastSeen *string
	if rec.LastSeen != nil {
		s := rec.LastSeen.Format("2006-01-02")
		lastSeen = &s
	}
	return models.ReputationRecord{
		Noise:          rec.Noise,
		RIOT:           rec.RIOT,
		Classification: rec.Classification,
		Name:           rec.Name,
		LastSeen:       lastSeen,
		CachedAt:       now,
	}
}

// asnDecision is the outcome of the §4.G.2 ASN priority rule: offline-geo
// wins when it has an answer, whois only fills in when offline's ASN is
// null. overwrite is false when neither source ran, leaving the row's
// current_asn untouched; it is true (with asn == nil) only when both
// sources explicitly ran and both reported "unallocated".
type asnDecision struct {
	asn        *int
	verifiedAt *time.Time
	overwrite  bool
}

func resolveASN(now time.Time, offlineRan bool, offlineASN *int, whoisRan bool, whoisASN *int) asnDecision {
	if offlineASN != nil {
		return asnDecision{asn: offlineASN, verifiedAt: &now, overwrite: true}
	}
	if whoisASN != nil {
		return asnDecision{asn: whoisASN, verifiedAt: &now, overwrite: true}
	}
	if offlineRan && whoisRan {
		return asnDecision{overwrite: true}
	}
	return asnDecision{overwrite: false}
}
