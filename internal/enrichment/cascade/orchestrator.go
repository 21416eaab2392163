// Package cascade coordinates the offline-geo, whois, and
// scanner-reputation providers into a single IPInventory row per IP
// (§4.G), plus the batch staleness/backfill operations that keep rows
// current (§4.I). Orchestration shape follows the teacher's
// internal/workflows/enrich_asn.go / enrich_geo.go sequencing (read
// before deletion, see DESIGN.md) generalized from a two-step job into a
// three-provider cascade.
package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/enrichment/geoip"
	"github.com/cowrie-intel/enrichd/internal/enrichment/reputation"
	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/models"
)

// enrichmentVersion is stamped on every row the cascade touches, carried
// from the original's schema-version marker (test_three_tier_models.py).
const enrichmentVersion = "1"

// GeoClient is the capability surface the cascade needs from the offline
// geo/ASN provider (§4.D). *geoip.Client satisfies this.
type GeoClient interface {
	Lookup(ip string) (*geoip.Record, error)
	DatabaseAge() (time.Duration, error)
}

// WhoisClient is the capability surface needed from the ASN whois
// provider (§4.E). *whois.Client satisfies this.
type WhoisClient interface {
	Lookup(ctx context.Context, ip string) (*whois.Record, error)
}

// ReputationClient is the capability surface needed from the
// scanner-reputation provider (§4.F). *reputation.Client satisfies this.
// A nil Record with a nil error means "no enrichment available" (disabled
// client or exhausted quota), not a failure.
type ReputationClient interface {
	Lookup(ctx context.Context, ip string) (*reputation.Record, error)
}

// Store is the subset of internal/store.Store the cascade depends on.
// *store.Store satisfies this structurally.
type Store interface {
	GetIPInventory(ctx context.Context, ip string) (*models.IPInventory, error)
	InsertIPInventory(ctx context.Context, inv models.IPInventory) (*models.IPInventory, error)
	UpdateIPInventory(ctx context.Context, inv models.IPInventory) (*models.IPInventory, error)
	PatchIPEnrichmentSource(ctx context.Context, ip string, source string, record json.RawMessage, newASN *int, asnVerifiedAt *time.Time) (*models.IPInventory, error)
	EnsureASN(ctx context.Context, asn int, orgName, orgCountry, rir string) (*models.ASNInventory, error)
	TouchASNCounters(ctx context.Context, asn int, newIP bool, sessionDelta int) error
	SelectMissingASN(ctx context.Context, limit int) ([]models.IPInventory, error)
	SelectStaleBySource(ctx context.Context, source string, cutoff time.Time, limit int) ([]models.IPInventory, error)
	AppendASNHistory(ctx context.Context, h models.IPASNHistory) error
}

// Orchestrator is the cascade orchestrator (§4.G). Each provider failure
// is logged and the cascade continues with the remaining sources; a
// catastrophic failure across all three steps falls back to the existing
// row, or a minimal inventory row when none exists yet (§4.G.1 step 5).
type Orchestrator struct {
	store      Store
	geo        GeoClient
	whois      WhoisClient
	reputation ReputationClient
	logger     *zap.Logger
	stats      *Stats
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(o *Orchestrator) { o.logger = logger } }

// New constructs an Orchestrator.
func New(store Store, geo GeoClient, whoisClient WhoisClient, rep ReputationClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		geo:        geo,
		whois:      whoisClient,
		reputation: rep,
		logger:     zap.NewNop(),
		stats:      newStats(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats returns the orchestrator's running counters.
func (o *Orchestrator) Stats() StatsSnapshot { return o.stats.Snapshot() }

// cascadeResult is the in-memory merge buffer built by runProviders before
// it is written to the store (§4.G.1 step 6).
type cascadeResult struct {
	enrichment map[string]json.RawMessage
	asn        asnDecision
}

// EnrichIP produces or refreshes the IPInventory row for ip (§4.G.1).
func (o *Orchestrator) EnrichIP(ctx context.Context, ip string) (*models.IPInventory, error) {
	o.stats.incTotal()

	existing, err := o.store.GetIPInventory(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("enrich ip %s: probe inventory: %w", ip, err)
	}

	offlineAge, ageErr := o.geo.DatabaseAge()
	if existing != nil && isFresh(existing, offlineAge, ageErr) {
		o.stats.incCacheHit()
		return existing, nil
	}

	result, provErr := o.runProviders(ctx, ip)
	if provErr != nil {
		o.stats.incError()
		o.logger.Error("cascade enrichment failed, falling back", zap.String("ip", ip), zap.Error(provErr))
		if existing != nil {
			return existing, nil
		}
		return o.minimalInventory(ctx, ip)
	}

	return o.writeResult(ctx, ip, existing, result)
}

// runProviders executes the offline, whois, and reputation steps
// sequentially (§5 "Ordering": within one IP's cascade, steps execute in
// order). A recover() backstops the "any-failure fallback" contract of
// §4.G.1 step 5 against an unexpected panic deep in a provider client.
func (o *Orchestrator) runProviders(ctx context.Context, ip string) (result cascadeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cascade panic: %v", r)
		}
	}()

	result.enrichment = map[string]json.RawMessage{}
	now := time.Now().UTC()

	offlineRec, offlineErr := o.geo.Lookup(ip)
	if offlineErr != nil {
		o.logger.Warn("offline geo lookup failed", zap.String("ip", ip), zap.Error(offlineErr))
		o.stats.incError()
	} else if offlineRec != nil {
		raw, merr := json.Marshal(toOfflineGeoRecord(offlineRec, now))
		if merr != nil {
			return result, fmt.Errorf("marshal offline-geo record: %w", merr)
		}
		result.enrichment[models.SourceOfflineGeo] = raw
		o.stats.incSourceHit(models.SourceOfflineGeo)
		if offlineRec.ASN != nil {
			o.ensureASNRow(ctx, *offlineRec.ASN, offlineRec.ASNOrg, "", "")
		}
	}

	offlineRan := offlineErr == nil && offlineRec != nil
	var offlineASN *int
	if offlineRan {
		offlineASN = offlineRec.ASN
	}

	var whoisRan bool
	var whoisASN *int
	if offlineErr != nil || offlineRec == nil || offlineRec.ASN == nil {
		whoisRec, whoisErr := o.whois.Lookup(ctx, ip)
		switch {
		case whoisErr == nil && whoisRec != nil:
			raw, merr := json.Marshal(toWhoisRecord(whoisRec, now))
			if merr != nil {
				return result, fmt.Errorf("marshal whois record: %w", merr)
			}
			result.enrichment[models.SourceWhois] = raw
			o.stats.incSourceHit(models.SourceWhois)
			whoisRan = true
			whoisASN = whoisRec.ASN
			if whoisRec.ASN != nil && (offlineASN == nil) {
				o.ensureASNRow(ctx, *whoisRec.ASN, whoisRec.ASNOrg, whoisRec.CountryCode, whoisRec.Registry)
			}
		case errors.Is(whoisErr, whois.ErrAbsent):
			o.logger.Debug("whois absent", zap.String("ip", ip))
			whoisRan = true
		case whoisErr != nil:
			o.logger.Warn("whois lookup failed", zap.String("ip", ip), zap.Error(whoisErr))
			o.stats.incError()
		}
	}

	result.asn = resolveASN(now, offlineRan, offlineASN, whoisRan, whoisASN)

	repRec, repErr := o.reputation.Lookup(ctx, ip)
	if repErr != nil {
		o.logger.Warn("scanner reputation lookup failed", zap.String("ip", ip), zap.Error(repErr))
		o.stats.incError()
	} else if repRec != nil {
		raw, merr := json.Marshal(toReputationRecord(repRec, now))
		if merr != nil {
			return result, fmt.Errorf("marshal scanner-reputation record: %w", merr)
		}
		result.enrichment[models.SourceReputation] = raw
		o.stats.incSourceHit(models.SourceReputation)
	}

	return result, nil
}

func (o *Orchestrator) ensureASNRow(ctx context.Context, asn int, orgName, orgCountry, rir string) {
	if _, err := o.store.EnsureASN(ctx, asn, orgName, orgCountry, rir); err != nil {
		o.logger.Warn("ensure asn row failed", zap.Int("asn", asn), zap.Error(err))
		return
	}
	o.stats.incASNUpsert()
}

// writeResult merges result into the existing row (or a new one) and
// writes it, handling the insert-race re-read of §4.G.1 step 7.
func (o *Orchestrator) writeResult(ctx context.Context, ip string, existing *models.IPInventory, result cascadeResult) (*models.IPInventory, error) {
	now := time.Now().UTC()

	if existing == nil {
		inv := models.IPInventory{
			IPAddress:           ip,
			FirstSeen:           now,
			LastSeen:            now,
			SessionCount:        1,
			Enrichment:          result.enrichment,
			EnrichmentUpdatedAt: &now,
			EnrichmentVersion:   enrichmentVersion,
		}
		if result.asn.overwrite {
			inv.CurrentASN = result.asn.asn
			inv.ASNLastVerified = result.asn.verifiedAt
		}

		created, err := o.store.InsertIPInventory(ctx, inv)
		if err != nil {
			reread, rerr := o.store.GetIPInventory(ctx, ip)
			if rerr == nil && reread != nil {
				o.logger.Debug("insert race lost, returning competing row", zap.String("ip", ip))
				return reread, nil
			}
			return nil, fmt.Errorf("enrich ip %s: insert: %w", ip, err)
		}
		o.touchASNCounters(ctx, created.CurrentASN, true, 1)
		return created, nil
	}

	updated := *existing
	merged := map[string]json.RawMessage{}
	for k, v := range existing.Enrichment {
		merged[k] = v
	}
	for k, v := range result.enrichment {
		merged[k] = v
	}
	updated.Enrichment = merged
	updated.EnrichmentUpdatedAt = &now
	updated.EnrichmentVersion = enrichmentVersion
	updated.LastSeen = now
	updated.SessionCount++
	if result.asn.overwrite {
		updated.CurrentASN = result.asn.asn
		updated.ASNLastVerified = result.asn.verifiedAt
	}

	saved, err := o.store.UpdateIPInventory(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("enrich ip %s: update: %w", ip, err)
	}
	o.touchASNCounters(ctx, saved.CurrentASN, false, 1)
	return saved, nil
}

// touchASNCounters attributes one session (and, for a brand new IP row,
// one unique IP) to asn's rolling counters. A nil ASN means no ASN has
// been attributed to the row yet, so there is nothing to touch.
func (o *Orchestrator) touchASNCounters(ctx context.Context, asn *int, newIP bool, sessionDelta int) {
	if asn == nil {
		return
	}
	if err := o.store.TouchASNCounters(ctx, *asn, newIP, sessionDelta); err != nil {
		o.logger.Warn("touch asn counters failed", zap.Int("asn", *asn), zap.Error(err))
	}
}

// minimalInventory is the §4.G.1 step 5 fallback when every provider
// failed and no prior row exists: an empty-enrichment placeholder so the
// session/inventory pipeline still has a row to reference.
func (o *Orchestrator) minimalInventory(ctx context.Context, ip string) (*models.IPInventory, error) {
	now := time.Now().UTC()
	inv := models.IPInventory{
		IPAddress:           ip,
		FirstSeen:           now,
		LastSeen:            now,
		SessionCount:        1,
		Enrichment:          map[string]json.RawMessage{},
		EnrichmentUpdatedAt: &now,
		EnrichmentVersion:   enrichmentVersion,
	}
	created, err := o.store.InsertIPInventory(ctx, inv)
	if err != nil {
		reread, rerr := o.store.GetIPInventory(ctx, ip)
		if rerr == nil && reread != nil {
			return reread, nil
		}
		return nil, fmt.Errorf("enrich ip %s: minimal inventory insert: %w", ip, err)
	}
	return created, nil
}
