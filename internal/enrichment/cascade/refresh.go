package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/models"
)

// RefreshStaleData re-runs the named source (or "all"/"" for every
// refreshable source) against rows whose enrichment has gone stale
// (§4.G.4, §4.I). It returns the number of rows refreshed per source.
func (o *Orchestrator) RefreshStaleData(ctx context.Context, source string, limit int) (map[string]int, error) {
	var sources []string
	switch source {
	case "", "all":
		sources = []string{models.SourceWhois, models.SourceReputation}
	case models.SourceWhois, models.SourceReputation:
		sources = []string{source}
	default:
		return nil, fmt.Errorf("refresh stale data: unknown source %q", source)
	}

	results := make(map[string]int, len(sources))
	for _, src := range sources {
		n, err := o.refreshSource(ctx, src, limit)
		if err != nil {
			return results, fmt.Errorf("refresh stale data %s: %w", src, err)
		}
		results[src] = n
	}
	return results, nil
}

func ttlFor(source string) time.Duration {
	switch source {
	case models.SourceWhois:
		return whoisStaleAfter
	case models.SourceReputation:
		return reputationStaleAfter
	}
	return 0
}

func (o *Orchestrator) refreshSource(ctx context.Context, source string, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-ttlFor(source))
	rows, err := o.store.SelectStaleBySource(ctx, source, cutoff, limit)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, row := range rows {
		if err := o.refreshOne(ctx, row, source); err != nil {
			o.logger.Warn("refresh stale row failed, skipping",
				zap.String("ip", row.IPAddress), zap.String("source", source), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (o *Orchestrator) refreshOne(ctx context.Context, row models.IPInventory, source string) error {
	now := time.Now().UTC()

	switch source {
	case models.SourceWhois:
		return o.refreshWhois(ctx, row, now)
	case models.SourceReputation:
		return o.refreshReputation(ctx, row, now)
	default:
		return fmt.Errorf("refresh stale: unsupported source %q", source)
	}
}

func (o *Orchestrator) refreshWhois(ctx context.Context, row models.IPInventory, now time.Time) error {
	rec, err := o.whois.Lookup(ctx, row.IPAddress)
	if err != nil {
		if errors.Is(err, whois.ErrAbsent) {
			return nil
		}
		return err
	}

	raw, err := json.Marshal(toWhoisRecord(rec, now))
	if err != nil {
		return err
	}

	var newASN *int
	var verifiedAt *time.Time
	if rec.ASN != nil {
		newASN = rec.ASN
		verifiedAt = &now

		if row.CurrentASN == nil || *row.CurrentASN != *rec.ASN {
			if err := o.store.AppendASNHistory(ctx, models.IPASNHistory{
				IPAddress:          row.IPAddress,
				ASNNumber:          *rec.ASN,
				ObservedAt:         now,
				VerificationSource: "whois",
			}); err != nil {
				o.logger.Warn("append asn history failed", zap.String("ip", row.IPAddress), zap.Error(err))
			}
		}
		o.ensureASNRow(ctx, *rec.ASN, rec.ASNOrg, rec.CountryCode, rec.Registry)
	}

	_, err = o.store.PatchIPEnrichmentSource(ctx, row.IPAddress, models.SourceWhois, raw, newASN, verifiedAt)
	return err
}

func (o *Orchestrator) refreshReputation(ctx context.Context, row models.IPInventory, now time.Time) error {
	rec, err := o.reputation.Lookup(ctx, row.IPAddress)
	if err != nil {
		return err
	}
	if rec == nil {
		// quota exhausted or the client is disabled — not a failure.
		return nil
	}

	raw, err := json.Marshal(toReputationRecord(rec, now))
	if err != nil {
		return err
	}

	_, err = o.store.PatchIPEnrichmentSource(ctx, row.IPAddress, models.SourceReputation, raw, nil, nil)
	return err
}
