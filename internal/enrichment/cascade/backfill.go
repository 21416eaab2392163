package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
	"github.com/cowrie-intel/enrichd/internal/models"
)

// BackfillMissingASNs selects up to limit rows with a null current_asn
// and attempts a whois lookup for each (§4.G.4, §4.I). Failures are
// skipped, not retried inline; the row count successfully patched is
// returned. Safe to run repeatedly.
func (o *Orchestrator) BackfillMissingASNs(ctx context.Context, limit int) (int, error) {
	rows, err := o.store.SelectMissingASN(ctx, limit)
	if err != nil {
		return 0, err
	}

	patched := 0
	for _, row := range rows {
		ok, err := o.backfillOne(ctx, row)
		if err != nil {
			o.logger.Warn("backfill asn failed, skipping", zap.String("ip", row.IPAddress), zap.Error(err))
			continue
		}
		if ok {
			patched++
		}
	}
	return patched, nil
}

// backfillOne returns (false, nil) when whois had no answer (absent) —
// not a failure, just nothing to patch this round.
func (o *Orchestrator) backfillOne(ctx context.Context, row models.IPInventory) (bool, error) {
	rec, err := o.whois.Lookup(ctx, row.IPAddress)
	if err != nil {
		if errors.Is(err, whois.ErrAbsent) {
			return false, nil
		}
		return false, err
	}
	if rec == nil || rec.ASN == nil {
		return false, nil
	}

	now := time.Now().UTC()
	raw, err := json.Marshal(toWhoisRecord(rec, now))
	if err != nil {
		return false, err
	}

	o.ensureASNRow(ctx, *rec.ASN, rec.ASNOrg, rec.CountryCode, rec.Registry)

	if _, err := o.store.PatchIPEnrichmentSource(ctx, row.IPAddress, models.SourceWhois, raw, rec.ASN, &now); err != nil {
		return false, err
	}
	return true, nil
}
