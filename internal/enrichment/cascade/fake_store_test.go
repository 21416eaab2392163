package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cowrie-intel/enrichd/internal/models"
)

// fakeStore is an in-memory double for internal/store.Store, sufficient to
// exercise the cascade's merge/freshness/race-handling logic without a
// live SurrealDB instance.
type fakeStore struct {
	mu      sync.Mutex
	ipRows  map[string]models.IPInventory
	asnRows map[int]models.ASNInventory
	history []models.IPASNHistory

	// winRaceOnInsert, if set, makes the next InsertIPInventory for that
	// IP fail as though a concurrent writer already created the row.
	winRaceOnInsert map[string]models.IPInventory
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ipRows:          map[string]models.IPInventory{},
		asnRows:         map[int]models.ASNInventory{},
		winRaceOnInsert: map[string]models.IPInventory{},
	}
}

func (f *fakeStore) GetIPInventory(ctx context.Context, ip string) (*models.IPInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.ipRows[ip]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (f *fakeStore) InsertIPInventory(ctx context.Context, inv models.IPInventory) (*models.IPInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if winner, ok := f.winRaceOnInsert[inv.IPAddress]; ok {
		f.ipRows[inv.IPAddress] = winner
		delete(f.winRaceOnInsert, inv.IPAddress)
		return nil, fmt.Errorf("unique constraint violation on ip_address")
	}
	if _, exists := f.ipRows[inv.IPAddress]; exists {
		return nil, fmt.Errorf("unique constraint violation on ip_address")
	}
	f.ipRows[inv.IPAddress] = inv
	cp := inv
	return &cp, nil
}

func (f *fakeStore) UpdateIPInventory(ctx context.Context, inv models.IPInventory) (*models.IPInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.ipRows[inv.IPAddress]; !exists {
		return nil, fmt.Errorf("update ip inventory: no such row %s", inv.IPAddress)
	}
	f.ipRows[inv.IPAddress] = inv
	cp := inv
	return &cp, nil
}

func (f *fakeStore) PatchIPEnrichmentSource(ctx context.Context, ip string, source string, record json.RawMessage, newASN *int, asnVerifiedAt *time.Time) (*models.IPInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.ipRows[ip]
	if !ok {
		return nil, fmt.Errorf("patch ip enrichment: no such row %s", ip)
	}
	if row.Enrichment == nil {
		row.Enrichment = map[string]json.RawMessage{}
	}
	row.Enrichment[source] = record
	now := time.Now().UTC()
	row.EnrichmentUpdatedAt = &now
	if newASN != nil {
		row.CurrentASN = newASN
		row.ASNLastVerified = asnVerifiedAt
	}
	f.ipRows[ip] = row
	cp := row
	return &cp, nil
}

func (f *fakeStore) EnsureASN(ctx context.Context, asn int, orgName, orgCountry, rir string) (*models.ASNInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	row, ok := f.asnRows[asn]
	if !ok {
		row = models.ASNInventory{
			ASNNumber:           asn,
			OrganizationName:    orgName,
			OrganizationCountry: orgCountry,
			RIRRegistry:         rir,
			FirstSeen:           now,
			LastSeen:            now,
		}
		f.asnRows[asn] = row
		cp := row
		return &cp, nil
	}
	row.LastSeen = now
	if row.OrganizationName == "" {
		row.OrganizationName = orgName
	}
	if row.OrganizationCountry == "" {
		row.OrganizationCountry = orgCountry
	}
	if row.RIRRegistry == "" {
		row.RIRRegistry = rir
	}
	f.asnRows[asn] = row
	cp := row
	return &cp, nil
}

func (f *fakeStore) TouchASNCounters(ctx context.Context, asn int, newIP bool, sessionDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.asnRows[asn]
	if !ok {
		return fmt.Errorf("touch asn counters: no such asn %d", asn)
	}
	row.TotalSessionCount += sessionDelta
	if newIP {
		row.UniqueIPCount++
	}
	f.asnRows[asn] = row
	return nil
}

func (f *fakeStore) SelectMissingASN(ctx context.Context, limit int) ([]models.IPInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IPInventory
	for _, row := range f.ipRows {
		if row.CurrentASN == nil {
			out = append(out, row)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SelectStaleBySource(ctx context.Context, source string, cutoff time.Time, limit int) ([]models.IPInventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IPInventory
	for _, row := range f.ipRows {
		if _, ok := row.Enrichment[source]; !ok {
			continue
		}
		if row.EnrichmentUpdatedAt == nil || row.EnrichmentUpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, row)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) AppendASNHistory(ctx context.Context, h models.IPASNHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, h)
	return nil
}
