package cascade

import (
	"context"
	"time"

	"github.com/cowrie-intel/enrichd/internal/enrichment/geoip"
	"github.com/cowrie-intel/enrichd/internal/enrichment/reputation"
	"github.com/cowrie-intel/enrichd/internal/enrichment/whois"
)

type fakeGeo struct {
	rec    *geoip.Record
	err    error
	age    time.Duration
	ageErr error
	calls  int
}

func (f *fakeGeo) Lookup(ip string) (*geoip.Record, error) {
	f.calls++
	return f.rec, f.err
}

func (f *fakeGeo) DatabaseAge() (time.Duration, error) { return f.age, f.ageErr }

type fakeWhois struct {
	rec   *whois.Record
	err   error
	calls int
}

func (f *fakeWhois) Lookup(ctx context.Context, ip string) (*whois.Record, error) {
	f.calls++
	return f.rec, f.err
}

type fakeReputation struct {
	rec   *reputation.Record
	err   error
	calls int
}

func (f *fakeReputation) Lookup(ctx context.Context, ip string) (*reputation.Record, error) {
	f.calls++
	return f.rec, f.err
}

func intPtr(n int) *int { return &n }
