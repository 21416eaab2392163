package whois

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cowrie-intel/enrichd/internal/ratelimit"
)

type fakeResolver struct {
	txts map[string][]string
	errs map[string]error
	calls int
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	f.calls++
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return f.txts[name], nil
}

func newTestClient(r Resolver) *Client {
	limiter := ratelimit.New(rate.Inf, 1)
	return New(limiter, nil, WithResolver(r))
}

func TestLookup_ParsesTXTRecord(t *testing.T) {
	r := &fakeResolver{txts: map[string][]string{
		"8.8.8.8.origin.asn.cymru.com": {"15169 | 8.8.8.0/24 | US | arin | 1992-12-01"},
	}}
	c := newTestClient(r)

	rec, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	require.NotNil(t, rec.ASN)
	assert.Equal(t, 15169, *rec.ASN)
	assert.Equal(t, "US", rec.CountryCode)
	assert.Equal(t, "arin", rec.Registry)
}

func TestLookup_NAAsnIsAbsent(t *testing.T) {
	r := &fakeResolver{txts: map[string][]string{
		"1.1.1.1.origin.asn.cymru.com": {"NA | 1.1.1.0/24 | US | arin | 2020-01-01"},
	}}
	c := newTestClient(r)

	rec, err := c.Lookup(context.Background(), "1.1.1.1")
	assert.ErrorIs(t, err, ErrAbsent)
	assert.Nil(t, rec)
}

func TestLookup_NXDOMAINIsImmediateAbsent(t *testing.T) {
	r := &fakeResolver{errs: map[string]error{
		"203.0.113.1.origin.asn.cymru.com": &net.DNSError{Err: "no such host", IsNotFound: true},
	}}
	c := newTestClient(r)

	_, err := c.Lookup(context.Background(), "203.0.113.1")
	assert.ErrorIs(t, err, ErrAbsent)
	assert.Equal(t, 1, r.calls, "NXDOMAIN must not be retried")
}

func TestLookup_TransientErrorRetriesThenFails(t *testing.T) {
	c := newTestClient(&fakeResolver{errs: map[string]error{
		"203.0.113.2.origin.asn.cymru.com": &net.DNSError{Err: "timeout", IsTimeout: true},
	}})
	c.backoffSchedule = []time.Duration{time.Millisecond, time.Millisecond}

	r := c.resolver.(*fakeResolver)

	_, err := c.Lookup(context.Background(), "203.0.113.2")
	require.Error(t, err)
	assert.Equal(t, 3, r.calls, "one initial attempt plus two retries")
}

func TestLookup_RejectsIPv6(t *testing.T) {
	c := newTestClient(&fakeResolver{})
	_, err := c.Lookup(context.Background(), "2001:db8::1")
	assert.Error(t, err)
}

func TestLookup_InvalidIP(t *testing.T) {
	c := newTestClient(&fakeResolver{})
	_, err := c.Lookup(context.Background(), "not-an-ip")
	assert.Error(t, err)
}

func TestParseTXT_EmptyIsAbsent(t *testing.T) {
	_, err := parseTXT(nil)
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestParseTXT_MalformedErrors(t *testing.T) {
	_, err := parseTXT([]string{"garbage"})
	assert.Error(t, err)
}

func TestParseTXT_NAAsnIsAbsent(t *testing.T) {
	rec, err := parseTXT([]string{"NA | 1.1.1.0/24 | US | arin | 2020-01-01"})
	assert.ErrorIs(t, err, ErrAbsent)
	assert.Nil(t, rec)
}

func TestParseTXT_NonNumericAsnIsAbsent(t *testing.T) {
	rec, err := parseTXT([]string{"garbage-asn | 1.1.1.0/24 | US | arin | 2020-01-01"})
	assert.ErrorIs(t, err, ErrAbsent)
	assert.Nil(t, rec)
}

func TestReverseQueryName(t *testing.T) {
	name, err := reverseQueryName("8.8.4.4")
	require.NoError(t, err)
	assert.Equal(t, "4.4.8.8.origin.asn.cymru.com", name)
}
