// Package whois implements the ASN whois client (§4.E): a DNS TXT primary
// lookup path against Team Cymru's origin.asn.cymru.com service, with a
// bulk TCP whois fallback for backfill/refresh batches. Bulk-query framing
// is ported from the teacher's internal/enrichment/asn.go TeamCymruClient;
// the DNS TXT path and backoff schedule are new, grounded on
// cowrieprocessor/enrichment/cymru_client.py.
package whois

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
)

// Record is what the whois provider contributes to an IPInventory
// enrichment document. ASNOrg is left blank by the DNS TXT path (Cymru's
// origin TXT record carries no AS name); BulkLookup populates it from the
// verbose bulk-whois response instead.
type Record struct {
	ASN            *int
	ASNOrg         string
	CountryCode    string
	Registry       string
	Prefix         string
	AllocationDate string
}

// Resolver is the subset of *net.Resolver the client needs; satisfied by
// net.DefaultResolver and fakes in tests.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Client looks up ASN attribution for IPs via DNS TXT, falling back to
// bulk TCP whois for batch callers.
type Client struct {
	resolver Resolver
	limiter  *ratelimit.Limiter
	cache    *blobcache.Cache
	logger   *zap.Logger

	whoisAddr      string
	bulkChunkSize  int
	socketTimeout  time.Duration
	backoffSchedule []time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithResolver overrides the DNS resolver (default net.DefaultResolver).
func WithResolver(r Resolver) Option { return func(c *Client) { c.resolver = r } }

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(c *Client) { c.logger = logger } }

// WithWhoisAddr overrides the bulk whois TCP endpoint, for tests.
func WithWhoisAddr(addr string) Option { return func(c *Client) { c.whoisAddr = addr } }

// New constructs a whois Client. When cache is non-nil, Lookup reads and
// writes its whois-asn namespace (90-day TTL in the cache's default table);
// BulkLookup does not use the cache.
func New(limiter *ratelimit.Limiter, cache *blobcache.Cache, opts ...Option) *Client {
	c := &Client{
		resolver:      net.DefaultResolver,
		limiter:       limiter,
		cache:         cache,
		logger:        zap.NewNop(),
		whoisAddr:     "whois.cymru.com:43",
		bulkChunkSize: 500,
		socketTimeout: 30 * time.Second,
		backoffSchedule: []time.Duration{
			1 * time.Second, 2 * time.Second, 4 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrAbsent signals the lookup completed but found no attribution data —
// a successful "no data" result, distinct from a transport error.
var ErrAbsent = errors.New("whois: no attribution data")

// Lookup resolves ASN attribution for a single IP via DNS TXT, retrying
// transient errors per backoffSchedule. A fresh whois-asn cache entry is
// returned without a DNS query, and each parsed record is stored there.
// NXDOMAIN/NoAnswer responses are treated as an immediate absent result,
// not retried.
func (c *Client) Lookup(ctx context.Context, ip string) (*Record, error) {
	if c.cache != nil {
		var cached Record
		if found, err := c.cache.LoadJSON("whois-asn", ip, &cached); err == nil && found {
			return &cached, nil
		}
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("whois rate limit: %w", err)
	}

	name, err := reverseQueryName(ip)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.backoffSchedule); attempt++ {
		txts, err := c.resolver.LookupTXT(ctx, name)
		if err == nil {
			rec, perr := parseTXT(txts)
			if perr == nil && c.cache != nil {
				c.cache.StoreJSON("whois-asn", ip, rec)
			}
			return rec, perr
		}

		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && (dnsErr.IsNotFound || !dnsErr.Temporary()) {
			c.logger.Debug("whois dns lookup absent", zap.String("ip", ip), zap.Error(err))
			return nil, ErrAbsent
		}

		lastErr = err
		if attempt < len(c.backoffSchedule) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoffSchedule[attempt]):
			}
		}
	}

	return nil, fmt.Errorf("whois dns lookup failed after retries: %w", lastErr)
}

func reverseQueryName(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return "", fmt.Errorf("whois DNS TXT lookup only supports IPv4: %s", ip)
	}
	return fmt.Sprintf("%d.%d.%d.%d.origin.asn.cymru.com", v4[3], v4[2], v4[1], v4[0]), nil
}

// parseTXT parses a Cymru origin TXT record:
// "ASN | BGP Prefix | CC | Registry | Allocated"
func parseTXT(txts []string) (*Record, error) {
	if len(txts) == 0 {
		return nil, ErrAbsent
	}

	fields := strings.Split(txts[0], "|")
	if len(fields) < 5 {
		return nil, fmt.Errorf("whois: unexpected TXT record format: %q", txts[0])
	}

	asnStr := strings.TrimSpace(fields[0])
	asn, err := strconv.Atoi(asnStr)
	if err != nil || asnStr == "NA" {
		// ASN "NA" or non-numeric means unallocated, not an error.
		return nil, ErrAbsent
	}

	return &Record{
		ASN:            &asn,
		Prefix:         strings.TrimSpace(fields[1]),
		CountryCode:    strings.TrimSpace(fields[2]),
		Registry:       strings.TrimSpace(fields[3]),
		AllocationDate: strings.TrimSpace(fields[4]),
	}, nil
}
