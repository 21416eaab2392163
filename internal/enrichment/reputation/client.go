// Package reputation implements the scanner-reputation client (§4.F): a
// Community-tier reputation API lookup with a daily quota, a 7-day result
// cache, and retry-with-backoff on transient failures. Grounded on
// cowrieprocessor/enrichment/greynoise_client.py; HTTP plumbing follows the
// teacher's internal/enrichment/asn.go use of net/http with a shared client
// and context-aware requests.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
	"github.com/cowrie-intel/enrichd/internal/secret"
)

const (
	cacheService   = "scanner-reputation"
	quotaKeyPrefix = "scanner-reputation:quota:"

	// DailyQuota is the Community-tier daily call ceiling.
	DailyQuota = 10000

	maxRetries = 3
)

var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Record is what the scanner-reputation provider contributes to an
// IPInventory enrichment document.
type Record struct {
	IPAddress      string     `json:"ip_address"`
	Noise          bool       `json:"noise"`
	RIOT           bool       `json:"riot"`
	Classification string     `json:"classification"`
	Name           string     `json:"name,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	Source         string     `json:"source"`
	CachedAt       time.Time  `json:"cached_at"`
}

type quotaCounter struct {
	Count int    `json:"count"`
	Date  string `json:"date"`
}

// Stats mirrors the teacher's per-client counters, reported by Snapshot.
type Stats struct {
	Lookups        int64
	CacheHits      int64
	CacheMisses    int64
	APISuccess     int64
	APIFailures    int64
	QuotaExceeded  int64
	Errors         int64
}

// ErrQuotaExceeded is returned when the daily quota is exhausted before an
// API call would be made. It is not a transport error.
var ErrQuotaExceeded = fmt.Errorf("scanner-reputation: daily quota exceeded")

// ErrUnauthorized signals an invalid API key. The client that produced it
// should be treated as disabled for the remainder of the process.
var ErrUnauthorized = fmt.Errorf("scanner-reputation: authentication failed")

// Client looks up scanner-reputation classifications for IPs, subject to a
// daily quota and a 7-day result cache.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *blobcache.Cache
	logger     *zap.Logger

	apiKey  string
	baseURL string
	ttl     time.Duration

	disabled bool

	stats Stats
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(c *Client) { c.logger = logger } }

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithBaseURL overrides the API base URL, for tests.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

// WithTTL sets the client's ttl field (default 7 days). Lookup does not read
// it: cached entries expire at the scanner-reputation TTL of the blob cache
// passed to New.
func WithTTL(ttl time.Duration) Option { return func(c *Client) { c.ttl = ttl } }

// New constructs a Client. secretURI is resolved via internal/secret; if it
// cannot be resolved, New returns a disabled client whose Lookup always
// returns ErrUnauthorized-free absence (nil, nil) without making any network
// calls — callers that can't configure an API key still get a no-op
// enrichment source rather than a hard failure.
func New(secretURI string, limiter *ratelimit.Limiter, cache *blobcache.Cache, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		cache:      cache,
		logger:     zap.NewNop(),
		baseURL:    "https://api.greynoise.io/v3/community",
		ttl:        7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}

	if secretURI == "" {
		c.disabled = true
		return c
	}
	key, err := secret.Resolve(secretURI)
	if err != nil {
		c.logger.Warn("scanner-reputation secret unresolvable, disabling client", zap.Error(err))
		c.disabled = true
		return c
	}
	c.apiKey = key
	return c
}

// Disabled reports whether the client has no usable credential and will
// never make a network call.
func (c *Client) Disabled() bool { return c.disabled }

// Snapshot returns a copy of the client's running counters.
func (c *Client) Snapshot() Stats { return c.stats }

// Lookup returns the scanner-reputation classification for ip. A nil Record
// with a nil error means the client is disabled, the daily quota has been
// exhausted, or a retryable failure (transport error or 429) persisted
// through every retry — this is a valid "no enrichment available" outcome, not a
// failure the caller should retry. A 404 from the provider is also not an
// absence: it means "not seen scanning," reported back as
// classification "unknown".
func (c *Client) Lookup(ctx context.Context, ip string) (*Record, error) {
	if c.disabled {
		return nil, nil
	}
	c.stats.Lookups++

	var cached Record
	if found, err := c.cache.LoadJSON(cacheService, ip, &cached); err == nil && found {
		c.stats.CacheHits++
		return &cached, nil
	}
	c.stats.CacheMisses++

	remaining := c.remainingQuota()
	if remaining <= 0 {
		c.logger.Warn("scanner-reputation daily quota exceeded")
		c.stats.QuotaExceeded++
		return nil, nil
	}

	rec, err := c.lookupAPI(ctx, ip)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rec.CachedAt = time.Now().UTC()
		c.cache.StoreJSON(cacheService, ip, rec)
		c.incrementQuota()
	}
	return rec, nil
}

func nowUTCDate() string { return time.Now().UTC().Format("2006-01-02") }

func (c *Client) remainingQuota() int {
	key := quotaKeyPrefix + nowUTCDate()
	var q quotaCounter
	if found, err := c.cache.LoadJSON(cacheService, key, &q); err != nil || !found {
		return DailyQuota
	}
	remaining := DailyQuota - q.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Client) incrementQuota() {
	today := nowUTCDate()
	key := quotaKeyPrefix + today
	var q quotaCounter
	if found, err := c.cache.LoadJSON(cacheService, key, &q); err != nil || !found {
		q = quotaCounter{Count: 0, Date: today}
	}
	q.Count++
	c.cache.StoreJSON(cacheService, key, &q)
}

func (c *Client) lookupAPI(ctx context.Context, ip string) (*Record, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, ip)

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("scanner-reputation rate limit: %w", err)
		}

		rec, retry, err := c.doRequest(ctx, url, ip)
		if err != nil {
			if !retry {
				return nil, err
			}
			if attempt == maxRetries-1 {
				c.logger.Warn("scanner-reputation retries exhausted, treating as absent", zap.String("ip", ip), zap.Error(err))
				return nil, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt]):
			}
			continue
		}
		return rec, nil
	}

	return nil, nil
}

// doRequest performs one HTTP attempt. retry indicates whether the caller
// should back off and try again rather than treat err as final.
func (c *Client) doRequest(ctx context.Context, url, ip string) (rec *Record, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build scanner-reputation request: %w", err)
	}
	req.Header.Set("key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.stats.APIFailures++
		return nil, true, fmt.Errorf("scanner-reputation request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.stats.APIFailures++
		c.stats.Errors++
		c.disabled = true
		return nil, false, ErrUnauthorized

	case http.StatusTooManyRequests:
		c.stats.QuotaExceeded++
		c.stats.APIFailures++
		return nil, true, fmt.Errorf("scanner-reputation rate limited")

	case http.StatusNotFound:
		c.stats.APISuccess++
		return &Record{
			IPAddress:      ip,
			Classification: "unknown",
			Source:         cacheService,
		}, false, nil
	}

	if resp.StatusCode != http.StatusOK {
		c.stats.APIFailures++
		return nil, false, fmt.Errorf("scanner-reputation: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.stats.APIFailures++
		return nil, false, fmt.Errorf("read scanner-reputation response: %w", err)
	}

	var payload struct {
		Noise          bool   `json:"noise"`
		RIOT           bool   `json:"riot"`
		Classification string `json:"classification"`
		Name           string `json:"name"`
		LastSeen       string `json:"last_seen"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.stats.APIFailures++
		return nil, false, fmt.Errorf("parse scanner-reputation response: %w", err)
	}

	out := &Record{
		IPAddress:      ip,
		Noise:          payload.Noise,
		RIOT:           payload.RIOT,
		Classification: payload.Classification,
		Name:           payload.Name,
		Source:         cacheService,
	}
	if payload.LastSeen != "" {
		if t, err := time.Parse("2006-01-02", payload.LastSeen); err == nil {
			utc := t.UTC()
			out.LastSeen = &utc
		} else {
			c.logger.Warn("failed to parse scanner-reputation last_seen", zap.String("value", payload.LastSeen))
		}
	}

	c.stats.APISuccess++
	return out, false, nil
}
