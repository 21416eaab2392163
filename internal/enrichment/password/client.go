// Package password implements the password enricher (§4.K): a k-anonymity
// SHA-1 prefix range query against a breach hash-prefix service, caching
// the full returned bucket rather than a single hash so that every other
// password sharing the prefix is answered from cache too.
package password

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
)

const (
	cacheService = "password-breach"
	prefixLen    = 5
	bucketTTL    = 30 * 24 * time.Hour
)

// Record is the breach-prevalence answer for one password hash.
type Record struct {
	Breached   bool `json:"breached"`
	Prevalence int  `json:"prevalence"`
}

type bucket struct {
	Suffixes map[string]int `json:"suffixes"`
}

// Client queries a k-anonymity hash-prefix breach service.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *blobcache.Cache
	logger     *zap.Logger

	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(c *Client) { c.logger = logger } }

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithBaseURL overrides the range-query base URL, for tests.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

// New constructs a Client. No secret is required — the range API is
// anonymous by design (that's the point of k-anonymity).
func New(limiter *ratelimit.Limiter, cache *blobcache.Cache, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		cache:      cache,
		logger:     zap.NewNop(),
		baseURL:    "https://api.pwnedpasswords.com/range",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup reports breach prevalence for a full (uppercase hex) SHA-1 hash of
// a submitted password, via the prefix it shares with every other hash in
// its k-anonymity bucket.
func (c *Client) Lookup(ctx context.Context, sha1Hex string) (*Record, error) {
	sha1Hex = strings.ToUpper(sha1Hex)
	if len(sha1Hex) != 40 {
		return nil, fmt.Errorf("password lookup: %q is not a 40-character SHA-1 hex digest", sha1Hex)
	}
	prefix, suffix := sha1Hex[:prefixLen], sha1Hex[prefixLen:]

	b, err := c.fetchBucket(ctx, prefix)
	if err != nil {
		return nil, err
	}

	count, found := b.Suffixes[suffix]
	return &Record{Breached: found, Prevalence: count}, nil
}

func (c *Client) fetchBucket(ctx context.Context, prefix string) (bucket, error) {
	var b bucket
	if found, err := c.cache.LoadJSON(cacheService, prefix, &b); err == nil && found {
		return b, nil
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return bucket{}, fmt.Errorf("password rate limit: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return bucket{}, fmt.Errorf("build password range request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bucket{}, fmt.Errorf("password range request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return bucket{}, fmt.Errorf("password range: unexpected status %d", resp.StatusCode)
	}

	b = bucket{Suffixes: map[string]int{}}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			c.logger.Warn("malformed password range line, skipping", zap.String("line", line))
			continue
		}
		b.Suffixes[strings.ToUpper(strings.TrimSpace(parts[0]))] = count
	}
	if err := scanner.Err(); err != nil {
		return bucket{}, fmt.Errorf("read password range response: %w", err)
	}

	c.cache.StoreJSON(cacheService, prefix, &b)
	return b, nil
}

// BucketTTL is exposed so callers wiring the shared blob cache can register
// the correct TTL for this service.
func BucketTTL() time.Duration { return bucketTTL }
