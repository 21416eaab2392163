// Package filerep implements the file-reputation enricher (§4.K): a
// single-provider (session_id, sha256) lookup with tiered caching — 30
// days for a known verdict, 12 hours for an unknown one, so a file that
// hasn't been scanned yet gets retried sooner than one that has. Modeled
// on internal/enrichment/reputation's cache-before-API shape, simplified
// for a provider with no daily quota.
package filerep

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/models"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
	"github.com/cowrie-intel/enrichd/internal/secret"
)

const (
	knownCacheService   = "file-reputation"
	unknownCacheService = "file-reputation-none"

	knownTTL   = 30 * 24 * time.Hour
	unknownTTL = 12 * time.Hour
)

// Client looks up file-reputation verdicts for SHA-256 hashes.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *blobcache.Cache
	logger     *zap.Logger

	apiKey  string
	baseURL string

	disabled bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option { return func(c *Client) { c.logger = logger } }

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithBaseURL overrides the API base URL, for tests.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

// New constructs a Client. The two cache tiers are the blob cache's
// file-reputation (30 days) and file-reputation-none (12 hours) services,
// whose TTLs come from the cache's own table. If secretURI can't be
// resolved the client is disabled and Lookup always returns (nil, nil).
func New(secretURI string, limiter *ratelimit.Limiter, cache *blobcache.Cache, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		cache:      cache,
		logger:     zap.NewNop(),
		baseURL:    "https://www.virustotal.com/api/v3/files",
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
		c.logger.Warn("file-reputation secret unresolvable, disabling client", zap.Error(err))
		c.disabled = true
		return c
	}
	c.apiKey = key
	return c
}

// Disabled reports whether the client has no usable credential.
func (c *Client) Disabled() bool { return c.disabled }

// Lookup returns the file-reputation record for sha256, preferring a
// cached verdict over a fresh API call. A nil Record with nil error means
// the client is disabled.
func (c *Client) Lookup(ctx context.Context, sha256 string) (*models.FileReputationRecord, error) {
	if c.disabled {
		return nil, nil
	}

	var cached models.FileReputationRecord
	if found, err := c.cache.LoadJSON(knownCacheService, sha256, &cached); err == nil && found {
		return &cached, nil
	}
	if found, err := c.cache.LoadJSON(unknownCacheService, sha256, &cached); err == nil && found {
		return &cached, nil
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("file-reputation rate limit: %w", err)
	}

	rec, err := c.lookupAPI(ctx, sha256)
	if err != nil {
		return nil, err
	}

	rec.CachedAt = time.Now().UTC()
	if rec.Classification == "unknown" {
		c.cache.StoreJSON(unknownCacheService, sha256, rec)
	} else {
		c.cache.StoreJSON(knownCacheService, sha256, rec)
	}
	return rec, nil
}

func (c *Client) lookupAPI(ctx context.Context, sha256 string) (*models.FileReputationRecord, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, sha256)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build file-reputation request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file-reputation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.FileReputationRecord{Classification: "unknown"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file-reputation: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file-reputation response: %w", err)
	}

	var payload struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats struct {
					Malicious int `json:"malicious"`
					Total     int `json:"total"`
				} `json:"last_analysis_stats"`
				FirstSubmissionDate int64  `json:"first_submission_date"`
				PopularThreatLabel  string `json:"popular_threat_classification_label"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse file-reputation response: %w", err)
	}

	stats := payload.Data.Attributes.LastAnalysisStats
	total := stats.Total
	ratio := 0.0
	if total > 0 {
		ratio = float64(stats.Malicious) / float64(total)
	}

	classification := "clean"
	if stats.Malicious > 0 {
		classification = "malicious"
	}

	rec := &models.FileReputationRecord{
		Classification: classification,
		Malicious:      stats.Malicious > 0,
		PositiveRatio:  ratio,
	}
	if payload.Data.Attributes.FirstSubmissionDate > 0 {
		t := time.Unix(payload.Data.Attributes.FirstSubmissionDate, 0).UTC()
		rec.FirstSeen = &t
	}
	return rec, nil
}
