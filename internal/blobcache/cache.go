// Package blobcache implements the sharded, filesystem-backed key/value
// cache shared by every enrichment provider client. Entries are namespaced
// by service, TTLs are per-service, and writes are best-effort: a cache
// that can't be written to disk must never fail the caller's enrichment.
package blobcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTLs mirrors the spec's TTL table (§4.B). Callers override per
// deployment; values <= 0 disable expiry for that service.
var DefaultTTLs = map[string]time.Duration{
	"offline-geo":          7 * 24 * time.Hour,
	"whois-asn":            90 * 24 * time.Hour,
	"scanner-reputation":   7 * 24 * time.Hour,
	"ip-reputation":        7 * 24 * time.Hour,
	"commercial-intel":     14 * 24 * time.Hour,
	"breach-data":          0, // configurable per deployment; see BreachDataUnknownTTL
	"breach-data-unknown":  12 * time.Hour,
	"file-reputation":      30 * 24 * time.Hour,
	"file-reputation-none": 12 * time.Hour,
}

// Stats holds hit/miss/store/error telemetry, overall and per-service.
type Stats struct {
	Hits      int64
	Misses    int64
	Stores    int64
	Errors    int64
	PerServce map[string]*ServiceStats
}

// ServiceStats is the per-service breakdown of Stats.
type ServiceStats struct {
	Hits   int64
	Misses int64
	Stores int64
	Errors int64
}

// CleanupResult is returned by CleanupExpired.
type CleanupResult struct {
	Scanned int
	Deleted int
	Errors  int
}

// Cache is a sharded on-disk blob store with per-namespace ("service")
// TTLs. One Cache instance is shared by all enrichment clients in a
// process; it is safe for concurrent use.
type Cache struct {
	root    string
	logger  *zap.Logger
	mu      sync.Mutex
	ttls    map[string]time.Duration
	stats   Stats
	builder map[string]PathBuilder // service -> primary path builder
	legacy  map[string][]PathBuilder
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithTTL overrides (or adds) the TTL for a service.
func WithTTL(service string, ttl time.Duration) Option {
	return func(c *Cache) { c.ttls[service] = ttl }
}

// WithPathBuilder overrides the primary path builder for a service.
func WithPathBuilder(service string, builder PathBuilder) Option {
	return func(c *Cache) { c.builder[service] = builder }
}

// WithLegacyPathBuilders registers path builders probed on read (in order)
// before falling back to the primary builder's miss. A hit against a
// legacy path is migrated to the primary path.
func WithLegacyPathBuilders(service string, builders ...PathBuilder) Option {
	return func(c *Cache) { c.legacy[service] = builders }
}

// WithLogger attaches a zap logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a Cache rooted at dir. The directory tree is created lazily
// per service/shard on first write.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:    root,
		logger:  zap.NewNop(),
		ttls:    make(map[string]time.Duration, len(DefaultTTLs)),
		builder: make(map[string]PathBuilder),
		legacy:  make(map[string][]PathBuilder),
	}
	for svc, ttl := range DefaultTTLs {
		c.ttls[svc] = ttl
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) ttlFor(service string) time.Duration {
	if ttl, ok := c.ttls[service]; ok {
		return ttl
	}
	return 0
}

func (c *Cache) pathBuilder(service string) PathBuilder {
	if b, ok := c.builder[service]; ok {
		return b
	}
	return DefaultPathBuilder
}

func (c *Cache) primaryPath(service, key string) string {
	return filepath.Join(c.root, service, filepath.FromSlash(c.pathBuilder(service)(key)))
}

// StoreJSON serializes v canonically (sorted keys, UTF-8) and writes it
// under (service, key). Writes are best-effort: IO/permission errors are
// logged and swallowed, never returned to the caller's cascade.
func (c *Cache) StoreJSON(service, key string, v any) {
	payload, err := canonicalJSON(v)
	if err != nil {
		c.logger.Warn("blobcache: failed to marshal payload", zap.String("service", service), zap.Error(err))
		c.countError(service)
		return
	}
	c.store(service, key, payload)
}

// StoreBytes writes raw bytes (e.g. a text payload) under (service, key).
func (c *Cache) StoreBytes(service, key string, data []byte) {
	c.store(service, key, data)
}

func (c *Cache) store(service, key string, data []byte) {
	path := c.primaryPath(service, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.logger.Debug("blobcache: mkdir failed", zap.String("path", path), zap.Error(err))
		c.countError(service)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Debug("blobcache: write failed", zap.String("path", path), zap.Error(err))
		c.countError(service)
		return
	}
	c.mu.Lock()
	c.stats.Stores++
	c.serviceStats(service).Stores++
	c.mu.Unlock()
}

// Load returns the raw bytes for (service, key) if present and fresh.
// Expired entries are deleted as a side effect (lazy eviction).
func (c *Cache) Load(service, key string) ([]byte, bool) {
	path := c.primaryPath(service, key)
	data, fresh := c.loadPath(service, path)
	if fresh {
		return data, true
	}

	for _, builder := range c.legacy[service] {
		legacyPath := filepath.Join(c.root, service, filepath.FromSlash(builder(key)))
		if legacyPath == path {
			continue
		}
		if data, ok := c.loadPath(service, legacyPath); ok {
			// Migrate to the primary layout.
			c.store(service, key, data)
			return data, true
		}
	}

	return nil, false
}

// loadPath loads a single candidate path, applying TTL + lazy eviction, and
// recording hit/miss telemetry. It does not consult legacy builders.
func (c *Cache) loadPath(service, path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.countError(service)
		}
		c.countMiss(service)
		return nil, false
	}

	ttl := c.ttlFor(service)
	if ttl > 0 && time.Since(info.ModTime()) >= ttl {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.countError(service)
		}
		c.countMiss(service)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.countMiss(service)
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.serviceStats(service).Hits++
	c.mu.Unlock()
	return data, true
}

// LoadJSON is a convenience wrapper around Load + json.Unmarshal. It
// returns (false, nil) on a cache miss and (false, err) on corrupt JSON,
// incrementing the error counter in the latter case per §4.B.
func (c *Cache) LoadJSON(service, key string, out any) (bool, error) {
	data, ok := c.Load(service, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.countError(service)
		c.countMiss(service)
		return false, err
	}
	return true, nil
}

// Age returns the entry's age and whether it exists at all, independent of
// its TTL. Used by freshness checks that need the raw mtime (e.g. "offline
// database age" is compared against a different clock than the cache
// entry's own TTL).
func (c *Cache) Age(service, key string) (time.Duration, bool) {
	path := c.primaryPath(service, key)
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// CleanupExpired walks every service directory and removes files whose
// age has reached their service TTL (now - mtime >= ttl). Services with TTL <= 0 are skipped
// entirely. Safe to call concurrently with Load/Store; a file-not-found
// race during unlink is not counted as an error.
func (c *Cache) CleanupExpired(now time.Time) CleanupResult {
	var result CleanupResult

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result
		}
		result.Errors++
		return result
	}

	for _, svcEntry := range entries {
		if !svcEntry.IsDir() {
			continue
		}
		service := svcEntry.Name()
		ttl := c.ttlFor(service)
		if ttl <= 0 {
			continue
		}
		svcDir := filepath.Join(c.root, service)

		_ = filepath.WalkDir(svcDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				result.Errors++
				return nil
			}
			if d.IsDir() {
				return nil
			}
			result.Scanned++
			info, err := d.Info()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					result.Errors++
				}
				return nil
			}
			if now.Sub(info.ModTime()) >= ttl {
				if rmErr := os.Remove(path); rmErr != nil {
					if !errors.Is(rmErr, fs.ErrNotExist) {
						result.Errors++
					}
					return nil
				}
				result.Deleted++
			}
			return nil
		})
	}

	return result
}

// Snapshot returns an immutable copy of the current telemetry counters.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Stats{
		Hits:      c.stats.Hits,
		Misses:    c.stats.Misses,
		Stores:    c.stats.Stores,
		Errors:    c.stats.Errors,
		PerServce: make(map[string]*ServiceStats, len(c.stats.PerServce)),
	}
	for svc, s := range c.stats.PerServce {
		cp := *s
		out.PerServce[svc] = &cp
	}
	return out
}

func (c *Cache) countMiss(service string) {
	c.mu.Lock()
	c.stats.Misses++
	c.serviceStats(service).Misses++
	c.mu.Unlock()
}

func (c *Cache) countError(service string) {
	c.mu.Lock()
	c.stats.Errors++
	c.serviceStats(service).Errors++
	c.mu.Unlock()
}

// serviceStats returns the per-service counters, creating them if absent.
// Callers must hold c.mu.
func (c *Cache) serviceStats(service string) *ServiceStats {
	if c.stats.PerServce == nil {
		c.stats.PerServce = make(map[string]*ServiceStats)
	}
	s, ok := c.stats.PerServce[service]
	if !ok {
		s = &ServiceStats{}
		c.stats.PerServce[service] = s
	}
	return s
}

// canonicalJSON marshals v as a single compact line with sorted object
// keys. Struct fields are re-emitted as map keys (which encoding/json
// writes in sorted order) by round-tripping through a generic value;
// UseNumber keeps numeric literals exactly as first marshalled.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
