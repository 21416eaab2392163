// Package geoip wraps the local MaxMind GeoLite2-style City+ASN databases
// for the offline-geo provider (§4.D), generalizing the teacher's flat
// GeoIPClient with a lazy, swappable reader pair and a staleness-driven
// update path the teacher never needed. Database split (City vs ASN as
// separate files) follows cowrieprocessor's maxmind_client.py.
package geoip

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Record is what the offline-geo provider contributes to an IPInventory
// enrichment document.
type Record struct {
	CountryCode string
	CountryName string
	City        string
	Latitude    *float64
	Longitude   *float64
	AccuracyKM  *int
	ASN         *int
	ASNOrg      string
}

// Downloader fetches a fresh copy of a database edition to a local path.
// The real implementation talks to MaxMind's update API; tests substitute
// a fake so Update can be exercised without network access.
type Downloader interface {
	Download(ctx context.Context, edition, destPath string) error
}

const (
	editionCity = "GeoLite2-City"
	editionASN  = "GeoLite2-ASN"
)

// Client is the offline geo/ASN reader pair. Each reader sits behind the
// same RWMutex so Update can rotate both atomically while concurrent
// Lookups proceed against the old handles until the swap completes.
type Client struct {
	dir        string
	downloader Downloader
	logger     *zap.Logger

	mu         sync.RWMutex
	cityReader *geoip2.Reader
	asnReader  *geoip2.Reader
}

// Option configures a Client.
type Option func(*Client)

// WithDownloader overrides the default (unconfigured) downloader.
func WithDownloader(d Downloader) Option {
	return func(c *Client) { c.downloader = d }
}

// WithLogger attaches a logger; defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New opens the databases under dir lazily on first Lookup/DatabaseAge
// call, matching the teacher's "don't fail construction on a missing
// file" convention. dir must contain GeoLite2-City.mmdb and
// GeoLite2-ASN.mmdb.
func New(dir string, opts ...Option) *Client {
	c := &Client{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) cityPath() string { return filepath.Join(c.dir, editionCity+".mmdb") }
func (c *Client) asnPath() string  { return filepath.Join(c.dir, editionASN+".mmdb") }

func (c *Client) ensureOpen() error {
	c.mu.RLock()
	open := c.cityReader != nil && c.asnReader != nil
	c.mu.RUnlock()
	if open {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cityReader == nil {
		reader, err := geoip2.Open(c.cityPath())
		if err != nil {
			return fmt.Errorf("open offline geo city database: %w", err)
		}
		c.cityReader = reader
	}
	if c.asnReader == nil {
		reader, err := geoip2.Open(c.asnPath())
		if err != nil {
			return fmt.Errorf("open offline geo asn database: %w", err)
		}
		c.asnReader = reader
	}
	return nil
}

// Close releases both underlying readers.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.cityReader != nil {
		err = c.cityReader.Close()
		c.cityReader = nil
	}
	if c.asnReader != nil {
		if e := c.asnReader.Close(); e != nil && err == nil {
			err = e
		}
		c.asnReader = nil
	}
	return err
}

// DatabaseAge returns how long since the older of the two database files
// was last modified. §4.G.3 treats a database older than 7 days as absent
// for freshness purposes regardless of per-row TTLs.
func (c *Client) DatabaseAge() (time.Duration, error) {
	cityInfo, err := os.Stat(c.cityPath())
	if err != nil {
		return 0, fmt.Errorf("stat offline geo city database: %w", err)
	}
	asnInfo, err := os.Stat(c.asnPath())
	if err != nil {
		return 0, fmt.Errorf("stat offline geo asn database: %w", err)
	}

	older := cityInfo.ModTime()
	if asnInfo.ModTime().Before(older) {
		older = asnInfo.ModTime()
	}
	return time.Since(older), nil
}

// ShouldUpdate reports whether either database is more than 7 days old.
func (c *Client) ShouldUpdate() bool {
	age, err := c.DatabaseAge()
	if err != nil {
		return true
	}
	return age > 7*24*time.Hour
}

// Update downloads fresh copies of both editions to temp paths and
// atomically renames each into place, then rotates both readers. A failed
// download of either edition leaves the existing databases (and readers)
// untouched.
func (c *Client) Update(ctx context.Context) error {
	if c.downloader == nil {
		return fmt.Errorf("offline geo update requested but no downloader configured")
	}

	newCity, err := c.downloadAndOpen(ctx, editionCity, c.cityPath())
	if err != nil {
		return err
	}
	newASN, err := c.downloadAndOpen(ctx, editionASN, c.asnPath())
	if err != nil {
		newCity.Close()
		return err
	}

	c.mu.Lock()
	oldCity, oldASN := c.cityReader, c.asnReader
	c.cityReader, c.asnReader = newCity, newASN
	c.mu.Unlock()

	if oldCity != nil {
		oldCity.Close()
	}
	if oldASN != nil {
		oldASN.Close()
	}

	c.logger.Info("offline geo databases updated", zap.String("dir", c.dir))
	return nil
}

func (c *Client) downloadAndOpen(ctx context.Context, edition, destPath string) (*geoip2.Reader, error) {
	tmpPath := destPath + ".tmp"
	if err := c.downloader.Download(ctx, edition, tmpPath); err != nil {
		return nil, fmt.Errorf("download %s: %w", edition, err)
	}

	reader, err := geoip2.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("open downloaded %s: %w", edition, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		reader.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("install downloaded %s: %w", edition, err)
	}
	return reader, nil
}

// Lookup resolves one IP to a Record. Returns (nil, nil) — not an error —
// when neither database has an entry for the address, matching §4.G.1
// step 2's "on success, record offline-geo sub-object" / implicit
// absence contract.
func (c *Client) Lookup(ipStr string) (*Record, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	cityReader, asnReader := c.cityReader, c.asnReader
	c.mu.RUnlock()

	city, cityErr := cityReader.City(ip)
	asnRec, asnErr := asnReader.ASN(ip)

	if cityErr != nil && asnErr != nil {
		return nil, fmt.Errorf("offline geo lookup: %w", cityErr)
	}

	hasCity := cityErr == nil && (city.Country.IsoCode != "" || city.City.Names != nil)
	hasASN := asnErr == nil && asnRec.AutonomousSystemNumber != 0
	if !hasCity && !hasASN {
		return nil, nil
	}

	rec := &Record{}
	if hasCity {
		rec.CountryCode = city.Country.IsoCode
		rec.CountryName = englishName(city.Country.Names)
		rec.City = englishName(city.City.Names)
		if city.Location.Latitude != 0 || city.Location.Longitude != 0 {
			lat, lon := city.Location.Latitude, city.Location.Longitude
			rec.Latitude, rec.Longitude = &lat, &lon
		}
		if city.Location.AccuracyRadius > 0 {
			km := int(city.Location.AccuracyRadius)
			rec.AccuracyKM = &km
		}
	}
	if hasASN {
		asn := int(asnRec.AutonomousSystemNumber)
		rec.ASN = &asn
		rec.ASNOrg = asnRec.AutonomousSystemOrganization
	}

	return rec, nil
}

func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}
