package models

import (
	"encoding/json"
	"time"
)

// Provider sub-object keys within IPInventory.Enrichment / ASNInventory.Enrichment.
const (
	SourceOfflineGeo   = "offline-geo"
	SourceWhois        = "whois"
	SourceReputation   = "scanner-reputation"
	SourceIPThreatFeed = "ip-reputation"
	SourceCommercial   = "commercial-intel"
	SourceValidation   = "validation"
)

// UnknownCountry is the derived geo_country value when no source provided one.
const UnknownCountry = "XX"

// OfflineGeoRecord is the offline-geo provider sub-object: country, city,
// coordinates and ASN from the local MaxMind-style database.
type OfflineGeoRecord struct {
	CountryCode string   `json:"country_code,omitempty"`
	CountryName string   `json:"country_name,omitempty"`
	City        string   `json:"city,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	AccuracyKM  *int     `json:"accuracy_radius_km,omitempty"`
	ASN         *int     `json:"asn,omitempty"`
	ASNOrg      string   `json:"asn_org,omitempty"`
	CachedAt    time.Time `json:"cached_at"`
}

// WhoisRecord is the whois provider sub-object.
type WhoisRecord struct {
	ASN             *int      `json:"asn,omitempty"`
	ASNOrg          string    `json:"asn_org,omitempty"`
	CountryCode     string    `json:"country_code,omitempty"`
	Registry        string    `json:"registry,omitempty"`
	Prefix          string    `json:"prefix,omitempty"`
	AllocationDate  string    `json:"allocation_date,omitempty"`
	CachedAt        time.Time `json:"cached_at"`
}

// ReputationRecord is the scanner-reputation provider sub-object.
type ReputationRecord struct {
	Noise          bool      `json:"noise"`
	RIOT           bool      `json:"riot"`
	Classification string    `json:"classification"` // malicious, benign, unknown
	Name           string    `json:"name,omitempty"`
	LastSeen       *string   `json:"last_seen,omitempty"`
	CachedAt       time.Time `json:"cached_at"`
}

// ValidationRecord carries bogon/reserved-range classification.
type ValidationRecord struct {
	IsBogon bool `json:"is_bogon"`
}

// CommercialIntelRecord is the commercial-intel provider sub-object
// (IP-type classification: residential, hosting, business, mobile, ...).
type CommercialIntelRecord struct {
	IPType   string    `json:"ip_type,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// IPInventory is the current observed state of one IP address (Tier 2).
type IPInventory struct {
	IPAddress string `json:"ip_address"`

	CurrentASN      *int       `json:"current_asn,omitempty"`
	ASNLastVerified *time.Time `json:"asn_last_verified,omitempty"`

	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	SessionCount int       `json:"session_count"`

	// Enrichment aggregates one sub-object per provider that returned
	// data, keyed by provider name (SourceOfflineGeo, SourceWhois, ...).
	// Each provider's block is replaced atomically on refresh, never
	// field-merged (§4.G.2).
	Enrichment map[string]json.RawMessage `json:"enrichment"`

	EnrichmentUpdatedAt *time.Time `json:"enrichment_updated_at,omitempty"`
	EnrichmentVersion   string     `json:"enrichment_version,omitempty"`
}

// GeoCountry derives the geo_country field per the priority rule in
// §4.G.2: offline-geo, then whois, then threat-feed, else "XX". It never
// returns empty.
func (inv *IPInventory) GeoCountry() string {
	if rec, ok := decode[OfflineGeoRecord](inv.Enrichment, SourceOfflineGeo); ok && rec.CountryCode != "" {
		return rec.CountryCode
	}
	if rec, ok := decode[WhoisRecord](inv.Enrichment, SourceWhois); ok && rec.CountryCode != "" {
		return rec.CountryCode
	}
	// threat-feed sub-object carries no country in this model; if a future
	// provider adds one it slots in here ahead of the "XX" fallback.
	return UnknownCountry
}

// IPType derives ip_type from the commercial-intel sub-object, if present.
func (inv *IPInventory) IPType() string {
	if rec, ok := decode[CommercialIntelRecord](inv.Enrichment, SourceCommercial); ok {
		return rec.IPType
	}
	return ""
}

// IsScanner derives is_scanner from the scanner-reputation sub-object.
func (inv *IPInventory) IsScanner() bool {
	if rec, ok := decode[ReputationRecord](inv.Enrichment, SourceReputation); ok {
		return rec.Noise
	}
	return false
}

// IsBogon derives is_bogon from the validation sub-object.
func (inv *IPInventory) IsBogon() bool {
	if rec, ok := decode[ValidationRecord](inv.Enrichment, SourceValidation); ok {
		return rec.IsBogon
	}
	return false
}

func decode[T any](enrichment map[string]json.RawMessage, key string) (T, bool) {
	var out T
	raw, ok := enrichment[key]
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// ASNInventory is the organizational attribution of one autonomous system
// (Tier 1). Organizational metadata is fill-in-the-blank: EnsureASN never
// overwrites an existing non-null value with null.
type ASNInventory struct {
	ASNNumber int `json:"asn_number"`

	OrganizationName    string `json:"organization_name,omitempty"`
	OrganizationCountry string `json:"organization_country,omitempty"`
	RIRRegistry         string `json:"rir_registry,omitempty"`
	ASNType             string `json:"asn_type,omitempty"`

	IsKnownHosting bool `json:"is_known_hosting"`
	IsKnownVPN     bool `json:"is_known_vpn"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	UniqueIPCount      int `json:"unique_ip_count"`
	TotalSessionCount  int `json:"total_session_count"`

	Enrichment          map[string]json.RawMessage `json:"enrichment,omitempty"`
	EnrichmentUpdatedAt *time.Time                  `json:"enrichment_updated_at,omitempty"`
}

// IPASNHistory is an append-only record of ASN assignments over time for
// an IP, appended whenever the staleness engine observes an ASN change.
type IPASNHistory struct {
	IPAddress          string    `json:"ip_address"`
	ASNNumber          int       `json:"asn_number"`
	ObservedAt         time.Time `json:"observed_at"`
	VerificationSource string    `json:"verification_source"`
}
