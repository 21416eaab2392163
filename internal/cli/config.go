package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the enrichd CLI and the enrichment
// core it drives.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	OfflineGeo OfflineGeoConfig `mapstructure:"offline_geo"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Whois      WhoisConfig      `mapstructure:"whois"`
	FileRep    FileRepConfig    `mapstructure:"filerep"`
	Password   PasswordConfig   `mapstructure:"password"`
	Output     OutputConfig     `mapstructure:"output"`
}

// DatabaseConfig holds connection settings for the inventory store.
type DatabaseConfig struct {
	URL       string        `mapstructure:"url"`
	Namespace string        `mapstructure:"namespace"`
	Name      string        `mapstructure:"name"`
	User      string        `mapstructure:"user"`
	Pass      string        `mapstructure:"pass"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds blob-cache settings.
type CacheConfig struct {
	Root string `mapstructure:"root"`
}

// OfflineGeoConfig holds settings for the offline GeoIP/ASN database.
type OfflineGeoConfig struct {
	Path          string `mapstructure:"path"`
	LicenseSecret string `mapstructure:"license_secret"`
}

// ReputationConfig holds settings for the scanner-reputation provider.
type ReputationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Secret    string        `mapstructure:"secret"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// WhoisConfig holds settings for the ASN whois client.
type WhoisConfig struct {
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// FileRepConfig holds settings for the file-reputation enricher.
type FileRepConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Secret    string        `mapstructure:"secret"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// PasswordConfig holds settings for the password breach-prevalence enricher.
type PasswordConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// OutputConfig holds output formatting configuration for the CLI.
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// InitConfig initializes configuration from file, environment variables,
// and flags. Precedence: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find home directory: %w", err)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(home, ".enrichd"))
		viper.AddConfigPath("/etc/enrichd")

		viper.SetConfigName("enrichd")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ENRICHD")
	viper.AutomaticEnv()

	viper.BindEnv("database.url", "ENRICHD_DATABASE_URL")
	viper.BindEnv("database.user", "ENRICHD_DATABASE_USER")
	viper.BindEnv("database.pass", "ENRICHD_DATABASE_PASS")
	viper.BindEnv("cache.root", "ENRICHD_CACHE_ROOT")
	viper.BindEnv("offline_geo.path", "ENRICHD_OFFLINE_GEO_PATH")
	viper.BindEnv("offline_geo.license_secret", "ENRICHD_OFFLINE_GEO_LICENSE_SECRET")
	viper.BindEnv("reputation.enabled", "ENRICHD_REPUTATION_ENABLED")
	viper.BindEnv("reputation.secret", "ENRICHD_REPUTATION_SECRET")
	viper.BindEnv("filerep.enabled", "ENRICHD_FILEREP_ENABLED")
	viper.BindEnv("filerep.secret", "ENRICHD_FILEREP_SECRET")
	viper.BindEnv("output.format", "ENRICHD_OUTPUT_FORMAT")
	viper.BindEnv("output.color", "ENRICHD_OUTPUT_COLOR")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("database.url", "ws://localhost:8000/rpc")
	viper.SetDefault("database.namespace", "enrichd")
	viper.SetDefault("database.name", "core")
	viper.SetDefault("database.user", "root")
	viper.SetDefault("database.pass", "root")
	viper.SetDefault("database.timeout", "10s")

	viper.SetDefault("cache.root", "./cache")

	viper.SetDefault("offline_geo.path", "./data")
	viper.SetDefault("offline_geo.license_secret", "")

	viper.SetDefault("reputation.enabled", false)
	viper.SetDefault("reputation.secret", "")
	viper.SetDefault("reputation.rate_limit", 10.0)
	viper.SetDefault("reputation.burst", 10)
	viper.SetDefault("reputation.cache_ttl", "168h") // 7 days

	viper.SetDefault("whois.rate_limit", 100.0)
	viper.SetDefault("whois.burst", 100)
	viper.SetDefault("whois.cache_ttl", "2160h") // 90 days

	viper.SetDefault("filerep.enabled", false)
	viper.SetDefault("filerep.secret", "")
	viper.SetDefault("filerep.rate_limit", 4.0)
	viper.SetDefault("filerep.burst", 4)
	viper.SetDefault("filerep.cache_ttl", "720h") // 30 days

	viper.SetDefault("password.rate_limit", 2.0)
	viper.SetDefault("password.burst", 2)

	viper.SetDefault("output.format", "table")
	viper.SetDefault("output.color", true)
}

// GetOutputFormat returns the configured output format.
func GetOutputFormat() string { return viper.GetString("output.format") }

// GetOutputColor returns whether color output is enabled.
func GetOutputColor() bool { return viper.GetBool("output.color") }

// GetDatabaseURL returns the configured store connection URL.
func GetDatabaseURL() string { return viper.GetString("database.url") }

// ValidateConfig checks the configuration for obvious misconfiguration.
func ValidateConfig(cfg *Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url cannot be empty")
	}
	if cfg.Database.Timeout <= 0 {
		return fmt.Errorf("database.timeout must be positive")
	}
	if cfg.Cache.Root == "" {
		return fmt.Errorf("cache.root cannot be empty")
	}

	validFormats := map[string]bool{"json": true, "yaml": true, "table": true}
	if !validFormats[cfg.Output.Format] {
		return fmt.Errorf("invalid output format: %s (must be json, yaml, or table)", cfg.Output.Format)
	}

	if cfg.Reputation.Enabled && cfg.Reputation.Secret == "" {
		return fmt.Errorf("reputation.secret is required when reputation.enabled is true")
	}

	if cfg.FileRep.Enabled && cfg.FileRep.Secret == "" {
		return fmt.Errorf("filerep.secret is required when filerep.enabled is true")
	}

	return nil
}
