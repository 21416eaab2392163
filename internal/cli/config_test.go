package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_Defaults(t *testing.T) {
	viper.Reset()

	cfg, err := InitConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "ws://localhost:8000/rpc", cfg.Database.URL)
	assert.Equal(t, 10*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "table", cfg.Output.Format)
	assert.True(t, cfg.Output.Color)
	assert.False(t, cfg.Reputation.Enabled)
	assert.Equal(t, 168*time.Hour, cfg.Reputation.CacheTTL)
	assert.Equal(t, 2160*time.Hour, cfg.Whois.CacheTTL)
}

func TestInitConfig_FromFile(t *testing.T) {
	viper.Reset()

	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "enrichd.yaml")

	configContent := `
database:
  url: ws://db.example.com:8000/rpc
  timeout: 30s

reputation:
  enabled: true
  secret: "env:REPUTATION_KEY"

output:
  format: yaml
  color: false
`

	require.NoError(t, os.WriteFile(cfgFile, []byte(configContent), 0644))

	cfg, err := InitConfig(cfgFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "ws://db.example.com:8000/rpc", cfg.Database.URL)
	assert.Equal(t, 30*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.False(t, cfg.Output.Color)
	assert.True(t, cfg.Reputation.Enabled)
	assert.Equal(t, "env:REPUTATION_KEY", cfg.Reputation.Secret)
}

func TestInitConfig_EnvVarsOverride(t *testing.T) {
	viper.Reset()

	os.Setenv("ENRICHD_DATABASE_URL", "ws://env.example.com:8000/rpc")
	os.Setenv("ENRICHD_OUTPUT_FORMAT", "json")
	defer func() {
		os.Unsetenv("ENRICHD_DATABASE_URL")
		os.Unsetenv("ENRICHD_OUTPUT_FORMAT")
	}()

	cfg, err := InitConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "ws://env.example.com:8000/rpc", cfg.Database.URL)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestValidateConfig_Valid(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "ws://localhost:8000/rpc", Timeout: 10 * time.Second},
		Cache:    CacheConfig{Root: "./cache"},
		Output:   OutputConfig{Format: "json", Color: true},
	}

	assert.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfig_InvalidURL(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "", Timeout: 10 * time.Second},
		Cache:    CacheConfig{Root: "./cache"},
		Output:   OutputConfig{Format: "json"},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url cannot be empty")
}

func TestValidateConfig_InvalidTimeout(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "ws://localhost:8000/rpc", Timeout: -1 * time.Second},
		Cache:    CacheConfig{Root: "./cache"},
		Output:   OutputConfig{Format: "json"},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.timeout must be positive")
}

func TestValidateConfig_InvalidOutputFormat(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "ws://localhost:8000/rpc", Timeout: 10 * time.Second},
		Cache:    CacheConfig{Root: "./cache"},
		Output:   OutputConfig{Format: "invalid"},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestValidateConfig_ReputationRequiresSecret(t *testing.T) {
	cfg := &Config{
		Database:   DatabaseConfig{URL: "ws://localhost:8000/rpc", Timeout: 10 * time.Second},
		Cache:      CacheConfig{Root: "./cache"},
		Output:     OutputConfig{Format: "json"},
		Reputation: ReputationConfig{Enabled: true},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reputation.secret is required")
}

func TestGetterFunctions(t *testing.T) {
	viper.Reset()

	viper.Set("database.url", "ws://test.example.com:8000/rpc")
	viper.Set("output.format", "yaml")
	viper.Set("output.color", false)

	assert.Equal(t, "ws://test.example.com:8000/rpc", GetDatabaseURL())
	assert.Equal(t, "yaml", GetOutputFormat())
	assert.False(t, GetOutputColor())
}

func TestConfigPrecedence(t *testing.T) {
	viper.Reset()

	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "enrichd.yaml")

	configContent := `
database:
  url: ws://file.example.com:8000/rpc
  timeout: 60s
`

	require.NoError(t, os.WriteFile(cfgFile, []byte(configContent), 0644))

	os.Setenv("ENRICHD_DATABASE_URL", "ws://env.example.com:8000/rpc")
	defer os.Unsetenv("ENRICHD_DATABASE_URL")

	cfg, err := InitConfig(cfgFile)
	require.NoError(t, err)

	assert.Equal(t, "ws://env.example.com:8000/rpc", cfg.Database.URL)
	assert.Equal(t, 60*time.Second, cfg.Database.Timeout)
}
