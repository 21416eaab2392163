package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile string
	verbose bool
)

// NewRootCommand creates and returns the root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "enrichd",
		Short: "Honeypot enrichment core",
		Long: `enrichd runs the multi-source IP/ASN enrichment cascade over
honeypot session data: offline GeoIP/ASN lookup, ASN whois fallback,
scanner-reputation classification, and the staleness/backfill engine that
keeps the inventory current.

Configuration precedence: flags > environment variables > config file > defaults

Environment Variables:
  ENRICHD_DATABASE_URL   Store connection URL
  ENRICHD_CACHE_ROOT     Blob cache root directory
  ENRICHD_CONFIG         Path to config file`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				cfgFile = os.Getenv("ENRICHD_CONFIG")
			}
			cfg, err := InitConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			if err := ValidateConfig(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if verbose {
				fmt.Fprintf(os.Stderr, "Config file: %s\n", viper.ConfigFileUsed())
				fmt.Fprintf(os.Stderr, "Database URL: %s\n", GetDatabaseURL())
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./enrichd.yaml, ~/.enrichd/enrichd.yaml, or /etc/enrichd/enrichd.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewEnrichCommand())
	rootCmd.AddCommand(NewBackfillCommand())
	rootCmd.AddCommand(NewRefreshCommand())
	rootCmd.AddCommand(NewCleanupCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewBackfillSessionsCommand())
	rootCmd.AddCommand(NewInspectCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()
	return rootCmd.Execute()
}
