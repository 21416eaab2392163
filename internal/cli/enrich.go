package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewEnrichCommand creates the "enrich" command, which drives the cascade
// orchestrator (§4.G.1) for one or more IPs and prints the resulting
// IPInventory row.
func NewEnrichCommand() *cobra.Command {
	var outputFormat string
	var noColor bool

	enrichCmd := &cobra.Command{
		Use:   "enrich <ip> [ip...]",
		Short: "Run the enrichment cascade for one or more IP addresses",
		Long: `enrich invokes the multi-source enrichment cascade (offline GeoIP/ASN,
ASN whois fallback, scanner-reputation) for each IP given, writing or
refreshing its IPInventory row and printing the result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := InitConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := newLogger(verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()

			ctx := context.Background()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			orchestrator := buildOrchestrator(st, cfg, logger)

			opts := NewOutputOptions(outputFormat, noColor)
			formatter := NewFormatter()

			var firstErr error
			for _, ip := range args {
				inv, err := orchestrator.EnrichIP(ctx, ip)
				if err != nil {
					logger.Error("enrich failed", zap.String("ip", ip), zap.Error(err))
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if err := formatter.FormatIPInventory(opts, inv); err != nil {
					return fmt.Errorf("format result: %w", err)
				}
			}

			return firstErr
		},
	}

	enrichCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	enrichCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return enrichCmd
}
