package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewRefreshCommand creates the "refresh" command, which runs
// RefreshStaleData (§4.G.4, §4.I) for a named source or all refreshable
// sources, reporting per-source counts.
func NewRefreshCommand() *cobra.Command {
	var limit int
	var source string

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh stale enrichment sub-objects (whois, scanner-reputation)",
		Long: `refresh selects rows whose enrichment_updated_at has exceeded the
named source's TTL and already carries that source's sub-object, then
re-runs the source and replaces only that sub-object. A whois ASN change
appends an IPASNHistory row (§8 property 5).`,
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

			counts, err := orchestrator.RefreshStaleData(ctx, source, limit)
			if err != nil {
				return fmt.Errorf("refresh stale data: %w", err)
			}

			keys := make([]string, 0, len(counts))
			for k := range counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: refreshed %d row(s)\n", k, counts[k])
			}

			return nil
		},
	}

	refreshCmd.Flags().IntVar(&limit, "limit", 500, "Maximum number of rows to refresh per source")
	refreshCmd.Flags().StringVar(&source, "source", "all", "Source to refresh: whois, scanner-reputation, or all")

	return refreshCmd
}
