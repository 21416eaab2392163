package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewBackfillCommand creates the "backfill" command, which runs
// BackfillMissingASNs (§4.G.4, §4.I) once and reports how many rows were
// patched. Safe to run repeatedly; commits per-batch.
func NewBackfillCommand() *cobra.Command {
	var limit int

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill IP rows with a missing current_asn via whois",
		Long: `backfill selects up to --limit IPInventory rows whose current_asn is
null and attempts a whois lookup for each, patching the row on success.
Failures are skipped, not retried inline.`,
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

			patched, err := orchestrator.BackfillMissingASNs(ctx, limit)
			if err != nil {
				return fmt.Errorf("backfill missing asns: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "patched %d row(s) with a missing ASN\n", patched)
			return nil
		},
	}

	backfillCmd.Flags().IntVar(&limit, "limit", 500, "Maximum number of rows to patch in this run")

	return backfillCmd
}
