package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cowrie-intel/enrichd/internal/session"
)

// NewBackfillSessionsCommand creates the "backfill-sessions" command: the
// separate batch job from §4.J that joins historical SessionSummary rows
// against current IPInventory state and copies the three snapshot columns
// into any row that never got one. Rows that already carry a snapshot are
// skipped — the columns are write-once.
func NewBackfillSessionsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill-sessions",
		Short: "Backfill missing session enrichment snapshots from current inventory",
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
			capturer := session.New(st, orchestrator, session.WithLogger(logger))

			backfilled, err := capturer.BackfillHistoricalSessions(ctx, limit)
			if err != nil {
				return fmt.Errorf("backfill historical sessions: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backfilled snapshot for %d session(s)\n", backfilled)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 500, "Maximum number of sessions to backfill")

	return cmd
}
