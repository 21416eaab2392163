package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
)

// NewStatusCommand creates the "status" command, which reports store
// connectivity, schema version, and blob-cache telemetry (§4.B snapshot).
func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report store connectivity and blob cache telemetry",
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

			out := cmd.OutOrStdout()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				fmt.Fprintf(out, "store: unavailable (%v)\n", err)
			} else {
				defer st.Close(ctx)
				version, err := st.SchemaVersion(ctx)
				if err != nil {
					fmt.Fprintf(out, "store: connected, schema version unavailable (%v)\n", err)
				} else {
					fmt.Fprintf(out, "store: connected, schema version %s\n", version)
				}
			}

			cache := blobcache.New(cfg.Cache.Root, blobcache.WithLogger(logger))
			snapshot := cache.Snapshot()
			fmt.Fprintf(out, "cache root: %s\n", cfg.Cache.Root)
			fmt.Fprintf(out, "cache: hits=%d misses=%d stores=%d errors=%d\n",
				snapshot.Hits, snapshot.Misses, snapshot.Stores, snapshot.Errors)

			fmt.Fprintf(out, "offline geo path: %s\n", cfg.OfflineGeo.Path)
			fmt.Fprintf(out, "reputation enabled: %v\n", cfg.Reputation.Enabled)

			return nil
		},
	}

	return statusCmd
}
