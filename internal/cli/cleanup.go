package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
)

// NewCleanupCommand creates the "cleanup" command, which runs the blob
// cache's eviction sweep (§4.B cleanup_expired) over every service
// directory under the configured cache root.
func NewCleanupCommand() *cobra.Command {
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Sweep expired entries out of the blob cache",
		Long: `cleanup walks every service directory under the blob cache root and
deletes files whose mtime has exceeded that service's TTL. Idempotent on a
quiescent cache.`,
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

			cache := blobcache.New(cfg.Cache.Root, blobcache.WithLogger(logger))
			result := cache.CleanupExpired(time.Now())

			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, deleted %d, errors %d\n",
				result.Scanned, result.Deleted, result.Errors)

			return nil
		},
	}

	return cleanupCmd
}
