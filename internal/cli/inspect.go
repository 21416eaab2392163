package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cowrie-intel/enrichd/internal/blobcache"
	"github.com/cowrie-intel/enrichd/internal/enrichment/filerep"
	"github.com/cowrie-intel/enrichd/internal/enrichment/password"
	"github.com/cowrie-intel/enrichd/internal/enrichment/sshkey"
	"github.com/cowrie-intel/enrichd/internal/ratelimit"
)

// NewInspectCommand creates the "inspect" command: a manual front door onto
// the K-track enrichers (§4.K), which in production are invoked per-event
// by the session loader rather than from a batch job. It exists so an
// operator can run a single command, sha256, or password hash through the
// same code path the loader uses, without standing up the loader itself —
// lookup and the record write that follows it, exactly as the loader would
// do both.
func NewInspectCommand() *cobra.Command {
	var sessionID, command, sha256, filename, downloadURL, passwordSHA1, username string
	var success bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Run session artifacts through the SSH-key/file/password enrichers",
		Long: `inspect exercises the three K-track enrichers directly, outside the
loader-driven per-event path they normally run on:

  --command       scan a shell command for authorized_keys manipulation
  --sha256        look up a file's reputation verdict and record it
  --password-sha1 check a password's breach prevalence and record its usage

--session is required alongside --command, --sha256, or --password-sha1,
since all three record their result against a session. At least one of
--command, --sha256, or --password-sha1 must be given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" && sha256 == "" && passwordSHA1 == "" {
				return fmt.Errorf("at least one of --command, --sha256, or --password-sha1 is required")
			}
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}

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
				return err
			}
			defer st.Close(ctx)

			if command != "" {
				enricher := sshkey.New(st, sshkey.WithLogger(logger))
				found, err := enricher.ProcessCommand(ctx, sessionID, command)
				if err != nil {
					return fmt.Errorf("process command: %w", err)
				}
				fmt.Fprintf(out, "ssh-key: recorded %d key observation(s) for session %s\n", found, sessionID)
			}

			cache := blobcache.New(cfg.Cache.Root, blobcache.WithLogger(logger))

			if sha256 != "" {
				if !cfg.FileRep.Enabled {
					return fmt.Errorf("filerep.enabled is false; set filerep.secret and enable it to use --sha256")
				}
				limiter := ratelimit.NewPerSecond(cfg.FileRep.RateLimit, cfg.FileRep.Burst)
				client := filerep.New(cfg.FileRep.Secret, limiter, cache, filerep.WithLogger(logger))
				rec, err := client.Lookup(ctx, sha256)
				if err != nil {
					return fmt.Errorf("file reputation lookup: %w", err)
				}
				if rec == nil {
					return fmt.Errorf("file reputation client is disabled (no usable filerep.secret)")
				}

				if err := st.UpsertFileIntelligence(ctx, sessionID, sha256, filename, downloadURL, *rec); err != nil {
					return fmt.Errorf("record file intelligence: %w", err)
				}
				fmt.Fprintf(out, "filerep: sha256=%s classification=%s malicious=%v positive_ratio=%.2f\n",
					sha256, rec.Classification, rec.Malicious, rec.PositiveRatio)
			}

			if passwordSHA1 != "" {
				limiter := ratelimit.NewPerSecond(cfg.Password.RateLimit, cfg.Password.Burst)
				client := password.New(limiter, cache, password.WithLogger(logger))
				rec, err := client.Lookup(ctx, passwordSHA1)
				if err != nil {
					return fmt.Errorf("password breach lookup: %w", err)
				}

				if err := st.RecordPasswordUsage(ctx, sessionID, passwordSHA1, username, success, rec.Prevalence, rec.Breached, time.Now().UTC()); err != nil {
					return fmt.Errorf("record password usage: %w", err)
				}
				fmt.Fprintf(out, "password: sha1=%s breached=%v prevalence=%d\n",
					passwordSHA1, rec.Breached, rec.Prevalence)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to attribute enrichment observations to (required)")
	cmd.Flags().StringVar(&command, "command", "", "Shell command to scan for authorized_keys manipulation")
	cmd.Flags().StringVar(&sha256, "sha256", "", "SHA-256 hash of a file to check reputation for")
	cmd.Flags().StringVar(&filename, "filename", "", "Filename associated with --sha256, if known")
	cmd.Flags().StringVar(&downloadURL, "download-url", "", "Download URL associated with --sha256, if known")
	cmd.Flags().StringVar(&passwordSHA1, "password-sha1", "", "SHA-1 hash of a password to check breach prevalence for")
	cmd.Flags().StringVar(&username, "username", "", "Username attempted alongside --password-sha1")
	cmd.Flags().BoolVar(&success, "success", false, "Whether the login attempt with --password-sha1 succeeded")

	return cmd
}
