package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/stackmerge/internal/envutil"
	"github.com/getsentry/stackmerge/internal/logutil"
)

var release string

type app struct {
	configPath string
	config     Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "stackmerge",
		Short:         "Merge the call stacks of distributed ranks into one annotated listing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.config = cfg
			return applyFlags(cmd, &a.config)
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file, environment variables take precedence")
	cmd.PersistentFlags().StringP("output", "o", "", "output directory (default /tmp/output_<date>)")
	cmd.PersistentFlags().String("bucket", "", "bucket URL to write results to instead of a directory (gs://..., file://...)")

	cmd.AddCommand(
		newMergeCommand(a),
		newFetchCommand(a),
		newSpeedscopeCommand(a),
		newCleanupCommand(a),
	)
	return cmd
}

// applyFlags overrides the configuration with the flags set on the command
// line.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("output") {
		cfg.OutputDir, err = flags.GetString("output")
		if err != nil {
			return err
		}
	}
	if flags.Changed("bucket") {
		cfg.Bucket, err = flags.GetString("bucket")
		if err != nil {
			return err
		}
	}
	if f := flags.Lookup("truncate-marker"); f != nil && f.Changed {
		cfg.TruncateMarker = f.Value.String()
	}
	if f := flags.Lookup("compact"); f != nil && f.Changed {
		cfg.Compact, err = flags.GetBool("compact")
		if err != nil {
			return err
		}
	}
	if f := flags.Lookup("timeout"); f != nil && f.Changed {
		cfg.Timeout, err = flags.GetDuration("timeout")
		if err != nil {
			return err
		}
	}
	if f := flags.Lookup("retries"); f != nil && f.Changed {
		cfg.RetryCount, err = flags.GetInt("retries")
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	logutil.ConfigureLogger(envutil.GetEnvOrFallback("STACKMERGE_LOG_LEVEL", "info"))

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         os.Getenv("SENTRY_DSN"),
		Environment: envutil.Environment(),
		Release:     release,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}
	defer sentry.Flush(5 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(5 * time.Second)
		log.Fatal().Err(err).Msg("stackmerge failed")
	}
}
