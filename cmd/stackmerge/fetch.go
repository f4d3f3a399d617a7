package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/stackmerge/internal/collector"
	"github.com/getsentry/stackmerge/internal/merge"
	"github.com/getsentry/stackmerge/internal/rankconfig"
	"github.com/getsentry/stackmerge/internal/storageutil"
)

func newFetchCommand(a *app) *cobra.Command {
	var (
		rankFile string
		flags    []string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Collect the current stack of every rank and merge them",
		Long: `Request the call stack of every rank over HTTP, store the raw batch and
merge it. Ranks come from a rank file mapping "rank<N>" to "ip:port", or from
repeated -r RANK:<IP:PORT> flags. Ranks failing to answer are reported and
show up as leaked in the listing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoints, err := loadEndpoints(rankFile, flags)
			if err != nil {
				return err
			}
			return a.runFetch(cmd.Context(), endpoints, time.Now())
		},
	}
	cmd.Flags().StringVarP(&rankFile, "rank-file", "f", "", "JSON rank file")
	cmd.Flags().StringArrayVarP(&flags, "rank", "r", nil, "rank endpoint as RANK:<IP:PORT>, repeatable")
	cmd.Flags().String("truncate-marker", "", "cut stacks at the first frame containing this marker, e.g. lto_priv")
	cmd.Flags().Bool("compact", false, "omit the terminating ranks before the weight")
	cmd.Flags().Duration("timeout", 10*time.Second, "timeout of every request")
	cmd.Flags().Int("retries", 2, "retries of a failed request")
	return cmd
}

func loadEndpoints(rankFile string, flags []string) ([]rankconfig.Endpoint, error) {
	switch {
	case rankFile != "" && len(flags) > 0:
		return nil, errors.New("--rank-file and --rank are mutually exclusive")
	case rankFile != "":
		f, err := os.Open(rankFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return rankconfig.ParseFile(f)
	case len(flags) > 0:
		return rankconfig.ParseFlags(flags)
	default:
		return nil, errors.New("one of --rank-file or --rank is required")
	}
}

func (a *app) runFetch(ctx context.Context, endpoints []rankconfig.Endpoint, now time.Time) error {
	c := collector.New(collector.Options{
		Timeout:        a.config.Timeout,
		RetryCount:     a.config.RetryCount,
		MaxConcurrency: a.config.MaxConcurrency,
		Path:           a.config.Path,
	})
	batch, err := c.Collect(ctx, endpoints)
	if err != nil {
		return err
	}
	raw, err := batch.JSON()
	if err != nil {
		return err
	}

	out, err := openOutput(ctx, a.config, now)
	if err != nil {
		return err
	}
	defer out.close()

	name := storageutil.BatchPath(now)
	s := sentry.StartSpan(ctx, "storage.write")
	s.Description = "Write raw batch"
	err = storageutil.CompressedWrite(ctx, out.storage, name, json.RawMessage(raw))
	s.Finish()
	if err != nil {
		// The listing is still worth producing.
		sentry.CaptureException(err)
		log.Error().Err(err).Str("location", out.location(name)).Msg("couldn't store the raw batch")
	} else {
		log.Info().Str("location", out.location(name)).Msg("raw batch written")
	}

	trie, err := merge.MergeJSON(raw, batch.Ranks, mergeOptions(a.config))
	if err != nil {
		return fmt.Errorf("merge collected stacks: %w", err)
	}
	_, err = out.writeListing(ctx, trie, a.config.Compact, now)
	return err
}
