package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const datedRootPrefix = "output_"

func newCleanupCommand(a *app) *cobra.Command {
	var (
		retentionDays int
		daily         bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove results older than the retention period",
		Long: `Remove results older than the retention period. With an output directory,
files under it are removed based on their modification time. Without one, the
dated output_<date> directories of the temporary directory are removed. With
--daily, the cleanup runs once a day until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if retentionDays < 0 {
				return errors.New("--retention-days can't be negative")
			}
			run := func() error {
				limit := time.Now().Add(time.Hour * 24 * -1 * time.Duration(retentionDays))
				return a.runCleanup(limit)
			}
			if !daily {
				return run()
			}
			return runDaily(cmd.Context(), run)
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 7, "number of days results are kept")
	cmd.Flags().BoolVar(&daily, "daily", false, "keep running and clean up once a day")
	return cmd
}

func (a *app) runCleanup(limit time.Time) error {
	var (
		removed int
		err     error
	)
	if a.config.OutputDir != "" {
		removed, err = cleanupDirectory(a.config.OutputDir, limit)
	} else {
		removed, err = cleanupDatedRoots(os.TempDir(), limit)
	}
	log.Info().Int("removed", removed).Time("limit", limit).Msg("cleanup done")
	return err
}

func runDaily(ctx context.Context, run func() error) error {
	c := cron.New()
	_, err := c.AddFunc("@daily", func() {
		if err := run(); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("error cleaning up results")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cleanupDirectory removes the files under root last modified before limit.
func cleanupDirectory(root string, limit time.Time) (int, error) {
	var removed int
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if limit.After(info.ModTime()) {
			if err := os.Remove(p); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// cleanupDatedRoots removes the output_<date> directories of parent whose day
// ended before limit.
func cleanupDatedRoots(parent string, limit time.Time) (int, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return 0, err
	}
	var removed int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), datedRootPrefix) {
			continue
		}
		day, err := time.ParseInLocation("20060102", strings.TrimPrefix(e.Name(), datedRootPrefix), time.Local)
		if err != nil {
			continue
		}
		if limit.After(day.AddDate(0, 0, 1)) {
			if err := os.RemoveAll(filepath.Join(parent, e.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
