package main

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/stackmerge/internal/collapsed"
	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/merge"
	"github.com/getsentry/stackmerge/internal/stacktrie"
	"github.com/getsentry/stackmerge/internal/storageprovider"
	"github.com/getsentry/stackmerge/internal/storageutil"
)

type output struct {
	storage storageutil.ObjectHandler
	// location tells where an object ended up, for the logs.
	location func(name string) string
	close    func() error
}

func openOutput(ctx context.Context, cfg Config, now time.Time) (*output, error) {
	if cfg.Bucket != "" {
		b, err := storageprovider.OpenBucket(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: open bucket: %v", errorutil.ErrOutput, err)
		}
		return &output{
			storage: b,
			location: func(name string) string {
				return strings.TrimSuffix(cfg.Bucket, "/") + "/" + name
			},
			close: b.Close,
		}, nil
	}
	root := cfg.OutputDir
	if root == "" {
		root = storageutil.DefaultRoot(now)
	}
	d := &storageprovider.Directory{Root: root}
	return &output{
		storage:  d,
		location: d.Location,
		close:    func() error { return nil },
	}, nil
}

// writeListing validates the trie and stores its listing, returning the
// object name.
func (o *output) writeListing(ctx context.Context, trie *stacktrie.Trie, compact bool, now time.Time) (string, error) {
	if err := trie.Validate(); err != nil {
		return "", err
	}
	var b bytes.Buffer
	if err := collapsed.Write(&b, trie, collapsed.Options{Compact: compact}); err != nil {
		return "", fmt.Errorf("%w: %v", errorutil.ErrOutput, err)
	}
	name := storageutil.ListingPath(now)
	s := sentry.StartSpan(ctx, "storage.write")
	s.Description = "Write listing"
	err := storageutil.WriteObject(ctx, o.storage, name, b.Bytes())
	s.Finish()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errorutil.ErrOutput, err)
	}
	log.Info().Str("location", o.location(name)).Msg("merged listing written")
	return name, nil
}

func mergeOptions(cfg Config) merge.Options {
	return merge.Options{TruncateMarker: cfg.TruncateMarker}
}

// baseName strips the directories and the extension of an object name.
func baseName(name string) string {
	name = path.Base(name)
	return strings.TrimSuffix(name, path.Ext(name))
}
