package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/cobra"

	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/frame"
	"github.com/getsentry/stackmerge/internal/merge"
)

func newMergeCommand(a *app) *cobra.Command {
	var (
		input string
		ranks []uint
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a batch of stacks read from a file",
		Long: `Merge a batch of stacks, a JSON array with one array of frames per rank.
Stacks are paired with --ranks in order. Without --ranks, the stack at index i
belongs to rank i. Files ending in .lz4 are decompressed first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			declared, err := toRanks(ranks)
			if err != nil {
				return err
			}
			return a.runMerge(cmd.Context(), input, declared, time.Now())
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "batch file, - for stdin")
	cmd.Flags().UintSliceVar(&ranks, "ranks", nil, "ranks of the stacks, in batch order")
	cmd.Flags().String("truncate-marker", "", "cut stacks at the first frame containing this marker, e.g. lto_priv")
	cmd.Flags().Bool("compact", false, "omit the terminating ranks before the weight")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) runMerge(ctx context.Context, input string, ranks []uint32, now time.Time) error {
	raw, err := readInput(input)
	if err != nil {
		return err
	}

	s := sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Decode batch"
	stacks, err := frame.DecodeBatch(raw)
	s.Finish()
	if err != nil {
		return err
	}
	if ranks == nil {
		ranks = make([]uint32, len(stacks))
		for i := range ranks {
			ranks[i] = uint32(i)
		}
	}

	s = sentry.StartSpan(ctx, "merge")
	trie, err := merge.Merge(stacks, ranks, mergeOptions(a.config))
	s.Finish()
	if err != nil {
		return err
	}

	out, err := openOutput(ctx, a.config, now)
	if err != nil {
		return err
	}
	defer out.close()
	_, err = out.writeListing(ctx, trie, a.config.Compact, now)
	return err
}

func readInput(name string) ([]byte, error) {
	var r io.Reader
	if name == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errorutil.ErrDecode, err)
		}
		defer f.Close()
		r = f
	}
	if strings.HasSuffix(name, ".lz4") {
		r = lz4.NewReader(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errorutil.ErrDecode, name, err)
	}
	return b, nil
}

func toRanks(values []uint) ([]uint32, error) {
	if values == nil {
		return nil, nil
	}
	ranks := make([]uint32, 0, len(values))
	for _, v := range values {
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("rank %d is out of range", v)
		}
		ranks = append(ranks, uint32(v))
	}
	return ranks, nil
}
