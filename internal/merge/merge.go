package merge

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/frame"
	"github.com/getsentry/stackmerge/internal/stacktrie"
)

type Options struct {
	// TruncateMarker enables cutting stacks at the first frame containing
	// it. Disabled when empty.
	TruncateMarker string
}

// MergeJSON decodes a batch of stacks and merges it. See Merge.
func MergeJSON(b []byte, ranks []uint32, opts Options) (*stacktrie.Trie, error) {
	stacks, err := frame.DecodeBatch(b)
	if err != nil {
		return nil, err
	}
	return Merge(stacks, ranks, opts)
}

// Merge builds the trie of the stacks. Stacks are paired positionally with
// ranks. Every declared rank belongs to the universe, even when fewer stacks
// than ranks were supplied, so ranks without a stack show as leaked on every
// node.
func Merge(stacks []frame.Stack, ranks []uint32, opts Options) (*stacktrie.Trie, error) {
	if len(stacks) == 0 {
		return nil, fmt.Errorf("%w: no stacks", errorutil.ErrEmptyInput)
	}
	if len(ranks) == 0 {
		return nil, fmt.Errorf("%w: no ranks", errorutil.ErrEmptyInput)
	}
	seen := make(map[uint32]struct{}, len(ranks))
	for _, r := range ranks {
		if _, ok := seen[r]; ok {
			return nil, fmt.Errorf("%w: %d", errorutil.ErrDuplicateRank, r)
		}
		seen[r] = struct{}{}
	}
	if len(stacks) > len(ranks) {
		return nil, fmt.Errorf("%w: %d stacks for %d ranks", errorutil.ErrCardinality, len(stacks), len(ranks))
	}

	log.Debug().Int("stacks", len(stacks)).Int("ranks", len(ranks)).Msg("merging stacks")

	n := frame.Normalizer{TruncateMarker: opts.TruncateMarker}
	t := stacktrie.New(ranks)
	for i, s := range stacks {
		t.Insert(n.Normalize(s), ranks[i])
	}
	return t, nil
}
