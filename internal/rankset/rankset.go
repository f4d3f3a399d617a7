// Package rankset implements an ordered set of worker ranks and its compact
// range notation (e.g. "0-3/7").
package rankset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	runSeparator   = "/"
	rangeSeparator = "-"
)

var ErrInvalidNotation = errors.New("invalid rank notation")

// Set is a sorted, duplicate-free set of ranks. The zero value is an empty set
// ready to use.
type Set struct {
	ranks []uint32
}

// New returns a set containing the given ranks.
func New(ranks ...uint32) Set {
	var s Set
	for _, r := range ranks {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether the set changed.
func (s *Set) Add(r uint32) bool {
	i := sort.Search(len(s.ranks), func(i int) bool { return s.ranks[i] >= r })
	if i < len(s.ranks) && s.ranks[i] == r {
		return false
	}
	s.ranks = append(s.ranks, 0)
	copy(s.ranks[i+1:], s.ranks[i:])
	s.ranks[i] = r
	return true
}

func (s Set) Contains(r uint32) bool {
	i := sort.Search(len(s.ranks), func(i int) bool { return s.ranks[i] >= r })
	return i < len(s.ranks) && s.ranks[i] == r
}

func (s Set) Len() int {
	return len(s.ranks)
}

// Slice returns a copy of the ranks in ascending order.
func (s Set) Slice() []uint32 {
	out := make([]uint32, len(s.ranks))
	copy(out, s.ranks)
	return out
}

// Difference returns the ranks of s that are not in o.
func (s Set) Difference(o Set) Set {
	out := make([]uint32, 0, len(s.ranks))
	j := 0
	for _, r := range s.ranks {
		for j < len(o.ranks) && o.ranks[j] < r {
			j++
		}
		if j < len(o.ranks) && o.ranks[j] == r {
			continue
		}
		out = append(out, r)
	}
	return Set{ranks: out}
}

// IsSubsetOf reports whether every rank of s is in o.
func (s Set) IsSubsetOf(o Set) bool {
	return s.Difference(o).Len() == 0
}

func (s Set) Equal(o Set) bool {
	if len(s.ranks) != len(o.ranks) {
		return false
	}
	for i := range s.ranks {
		if s.ranks[i] != o.ranks[i] {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	return Format(s)
}

// Format renders the set as maximal runs of consecutive ranks joined by "/".
// A run of one rank is rendered as the bare number and a longer run as
// "start-end". The empty set renders as the empty string.
func Format(s Set) string {
	var sb strings.Builder
	n := len(s.ranks)
	for i := 0; i < n; i++ {
		start := s.ranks[i]
		end := start
		for i+1 < n && s.ranks[i+1] == end+1 {
			i++
			end = s.ranks[i]
		}
		if sb.Len() > 0 {
			sb.WriteString(runSeparator)
		}
		sb.WriteString(strconv.FormatUint(uint64(start), 10))
		if end != start {
			sb.WriteString(rangeSeparator)
			sb.WriteString(strconv.FormatUint(uint64(end), 10))
		}
	}
	return sb.String()
}

// Parse is the inverse of Format.
func Parse(v string) (Set, error) {
	var s Set
	if v == "" {
		return s, nil
	}
	var last uint32
	for i, run := range strings.Split(v, runSeparator) {
		bounds := strings.SplitN(run, rangeSeparator, 2)
		start, err := parseRank(bounds[0])
		if err != nil {
			return Set{}, err
		}
		end := start
		if len(bounds) == 2 {
			end, err = parseRank(bounds[1])
			if err != nil {
				return Set{}, err
			}
			if end <= start {
				return Set{}, fmt.Errorf("%w: descending run %q", ErrInvalidNotation, run)
			}
		}
		if i > 0 && uint64(start) <= uint64(last)+1 {
			return Set{}, fmt.Errorf("%w: runs not ascending and disjoint at %q", ErrInvalidNotation, run)
		}
		for r := start; ; r++ {
			s.ranks = append(s.ranks, r)
			if r == end {
				break
			}
		}
		last = end
	}
	return s, nil
}

func parseRank(v string) (uint32, error) {
	r, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNotation, v)
	}
	return uint32(r), nil
}

// Annotation renders the present ranks and the ranks of universe missing
// from present as "@<present>|<leaked>".
func Annotation(present, universe Set) string {
	return "@" + Format(present) + "|" + Format(universe.Difference(present))
}
