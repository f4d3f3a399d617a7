package speedscope

import (
	"testing"

	"github.com/getsentry/stackmerge/internal/collapsed"
	"github.com/getsentry/stackmerge/internal/stacktrie"
	"github.com/getsentry/stackmerge/internal/testutil"
)

func TestSortSamplesAlphabetically(t *testing.T) {
	frames := []Frame{
		{Name: "a"},
		{Name: "b"},
		{Name: "c"},
		{Name: "d"},
	}

	samples := [][]int{
		{0, 3},
		{1, 3},
		{0, 1, 2},
		{0, 1, 2, 3},
		{},
	}
	weights := []uint64{1, 2, 3, 4, 5}

	SortSamplesAlphabetically(samples, weights, frames)

	wantSamples := [][]int{
		{},
		{0, 1, 2},
		{0, 1, 2, 3},
		{0, 3},
		{1, 3},
	}
	if diff := testutil.Diff(samples, wantSamples); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if diff := testutil.Diff(weights, []uint64{5, 3, 4, 1, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestFromRecords(t *testing.T) {
	trie := stacktrie.New([]uint32{0, 1, 2, 3})
	trie.Insert([]string{"main (a.c:1)", "foo (b.c:5)"}, 0)
	trie.Insert([]string{"main (a.c:1)", "foo (b.c:5)"}, 1)
	trie.Insert([]string{"main (a.c:1)"}, 2)
	trie.Insert([]string{"main (a.c:1)", "bar (c.c:2)"}, 3)
	got, err := FromRecords(collapsed.Records(trie), "stacktrace_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Output{
		Schema:   Schema,
		Exporter: Exporter,
		Name:     "stacktrace_1",
		Profiles: []SampledProfile{
			{
				EndValue: 4,
				Name:     "stacktrace_1",
				Samples:  [][]int{{0}, {0, 1}, {0, 2}},
				Type:     ProfileTypeSampled,
				Unit:     ValueUnitCount,
				Weights:  []uint64{1, 1, 2},
			},
		},
		Shared: SharedData{
			Frames: []Frame{
				{IsApplication: true, Name: "main (a.c:1)@0-3|"},
				{IsApplication: true, Name: "bar (c.c:2)@3|0-2"},
				{IsApplication: true, Name: "foo (b.c:5)@0-1|2-3"},
			},
		},
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
