package rankset

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/getsentry/stackmerge/internal/testutil"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		ranks []uint32
		want  string
	}{
		{
			name: "empty",
			want: "",
		},
		{
			name:  "singleton",
			ranks: []uint32{7},
			want:  "7",
		},
		{
			name:  "single run",
			ranks: []uint32{0, 1, 2, 3},
			want:  "0-3",
		},
		{
			name:  "run of two",
			ranks: []uint32{4, 5},
			want:  "4-5",
		},
		{
			name:  "runs and gaps",
			ranks: []uint32{0, 1, 2, 3, 7},
			want:  "0-3/7",
		},
		{
			name:  "unsorted with duplicates",
			ranks: []uint32{9, 1, 3, 2, 9, 11, 10},
			want:  "1-3/9-11",
		},
		{
			name:  "isolated ranks",
			ranks: []uint32{1, 3, 5},
			want:  "1/3/5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(New(tt.ranks...)); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []uint32
		wantErr bool
	}{
		{
			name:  "empty",
			input: "",
			want:  []uint32{},
		},
		{
			name:  "runs and gaps",
			input: "0-3/7",
			want:  []uint32{0, 1, 2, 3, 7},
		},
		{
			name:    "descending run",
			input:   "3-1",
			wantErr: true,
		},
		{
			name:    "runs out of order",
			input:   "5/1",
			wantErr: true,
		},
		{
			name:    "adjacent runs",
			input:   "1/2",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "a-b",
			wantErr: true,
		},
		{
			name:    "negative",
			input:   "-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNotation) {
					t.Fatalf("expected an invalid notation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(s.Slice(), tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		var s Set
		n := r.Intn(40)
		for j := 0; j < n; j++ {
			s.Add(uint32(r.Intn(64)))
		}
		v := Format(s)
		parsed, err := Parse(v)
		if err != nil {
			t.Fatalf("couldn't parse %q: %v", v, err)
		}
		if !parsed.Equal(s) {
			t.Fatalf("round trip of %v through %q gave %v", s.Slice(), v, parsed.Slice())
		}
	}
}

func TestSetOperations(t *testing.T) {
	s := New(3, 1, 2)
	if s.Add(2) {
		t.Fatal("adding an existing rank should not change the set")
	}
	if !s.Add(0) {
		t.Fatal("adding a new rank should change the set")
	}
	if !s.Contains(0) || s.Contains(4) {
		t.Fatalf("unexpected membership for %v", s.Slice())
	}
	universe := New(0, 1, 2, 3, 4, 5)
	if diff := testutil.Diff(universe.Difference(s).Slice(), []uint32{4, 5}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if !s.IsSubsetOf(universe) {
		t.Fatal("expected a subset of the universe")
	}
	if universe.IsSubsetOf(s) {
		t.Fatal("universe should not be a subset")
	}
}

func TestAnnotation(t *testing.T) {
	universe := New(0, 1, 2, 3, 4, 5, 6, 7)
	tests := []struct {
		name    string
		present Set
		want    string
	}{
		{
			name:    "everyone present",
			present: universe,
			want:    "@0-7|",
		},
		{
			name:    "nobody present",
			present: Set{},
			want:    "@|0-7",
		},
		{
			name:    "split",
			present: New(0, 1, 2, 3, 7),
			want:    "@0-3/7|4-6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Annotation(tt.present, universe); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
