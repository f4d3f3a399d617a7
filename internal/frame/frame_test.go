package frame

import (
	"errors"
	"testing"

	gojson "github.com/goccy/go-json"

	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/testutil"
)

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Stack
	}{
		{
			name:  "empty batch",
			input: `[]`,
			want:  []Stack{},
		},
		{
			name:  "empty stack",
			input: `[[]]`,
			want:  []Stack{{}},
		},
		{
			name:  "native frame",
			input: `[[{"file":"a.c","func":"main","ip":"0x4005d0","lineno":1}]]`,
			want: []Stack{
				{
					{Kind: KindNative, File: "a.c", Function: "main", Line: 1, InstructionPointer: "0x4005d0"},
				},
			},
		},
		{
			name:  "interpreted frame",
			input: `[[{"file":"train.py","func":"step","lineno":42,"locals":{"i":3}}]]`,
			want: []Stack{
				{
					{Kind: KindInterpreted, File: "train.py", Function: "step", Line: 42, Locals: gojson.RawMessage(`{"i":3}`)},
				},
			},
		},
		{
			name: "tagged frames",
			input: `[[
				{"PyFrame":{"file":"train.py","func":"step","lineno":42,"locals":[]}},
				{"CFrame":{"file":"a.c","func":"main","ip":"0x1","lineno":1}}
			]]`,
			want: []Stack{
				{
					{Kind: KindInterpreted, File: "train.py", Function: "step", Line: 42, Locals: gojson.RawMessage(`[]`)},
					{Kind: KindNative, File: "a.c", Function: "main", Line: 1, InstructionPointer: "0x1"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBatch([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(got, tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestDecodeNullLocals(t *testing.T) {
	stacks, err := DecodeBatch([]byte(`[[{"file":"train.py","func":"step","lineno":42,"locals":null}]]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stacks) != 1 || len(stacks[0]) != 1 {
		t.Fatalf("expected one stack of one frame, got %v", stacks)
	}
	if f := stacks[0][0]; f.Kind != KindInterpreted || f.Key() != "step (train.py:42)" {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestDecodeBatchErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `[[{`},
		{name: "not an array", input: `{"rank0":[]}`},
		{name: "stack is not an array", input: `[{"file":"a.c"}]`},
		{name: "null stack", input: `[null]`},
		{name: "null stack among stacks", input: `[[],null]`},
		{name: "frame is not an object", input: `[["main"]]`},
		{name: "null frame", input: `[[null]]`},
		{name: "neither ip nor locals", input: `[[{"file":"a.c","func":"main","lineno":1}]]`},
		{name: "both ip and locals", input: `[[{"file":"a.c","func":"main","ip":"0x1","lineno":1,"locals":{}}]]`},
		{name: "missing file", input: `[[{"func":"main","ip":"0x1","lineno":1}]]`},
		{name: "missing lineno", input: `[[{"file":"a.c","func":"main","ip":"0x1"}]]`},
		{name: "negative lineno", input: `[[{"file":"a.c","func":"main","ip":"0x1","lineno":-1}]]`},
		{name: "string lineno", input: `[[{"file":"a.c","func":"main","ip":"0x1","lineno":"1"}]]`},
		{name: "mistagged frame", input: `[[{"CFrame":{"file":"a.py","func":"f","lineno":1,"locals":{}}}]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatch([]byte(tt.input))
			if !errors.Is(err, errorutil.ErrDecode) {
				t.Fatalf("expected a decode error, got %v", err)
			}
		})
	}
}

func TestKey(t *testing.T) {
	native := Frame{Kind: KindNative, File: "a.c", Function: "main", Line: 1, InstructionPointer: "0x1"}
	if got, want := native.Key(), "main (a.c:1)"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	// Volatile fields and the frame kind don't take part in the key.
	interpreted := Frame{Kind: KindInterpreted, File: "a.c", Function: "main", Line: 1, Locals: gojson.RawMessage(`{"x":1}`)}
	other := native
	other.InstructionPointer = "0x2"
	if native.Key() != interpreted.Key() || native.Key() != other.Key() {
		t.Fatalf("expected identical keys, got %q, %q and %q", native.Key(), interpreted.Key(), other.Key())
	}
}

func TestKeyCollision(t *testing.T) {
	// Two distinct call sites whose rendered text matches share a key.
	a := Frame{Function: "f (g.c:1) h", File: "x.c", Line: 2}
	b := Frame{Function: "f", File: "g.c:1) h (x.c", Line: 2}
	if a.Key() != b.Key() {
		t.Fatalf("expected a collision, got %q and %q", a.Key(), b.Key())
	}
}

func TestNormalize(t *testing.T) {
	stack := Stack{
		{Function: "leaf", File: "c.c", Line: 3},
		{Function: "helper.lto_priv.0", File: "b.c", Line: 2},
		{Function: "mid", File: "b.c", Line: 9},
		{Function: "main", File: "a.c", Line: 1},
	}

	tests := []struct {
		name       string
		normalizer Normalizer
		stack      Stack
		want       []string
	}{
		{
			name:  "empty stack",
			stack: Stack{},
			want:  []string{},
		},
		{
			name:  "reversed to root first",
			stack: stack,
			want: []string{
				"main (a.c:1)",
				"mid (b.c:9)",
				"helper.lto_priv.0 (b.c:2)",
				"leaf (c.c:3)",
			},
		},
		{
			name:       "truncated at marker",
			normalizer: Normalizer{TruncateMarker: "lto_priv"},
			stack:      stack,
			want: []string{
				"main (a.c:1)",
				"mid (b.c:9)",
			},
		},
		{
			name:       "marker on outermost frame",
			normalizer: Normalizer{TruncateMarker: "main"},
			stack:      stack,
			want:       []string{},
		},
		{
			name:       "marker absent",
			normalizer: Normalizer{TruncateMarker: "lto_priv"},
			stack:      stack[2:],
			want: []string{
				"main (a.c:1)",
				"mid (b.c:9)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := testutil.Diff(tt.normalizer.Normalize(tt.stack), tt.want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}
