package frame

import (
	"errors"
	"fmt"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/getsentry/stackmerge/internal/errorutil"
)

const (
	KindNative      Kind = "native"
	KindInterpreted Kind = "interpreted"

	// Keys used by the externally tagged encoding of a frame.
	taggedNative      = "CFrame"
	taggedInterpreted = "PyFrame"
)

type (
	Kind string

	Frame struct {
		Kind     Kind   `json:"kind"`
		File     string `json:"file"`
		Function string `json:"func"`
		Line     uint32 `json:"lineno"`

		// InstructionPointer is only set on native frames.
		InstructionPointer string `json:"ip,omitempty"`
		// Locals is only set on interpreted frames.
		Locals gojson.RawMessage `json:"locals,omitempty"`
	}

	// Stack is the list of frames reported by one rank, innermost frame first.
	Stack []Frame
)

var errUnknownShape = errors.New("unknown frame shape")

// Key returns the canonical key of the frame. Only the function, the file
// and the line take part in it so a native and an interpreted frame at the
// same location share a key.
func (f Frame) Key() string {
	return f.Function + " (" + f.File + ":" + strconv.FormatUint(uint64(f.Line), 10) + ")"
}

// DecodeBatch decodes a JSON array of stacks, one per rank. Each stack is an
// array of frame records, innermost first.
func DecodeBatch(b []byte) ([]Stack, error) {
	var raw [][]gojson.RawMessage
	if err := gojson.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errorutil.ErrDecode, err)
	}
	stacks := make([]Stack, 0, len(raw))
	for i, rs := range raw {
		if rs == nil {
			return nil, fmt.Errorf("%w: stack %d is not an array", errorutil.ErrDecode, i)
		}
		s := make(Stack, 0, len(rs))
		for j, rf := range rs {
			f, err := decodeFrame(rf)
			if err != nil {
				return nil, fmt.Errorf("%w: stack %d frame %d: %v", errorutil.ErrDecode, i, j, err)
			}
			s = append(s, f)
		}
		stacks = append(stacks, s)
	}
	return stacks, nil
}

func decodeFrame(b []byte) (Frame, error) {
	var fields map[string]gojson.RawMessage
	if err := gojson.Unmarshal(b, &fields); err != nil {
		return Frame{}, err
	}
	if fields == nil {
		return Frame{}, errUnknownShape
	}
	if len(fields) == 1 {
		if v, ok := fields[taggedNative]; ok {
			return decodeTagged(v, KindNative)
		}
		if v, ok := fields[taggedInterpreted]; ok {
			return decodeTagged(v, KindInterpreted)
		}
	}
	return fromFields(fields)
}

func decodeTagged(b []byte, kind Kind) (Frame, error) {
	var fields map[string]gojson.RawMessage
	if err := gojson.Unmarshal(b, &fields); err != nil {
		return Frame{}, err
	}
	f, err := fromFields(fields)
	if err != nil {
		return Frame{}, err
	}
	if f.Kind != kind {
		return Frame{}, fmt.Errorf("%w: %s record has the fields of a %s frame", errUnknownShape, kind, f.Kind)
	}
	return f, nil
}

func fromFields(fields map[string]gojson.RawMessage) (Frame, error) {
	ip, hasIP := fields["ip"]
	locals, hasLocals := fields["locals"]
	var f Frame
	switch {
	case hasIP && !hasLocals:
		f.Kind = KindNative
		if err := gojson.Unmarshal(ip, &f.InstructionPointer); err != nil {
			return Frame{}, fmt.Errorf("ip: %v", err)
		}
	case hasLocals && !hasIP:
		f.Kind = KindInterpreted
		f.Locals = locals
	default:
		return Frame{}, errUnknownShape
	}
	for _, field := range []struct {
		name string
		dst  interface{}
	}{
		{"file", &f.File},
		{"func", &f.Function},
		{"lineno", &f.Line},
	} {
		v, ok := fields[field.name]
		if !ok {
			return Frame{}, fmt.Errorf("missing field %q", field.name)
		}
		if err := gojson.Unmarshal(v, field.dst); err != nil {
			return Frame{}, fmt.Errorf("%s: %v", field.name, err)
		}
	}
	return f, nil
}
