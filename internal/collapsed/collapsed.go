// Package collapsed writes a merged stack trie as a collapsed-stack listing,
// the line format flamegraph renderers consume:
//
//	main (a.c:1)@0-3|;step (b.py:9)@0-2|3 @0-2|3 1
//
// Every frame label carries the ranks that reached it and the ranks that
// didn't. The field before the weight holds the ranks whose stack ends on
// the path, not the ranks present at the last frame: where some ranks stop
// at a frame and others go deeper, it differs from that frame's label
// ("main (a.c:1)@0-2| @2|0-1 1"). The trailing integer is always 1 and marks one distinct path; it
// is not a sample count. Renderers treating it as a weight will draw every
// path with the same width regardless of how many ranks share it, the rank
// counts only live in the annotations.
package collapsed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/getsentry/stackmerge/internal/rankset"
	"github.com/getsentry/stackmerge/internal/stacktrie"
)

const (
	frameSeparator = ";"
	pathWeight     = "1"
)

var ErrInvalidLine = errors.New("invalid collapsed line")

type (
	// Record is one stack-terminating path of the trie.
	Record struct {
		// Labels are "<key><annotation>" from the outermost frame to the
		// terminating one. They are empty for ranks reporting an empty stack.
		Labels []string
		// Annotation holds the ranks whose stack terminates on this path.
		// Labels carry the ranks that went through each frame, so for a
		// frame where some ranks stopped and others went deeper the two
		// differ.
		Annotation string
	}

	Options struct {
		// Compact drops the annotation of the terminating ranks, producing
		// "label1;...;labelN 1".
		Compact bool
	}
)

// Records returns one record per stack-terminating node, in walk order.
func Records(t *stacktrie.Trie) []Record {
	var (
		records []Record
		labels  []string
	)
	_ = t.Walk(func(v stacktrie.Visit) error {
		if v.Depth > 0 {
			labels = append(labels[:v.Depth-1], v.Key+t.Annotation(v.Node))
		}
		if v.Node.IsStackEnd {
			path := make([]string, v.Depth)
			copy(path, labels[:v.Depth])
			records = append(records, Record{Labels: path, Annotation: t.EndAnnotation(v.Node)})
		}
		return nil
	})
	return records
}

// Line renders the record as one collapsed-stack line, without a newline.
func (r Record) Line(opts Options) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(r.Labels, frameSeparator))
	if len(r.Labels) == 0 {
		sb.WriteString(r.Annotation)
	} else if !opts.Compact {
		sb.WriteString(" ")
		sb.WriteString(r.Annotation)
	}
	sb.WriteString(" ")
	sb.WriteString(pathWeight)
	return sb.String()
}

// Ranks returns the ranks whose stack terminates on this path.
func (r Record) Ranks() (rankset.Set, error) {
	present, _, err := splitAnnotation(r.Annotation)
	return present, err
}

// Write writes every record of the trie to w, one line each.
func Write(w io.Writer, t *stacktrie.Trie, opts Options) error {
	bw := bufio.NewWriter(w)
	for _, r := range Records(t) {
		if _, err := bw.WriteString(r.Line(opts) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Parse reads a listing produced by Write, in either form. Compact lines
// don't carry the terminating ranks; the annotation of their last label is
// used instead, which only differs when some ranks went deeper.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	n := 0
	for s.Scan() {
		n++
		line := s.Text()
		if line == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		records = append(records, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseLine(line string) (Record, error) {
	i := strings.LastIndex(line, " ")
	if i < 0 || line[i+1:] != pathWeight {
		return Record{}, fmt.Errorf("%w: missing trailing weight", ErrInvalidLine)
	}
	body := line[:i]

	// A root record is a bare annotation.
	if strings.HasPrefix(body, "@") && !strings.Contains(body, " ") && !strings.Contains(body, frameSeparator) {
		if _, _, err := splitAnnotation(body); err != nil {
			return Record{}, err
		}
		return Record{Annotation: body}, nil
	}

	var summary string
	if j := strings.LastIndex(body, " @"); j >= 0 {
		if _, _, err := splitAnnotation(body[j+1:]); err == nil {
			summary = body[j+1:]
			body = body[:j]
		}
	}
	labels := strings.Split(body, frameSeparator)
	last := labels[len(labels)-1]
	k := strings.LastIndex(last, "@")
	if k < 0 {
		return Record{}, fmt.Errorf("%w: frame %q has no annotation", ErrInvalidLine, last)
	}
	annotation := last[k:]
	if _, _, err := splitAnnotation(annotation); err != nil {
		return Record{}, err
	}
	if summary == "" {
		summary = annotation
	}
	return Record{Labels: labels, Annotation: summary}, nil
}

func splitAnnotation(a string) (rankset.Set, rankset.Set, error) {
	if !strings.HasPrefix(a, "@") {
		return rankset.Set{}, rankset.Set{}, fmt.Errorf("%w: annotation %q", ErrInvalidLine, a)
	}
	parts := strings.Split(a[1:], "|")
	if len(parts) != 2 {
		return rankset.Set{}, rankset.Set{}, fmt.Errorf("%w: annotation %q", ErrInvalidLine, a)
	}
	present, err := rankset.Parse(parts[0])
	if err != nil {
		return rankset.Set{}, rankset.Set{}, err
	}
	leaked, err := rankset.Parse(parts[1])
	if err != nil {
		return rankset.Set{}, rankset.Set{}, err
	}
	return present, leaked, nil
}
