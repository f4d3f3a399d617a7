// Package stacktrie merges the call stacks of many ranks into one prefix
// tree. Every node remembers which ranks went through it so divergence
// between ranks shows up as the point where a path splits.
package stacktrie

import (
	"fmt"
	"sort"

	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/rankset"
)

type (
	Node struct {
		IsStackEnd bool
		// Ranks went through the node.
		Ranks rankset.Set
		// EndRanks have their stack terminating at the node.
		EndRanks rankset.Set

		children map[string]*Node
	}

	Trie struct {
		root     *Node
		universe rankset.Set
	}

	// Visit describes a node reached during a walk. The root is visited with
	// an empty Key at depth 0, its children at depth 1 and so on.
	Visit struct {
		Node  *Node
		Key   string
		Depth int
	}
)

func newNode() *Node {
	return &Node{children: make(map[string]*Node)}
}

// Child returns the child stored under key, or nil.
func (n *Node) Child(key string) *Node {
	return n.children[key]
}

// Keys returns the keys of the children in lexicographic order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New returns an empty trie. universe is the set of every known rank and is
// never modified afterwards.
func New(universe []uint32) *Trie {
	return &Trie{
		root:     newNode(),
		universe: rankset.New(universe...),
	}
}

func (t *Trie) Root() *Node {
	return t.root
}

func (t *Trie) Universe() rankset.Set {
	return t.universe
}

// Insert adds the stack of rank, given as canonical keys ordered from the
// outermost frame to the innermost one. An empty stack marks the root as a
// stack end.
func (t *Trie) Insert(keys []string, rank uint32) {
	n := t.root
	for _, k := range keys {
		child, ok := n.children[k]
		if !ok {
			child = newNode()
			n.children[k] = child
		}
		child.Ranks.Add(rank)
		n = child
	}
	n.IsStackEnd = true
	n.Ranks.Add(rank)
	n.EndRanks.Add(rank)
}

// Annotation renders the ranks present at n and the ranks of the universe
// missing from it, e.g. "@0-3/7|4-6".
func (t *Trie) Annotation(n *Node) string {
	return rankset.Annotation(n.Ranks, t.universe)
}

// EndAnnotation renders the ranks whose stack terminates at n, in the same
// notation as Annotation.
func (t *Trie) EndAnnotation(n *Node) string {
	return rankset.Annotation(n.EndRanks, t.universe)
}

// Walk visits every node depth first, parents before children and siblings
// in lexicographic key order. The root is visited first. Walking stops at
// the first error returned by fn.
func (t *Trie) Walk(fn func(Visit) error) error {
	stack := []Visit{{Node: t.root}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(v); err != nil {
			return err
		}
		keys := v.Node.Keys()
		// Pushed in reverse so the smallest key is popped first.
		for i := len(keys) - 1; i >= 0; i-- {
			k := keys[i]
			stack = append(stack, Visit{Node: v.Node.children[k], Key: k, Depth: v.Depth + 1})
		}
	}
	return nil
}

// Validate checks that every node's ranks belong to the universe and that no
// child holds a rank its parent doesn't. The root only holds the ranks whose
// stack was empty, so its children are exempt from the parent check.
func (t *Trie) Validate() error {
	if !t.root.Ranks.IsSubsetOf(t.universe) {
		return fmt.Errorf("%w: root holds ranks %s outside of the universe", errorutil.ErrDataIntegrity, t.root.Ranks.Difference(t.universe))
	}
	return t.Walk(func(v Visit) error {
		if !v.Node.EndRanks.IsSubsetOf(v.Node.Ranks) {
			return fmt.Errorf("%w: node %q ends ranks %s that never reached it", errorutil.ErrDataIntegrity, v.Key, v.Node.EndRanks.Difference(v.Node.Ranks))
		}
		for _, k := range v.Node.Keys() {
			c := v.Node.children[k]
			if !c.Ranks.IsSubsetOf(t.universe) {
				return fmt.Errorf("%w: node %q holds ranks %s outside of the universe", errorutil.ErrDataIntegrity, k, c.Ranks.Difference(t.universe))
			}
			if v.Node != t.root && !c.Ranks.IsSubsetOf(v.Node.Ranks) {
				return fmt.Errorf("%w: node %q holds ranks %s missing from its parent", errorutil.ErrDataIntegrity, k, c.Ranks.Difference(v.Node.Ranks))
			}
		}
		return nil
	})
}
