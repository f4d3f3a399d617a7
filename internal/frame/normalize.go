package frame

import "strings"

// Normalizer turns a stack into the sequence of canonical keys inserted in
// the trie, outermost frame first.
type Normalizer struct {
	// TruncateMarker, when set, cuts a stack at the first frame whose key
	// contains it. That frame and every deeper frame are dropped. Compilers
	// emit such markers for link-time private symbols (e.g. "lto_priv").
	TruncateMarker string
}

func (n Normalizer) Normalize(s Stack) []string {
	keys := make([]string, 0, len(s))
	for i := len(s) - 1; i >= 0; i-- {
		k := s[i].Key()
		if n.TruncateMarker != "" && strings.Contains(k, n.TruncateMarker) {
			break
		}
		keys = append(keys, k)
	}
	return keys
}
