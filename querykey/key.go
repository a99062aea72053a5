// Package querykey implements the structural key model: the ordered,
// heterogeneous identity that a Query is addressed by.
//
// A Key is an ordered list of segments. Each segment is either a primitive
// (string, number, bool, nil), a Map (order-independent), or a Set
// (order-independent). Two keys are equal iff they have the same length and
// every segment compares structurally equal, regardless of how a Map or Set
// segment was constructed or iterated.
package querykey

import (
	"fmt"
	"sort"
)

// Map is an order-independent key segment, e.g. {"status": "done", "user": 1}.
type Map map[string]any

// Set is an order-independent key segment, e.g. a tag list where order
// shouldn't affect identity.
type Set []any

// Key is the sole identity for a Query. Two Keys with the same
// structure, regardless of Map/Set construction order, are equal and hash
// identically.
type Key []any

// Equal reports whether k and other are structurally identical.
func Equal(k, other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !segmentEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a structural prefix of k: len(prefix) <=
// len(k) and every segment of prefix equals the corresponding segment of k.
func HasPrefix(k, prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if !segmentEqual(k[i], prefix[i]) {
			return false
		}
	}
	return true
}

func segmentEqual(a, b any) bool {
	switch av := a.(type) {
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !segmentEqual(v, bvv) {
				return false
			}
		}
		return true
	case Set:
		bv, ok := b.(Set)
		if !ok || len(av) != len(bv) {
			return false
		}
		return setEqual(av, bv)
	default:
		switch bv := b.(type) {
		case Map, Set:
			return false
		default:
			return a == bv
		}
	}
}

func setEqual(a, b Set) bool {
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for i, bv := range b {
			if used[i] {
				continue
			}
			if segmentEqual(av, bv) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Hash returns a stable string digest of k suitable for use as a map key in
// the cache registry. Equal keys (per Equal) always hash identically,
// regardless of Map/Set iteration order.
func Hash(k Key) string {
	h := make([]byte, 0, 64)
	for i, seg := range k {
		if i > 0 {
			h = append(h, '\x1f')
		}
		h = appendSegment(h, seg)
	}
	return string(h)
}

func appendSegment(h []byte, seg any) []byte {
	switch v := seg.(type) {
	case Map:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h = append(h, "map{"...)
		for i, k := range keys {
			if i > 0 {
				h = append(h, ',')
			}
			h = append(h, k...)
			h = append(h, ':')
			h = appendSegment(h, v[k])
		}
		return append(h, '}')
	case Set:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = string(appendSegment(nil, e))
		}
		sort.Strings(parts)
		h = append(h, "set["...)
		for i, p := range parts {
			if i > 0 {
				h = append(h, ',')
			}
			h = append(h, p...)
		}
		return append(h, ']')
	default:
		return append(h, fmt.Sprintf("%T:%v", v, v)...)
	}
}

// String renders k for diagnostics and log lines (hcat logs dependencies the
// same way, via a stable %s-able identity string).
func (k Key) String() string {
	return Hash(k)
}
