package cache

import (
	"github.com/hashicorp/go-bexpr"

	"goquery/querykey"
)

// StateView is the flattened projection of a QueryState that go-bexpr
// filters run over (spec.md §6.5 "a flattened view of QueryState"). Callers
// supply a func(Entry) StateView adapter since Entry.Value is opaque
// (generic-over-D,E Query).
type StateView struct {
	Status      string `bexpr:"status"`
	FetchStatus string `bexpr:"fetch_status"`
	IsStale     bool   `bexpr:"is_stale"`
	IsInvalidated bool `bexpr:"is_invalidated"`
}

// Filters composes the prefix/exact key match, an optional Go predicate,
// and an optional go-bexpr string expression, matching spec.md §4.5's
// "exact=false performs prefix match on key components; predicates can
// further constrain".
type Filters struct {
	Key          querykey.Key
	HasKey       bool
	Exact        bool
	Predicate    func(Entry) bool
	Expression   string // compiled lazily; empty means "no expression filter"
	ViewOf       func(Entry) StateView
}

// Matcher compiles f into a func(Entry) bool suitable for QueryCache.Find/
// FindAll. It returns an error only for a malformed Expression, which is
// compiled here via bexpr.CreateFilter, the way hcat validates its own
// `-filter` flag eagerly.
func (f Filters) Matcher() (func(Entry) bool, error) {
	var eval *bexpr.Evaluator
	if f.Expression != "" {
		var err error
		eval, err = bexpr.CreateFilter(f.Expression)
		if err != nil {
			return nil, err
		}
	}

	return func(e Entry) bool {
		if f.HasKey {
			if f.Exact {
				if !querykey.Equal(f.Key, e.Key) {
					return false
				}
			} else if !querykey.HasPrefix(e.Key, f.Key) {
				return false
			}
		}
		if f.Predicate != nil && !f.Predicate(e) {
			return false
		}
		if eval != nil && f.ViewOf != nil {
			ok, err := eval.Evaluate(f.ViewOf(e))
			if err != nil || !ok {
				return false
			}
		}
		return true
	}, nil
}
