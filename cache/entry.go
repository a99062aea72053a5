// Package cache implements the QueryCache/MutationCache registry: get-or-
// create entries keyed by structural hash, GC timers keyed on observer
// count reaching zero, and prefix/predicate matching (spec.md §4.5).
package cache

import (
	"sync"
	"time"

	"goquery/querykey"
)

// queryEntry is one cache row for a Query. The cache holds it as `any`
// internally (Go generics cannot existentially type a heterogeneous map of
// *Query[K,D,E] for arbitrary D,E) and type-asserts back to the caller's
// concrete *Query on lookup; see Build.
type queryEntry struct {
	mu    sync.Mutex
	key   querykey.Key
	value any // *query.Query[K,D,E] or *query.InfiniteQuery[K,T,P,E]

	observerCount int
	gcTimer       *time.Timer
	gcTime        time.Duration

	cancel func() // cancels the underlying Query's in-flight fetch, if any
	state  func() any
}

func newQueryEntry(key querykey.Key, value any, gcTime time.Duration, cancel func(), state func() any) *queryEntry {
	return &queryEntry{key: key, value: value, gcTime: gcTime, cancel: cancel, state: state}
}

// attach increments the observer count and cancels any pending GC timer.
func (e *queryEntry) attach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observerCount++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
}

// detach decrements the observer count; if it reaches zero, onExpire is
// armed to fire after gcTime (or immediately if gcTime==0).
func (e *queryEntry) detach(onExpire func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observerCount--
	if e.observerCount > 0 {
		return
	}
	if e.gcTime <= 0 {
		e.mu.Unlock()
		onExpire()
		e.mu.Lock()
		return
	}
	e.gcTimer = time.AfterFunc(e.gcTime, onExpire)
}

func (e *queryEntry) observers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observerCount
}
