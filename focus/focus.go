// Package focus implements the process-wide Focus/Online manager subjects
// spec.md §4.11 calls for: pub-sub subjects Observers listen to for
// resume-refetch, ported from gux's state.Store generic pub-sub
// (_examples/dougbarrett-gux/state/store.go), generalized off the
// `js && wasm` build tag it originally lived behind since this module runs
// server-side.
package focus

import (
	"sort"
	"sync"
)

// Store is a generic reactive container with subscribe/notify, the same
// shape as gux's state.Store but without the WASM build constraint.
type Store[T any] struct {
	mu          sync.RWMutex
	state       T
	subscribers map[int]func(T)
	nextID      int
}

// NewStore constructs a Store with initial as its starting value.
func NewStore[T any](initial T) *Store[T] {
	return &Store[T]{state: initial, subscribers: make(map[int]func(T))}
}

// Get returns the current value.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the value and notifies subscribers in registration order.
func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	s.state = v
	subs := snapshotSubs(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(v)
	}
}

// Subscribe registers fn for future Set calls; returns an unsubscribe func.
func (s *Store[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func snapshotSubs[T any](m map[int]func(T)) []func(T) {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(T), 0, len(m))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// Manager is the Focus subject: true means the process currently has
// "focus" (spec.md's window-focus analog). The host sets it; nothing in this
// module drives it from a real event source.
type Manager = Store[bool]

// NewManager constructs a Manager starting at initial.
func NewManager(initial bool) *Manager { return NewStore(initial) }

// OnlineManager is the Online subject: true means the process believes it
// has network connectivity.
type OnlineManager = Store[bool]

// NewOnlineManager constructs an OnlineManager starting at initial.
func NewOnlineManager(initial bool) *OnlineManager { return NewStore(initial) }
