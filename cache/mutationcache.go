package cache

import (
	"sync"

	"github.com/google/uuid"

	"goquery/mutation"
)

// MutationCache tracks in-flight/recent mutation handles by an opaque id
// (spec.md §3 "mutations ... keyed by identity rather than by content") and
// owns the shared per-scope mutation.Runner so that distinct Observer
// handles submitting under the same scope id queue against each other, not
// just against themselves (spec.md §4.3).
type MutationCache struct {
	mu       sync.Mutex
	handles  map[string]any // mutation.Observer[D,E,V,C], keyed by a uuid assigned at registration
	runners  map[string]*mutation.Runner
	defaults any // the last mutation.Callbacks[D,E,V,C] registered via SetDefaultMutationCallbacks
}

// NewMutationCache constructs an empty MutationCache.
func NewMutationCache() *MutationCache {
	return &MutationCache{
		handles: make(map[string]any),
		runners: make(map[string]*mutation.Runner),
	}
}

// SetDefaultMutationCallbacks registers cbs as the cache-level callbacks
// layer (spec.md §4.6 defaultMutationOptions): every mutation.Observer built
// with matching type parameters D,E,V,C fires cbs after its own observer-
// level callbacks at each lifecycle phase (spec.md §5). Registering again
// with the same type parameters replaces the previous registration; this
// mirrors QueryClient's single global default-options slot, not a per-key
// registry, since mutations have no structural key to key defaults by.
func SetDefaultMutationCallbacks[D any, E error, V any, C any](c *MutationCache, cbs mutation.Callbacks[D, E, V, C]) {
	c.mu.Lock()
	c.defaults = cbs
	c.mu.Unlock()
}

// DefaultMutationCallbacks returns the cache-level callbacks registered for
// D,E,V,C, or the zero Callbacks if none were registered (or the last
// registration was for different type parameters).
func DefaultMutationCallbacks[D any, E error, V any, C any](c *MutationCache) mutation.Callbacks[D, E, V, C] {
	c.mu.Lock()
	defaults := c.defaults
	c.mu.Unlock()
	cbs, _ := defaults.(mutation.Callbacks[D, E, V, C])
	return cbs
}

// Register assigns a stable id to an Observer handle so QueryClient fleet
// operations (e.g. a future MutationCache.FindAll) can enumerate it, and
// returns the id for the caller to retain.
func (c *MutationCache) Register(observer any) string {
	id := uuid.NewString()
	c.mu.Lock()
	c.handles[id] = observer
	c.mu.Unlock()
	return id
}

// Unregister drops the handle once its owner unmounts.
func (c *MutationCache) Unregister(id string) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

// RunnerFor returns the shared Runner for scopeID, creating one on first
// use so every Observer submitting under the same scopeID serializes
// against the same queue. An empty scopeID gets its own private Runner
// (spec.md's "each mutate is an event" when no scope is shared).
func (c *MutationCache) RunnerFor(scopeID string) *mutation.Runner {
	if scopeID == "" {
		return mutation.NewRunner()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runners[scopeID]
	if !ok {
		r = mutation.NewRunner()
		c.runners[scopeID] = r
	}
	return r
}
