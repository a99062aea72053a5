package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"goquery/internal/clog"
	"goquery/querykey"
)

// QueryCache is the registry of live Query entries, keyed by the
// structural hash of their querykey.Key (spec.md §4.5). It holds entries as
// `any` because Go generics cannot express a map over arbitrary
// *query.Query[K,D,E] instantiations; Build/Find recover the concrete type
// via a caller-supplied factory/type-assertion, mirroring how a dynamically
// typed cache would work natively.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*queryEntry

	// disposed is an LRU of recently garbage-collected entries' last-known
	// state, kept for a brief grace window so GetQueryData immediately after
	// GC doesn't look like "never fetched" (spec.md DOMAIN STACK, golang-lru).
	disposed *lru.Cache[string, any]

	log *clog.Logger
}

// NewQueryCache constructs an empty cache. disposedCapacity bounds the
// post-GC grace-window LRU (0 or less selects a capacity of 256).
func NewQueryCache(disposedCapacity int, log *clog.Logger) *QueryCache {
	if log == nil {
		log = clog.Discard
	}
	if disposedCapacity <= 0 {
		disposedCapacity = 256
	}
	disposed, _ := lru.New[string, any](disposedCapacity)
	return &QueryCache{
		entries:  make(map[string]*queryEntry),
		disposed: disposed,
		log:      log,
	}
}

// Build returns the Query bound to key, constructing it with factory if this
// is the first time key has been seen, and always attaching an observer
// (spec.md §4.5 "build(key, factory): get-or-create entry; attach observer;
// cancel pending GC"). Callers must call Detach when their observer
// unmounts.
func Build[Q any](c *QueryCache, qkey querykey.Key, gcTime time.Duration, factory func() Q, cancel func(Q), state func(Q) any) Q {
	h := qkey.String()

	c.mu.Lock()
	e, ok := c.entries[h]
	if !ok {
		v := factory()
		e = newQueryEntry(qkey, v, gcTime, func() { cancel(v) }, func() any { return state(v) })
		c.entries[h] = e
		c.disposed.Remove(h)
	}
	c.mu.Unlock()

	e.attach()
	return e.value.(Q)
}

// Detach releases one observer's hold on the entry at key. When the last
// observer detaches, a GC timer is armed (or GC runs immediately if
// gcTime==0).
func (c *QueryCache) Detach(qkey querykey.Key) {
	h := qkey.String()
	c.mu.Lock()
	e, ok := c.entries[h]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.detach(func() { c.remove(h) })
}

// Get returns the raw entry value stored for key (for Find/FindAll and
// QueryClient operations that need to act on a Query without attaching an
// observer), and whether it was found.
func (c *QueryCache) Get(qkey querykey.Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[qkey.String()]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetDisposed returns the last-known state recorded for key at the moment
// it was garbage-collected, within the grace window (spec.md DOMAIN STACK).
func (c *QueryCache) GetDisposed(qkey querykey.Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed.Get(qkey.String())
}

// Remove disposes the entry at key immediately: cancels any in-flight
// fetch and deletes the row, regardless of observer count (spec.md §4.5
// "remove(key)").
func (c *QueryCache) Remove(qkey querykey.Key) {
	c.remove(qkey.String())
}

func (c *QueryCache) remove(h string) {
	c.mu.Lock()
	e, ok := c.entries[h]
	if ok {
		delete(c.entries, h)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.state != nil {
		c.disposed.Add(h, e.state())
	}
	c.log.Debug("disposed query entry %s", h)
}

// Clear removes every entry, cancelling any in-flight fetches.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	hashes := make([]string, 0, len(c.entries))
	for h := range c.entries {
		hashes = append(hashes, h)
	}
	c.mu.Unlock()
	for _, h := range hashes {
		c.remove(h)
	}
}

// Entry describes one cache row for Find/FindAll consumers without forcing
// them to know the concrete Query type parameters.
type Entry struct {
	Key           querykey.Key
	Value         any
	ObserverCount int
}

// FindAll returns every entry whose key matches matcher (spec.md §4.5).
// Prefix/predicate composition lives in cache/filters.go; FindAll here is
// the raw iteration primitive.
func (c *QueryCache) FindAll(matcher func(Entry) bool) []Entry {
	c.mu.Lock()
	snapshot := make([]*queryEntry, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, e)
	}
	c.mu.Unlock()

	var out []Entry
	for _, e := range snapshot {
		entry := Entry{Key: e.key, Value: e.value, ObserverCount: e.observers()}
		if matcher == nil || matcher(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// Find returns the first entry matching matcher, or (Entry{}, false).
func (c *QueryCache) Find(matcher func(Entry) bool) (Entry, bool) {
	all := c.FindAll(matcher)
	if len(all) == 0 {
		return Entry{}, false
	}
	return all[0], true
}
