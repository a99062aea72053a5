package client

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"goquery/cache"
	"goquery/focus"
	"goquery/internal/clog"
	"goquery/mutation"
	"goquery/query"
	"goquery/querykey"
)

// Client is the QueryClient entry point (spec.md §4.6): owns the
// QueryCache/MutationCache, the default options layer, and the
// Focus/Online managers every Observer mounted through it shares.
type Client struct {
	Queries   *cache.QueryCache
	Mutations *cache.MutationCache
	Focus     *focus.Manager
	Online    *focus.OnlineManager
	Log       *clog.Logger

	defaultGCTime time.Duration

	obsMu   sync.Mutex
	obsSubs map[any]func() // *query.Observer[K,D,E] -> Focus/Online unsubscribe, set by BuildObserver
}

// New constructs a Client with its own QueryCache/MutationCache and
// process-wide Focus/Online managers.
func New(log *clog.Logger) *Client {
	if log == nil {
		log = clog.Discard
	}
	return &Client{
		Queries:       cache.NewQueryCache(256, log.With("(cache)")),
		Mutations:     cache.NewMutationCache(),
		Focus:         focus.NewManager(true),
		Online:        focus.NewOnlineManager(true),
		Log:           log,
		defaultGCTime: 5 * time.Minute,
		obsSubs:       make(map[any]func()),
	}
}

// subscribeResume wires obs's OnFocus/OnReconnect/SetOffline hooks to c's
// Focus/Online managers (spec.md §2 item 11, §4.4 "Resume/focus/online"), and
// returns the cleanup to run when obs unmounts.
func subscribeResume[K any, D any, E error](c *Client, obs *query.Observer[K, D, E]) func() {
	unFocus := c.Focus.Subscribe(func(focused bool) {
		if focused {
			obs.OnFocus()
		}
	})
	unOnline := c.Online.Subscribe(func(online bool) {
		obs.SetOffline(!online)
		if online {
			obs.OnReconnect()
		}
	})
	return func() {
		unFocus()
		unOnline()
	}
}

// Filters selects a subset of cached Queries for a fleet operation by key
// (prefix, or exact when Exact is set) and an optional predicate. There is
// no filter by query type.
type Filters struct {
	Key       querykey.Key
	HasKey    bool
	Exact     bool
	Predicate func(cache.Entry) bool
}

func (f Filters) toCacheFilters() cache.Filters {
	return cache.Filters{Key: f.Key, HasKey: f.HasKey, Exact: f.Exact, Predicate: f.Predicate}
}

// RefetchType controls which matched queries InvalidateQueries actually
// refetches (spec.md §4.6).
type RefetchType int

const (
	RefetchActive RefetchType = iota // only queries with ObserverCount > 0
	RefetchAll
	RefetchNone
)

func (c *Client) matches(f Filters) []cache.Entry {
	m, err := f.toCacheFilters().Matcher()
	if err != nil {
		c.Log.Warn("invalid filter: %v", err)
		return nil
	}
	return c.Queries.FindAll(m)
}

// InvalidateQueries marks every matching Query invalidated and, per
// refetchType, triggers a background refetch (spec.md §4.6).
func (c *Client) InvalidateQueries(ctx context.Context, f Filters, refetchType RefetchType) error {
	var errs error
	for _, e := range c.matches(f) {
		ops, ok := e.Value.(entryOps)
		if !ok {
			continue
		}
		ops.Invalidate()
		if refetchType == RefetchNone {
			continue
		}
		if ops.ObserverCount() > 0 || refetchType == RefetchAll {
			go func(o entryOps) {
				if err := o.Refetch(ctx); err != nil {
					c.Log.Debug("background refetch after invalidate failed: %v", err)
				}
			}(ops)
		}
	}
	return errs
}

// RefetchQueries forces a fetch on every matching Query, bypassing
// staleness (spec.md §4.6).
func (c *Client) RefetchQueries(ctx context.Context, f Filters) error {
	var errs *multierror.Error
	for _, e := range c.matches(f) {
		if ops, ok := e.Value.(entryOps); ok {
			if err := ops.Refetch(ctx); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

// CancelQueries aborts the in-flight fetch of every matching Query
// (spec.md §4.6).
func (c *Client) CancelQueries(f Filters) {
	for _, e := range c.matches(f) {
		if ops, ok := e.Value.(entryOps); ok {
			ops.Cancel()
		}
	}
}

// ResetQueries returns every matching Query to its initial pending state
// (spec.md §4.6).
func (c *Client) ResetQueries(f Filters) {
	for _, e := range c.matches(f) {
		if ops, ok := e.Value.(entryOps); ok {
			ops.Reset()
		}
	}
}

// Clear drops every cached Query, cancelling in-flight fetches
// (spec.md §4.6).
func (c *Client) Clear() {
	c.Queries.Clear()
}

// BuildObserver is the generic get-or-create + mount entry point
// corresponding to spec.md's `build-observer` operation: it looks up (or
// constructs, via factory) the Query for key in the client's QueryCache,
// then mounts an Observer on it with opts resolved against client defaults.
func BuildObserver[K any, D any, E error](
	c *Client,
	key K,
	qkey querykey.Key,
	fn query.QueryFn[K, D],
	retry query.Resolver[bool],
	retryDelay query.Resolver[time.Duration],
	clientDefaults query.ObserverOptions[D, E],
	callSite query.ObserverOptions[D, E],
	onChange func(query.Result[D, E]),
) *query.Observer[K, D, E] {
	opts := ResolveObserverOptions(callSite, clientDefaults)
	gcTime := c.defaultGCTime
	if opts.GCTime != nil {
		gcTime = *opts.GCTime
	}

	q := cache.Build(c.Queries, qkey, gcTime, func() *query.Query[K, D, E] {
		return query.New[K, D, E](key, fn, retry, retryDelay, c.Log.With("(query "+qkey.String()+")"))
	}, func(q *query.Query[K, D, E]) { q.Cancel() }, func(q *query.Query[K, D, E]) any { return q.State() })

	obs := query.NewObserver[K, D, E](q, opts, onChange)

	cleanup := subscribeResume(c, obs)
	c.obsMu.Lock()
	c.obsSubs[obs] = cleanup
	c.obsMu.Unlock()

	return obs
}

// DetachObserver releases an Observer's hold on its Query, unsubscribes it
// from the Focus/Online managers, and arms GC if it was the last observer
// (spec.md §4.5).
func DetachObserver[K any, D any, E error](c *Client, qkey querykey.Key, o *query.Observer[K, D, E]) {
	c.obsMu.Lock()
	cleanup, ok := c.obsSubs[o]
	delete(c.obsSubs, o)
	c.obsMu.Unlock()
	if ok {
		cleanup()
	}

	o.Unmount()
	c.Queries.Detach(qkey)
}

// SetQueryData atomically overwrites the data cached for key, returning
// whether the write was applied (it is rejected if updatedAt is older than
// the Query's current DataUpdatedAt, per spec.md §9 Open Question (b)).
func SetQueryData[K any, D any, E error](c *Client, qkey querykey.Key, updater func(current D, hadData bool) D, updatedAt time.Time) bool {
	v, ok := c.Queries.Get(qkey)
	if !ok {
		return false
	}
	q, ok := v.(*query.Query[K, D, E])
	if !ok {
		return false
	}
	before := q.State()
	q.SetData(updater, updatedAt)
	after := q.State()
	return after.DataUpdateCount != before.DataUpdateCount
}

// GetQueryData reads the cached data for key without attaching an
// observer. The second return value is false if key is unknown or has no
// data yet.
func GetQueryData[K any, D any, E error](c *Client, qkey querykey.Key) (D, bool) {
	v, ok := c.Queries.Get(qkey)
	if !ok {
		var zero D
		return zero, false
	}
	q, ok := v.(*query.Query[K, D, E])
	if !ok {
		var zero D
		return zero, false
	}
	s := q.State()
	return s.Data, s.HasData
}

// FetchQuery imperatively fetches key (joining an in-flight fetch if one
// exists, spec.md invariant 1), returning the resolved data.
func FetchQuery[K any, D any, E error](
	c *Client,
	key K,
	qkey querykey.Key,
	fn query.QueryFn[K, D],
	retry query.Resolver[bool],
	retryDelay query.Resolver[time.Duration],
	gcTime time.Duration,
	ctx context.Context,
) (D, error) {
	q := cache.Build(c.Queries, qkey, gcTime, func() *query.Query[K, D, E] {
		return query.New[K, D, E](key, fn, retry, retryDelay, c.Log.With("(query "+qkey.String()+")"))
	}, func(q *query.Query[K, D, E]) { q.Cancel() }, func(q *query.Query[K, D, E]) any { return q.State() })
	defer c.Queries.Detach(qkey)
	return q.Fetch(ctx)
}

// PrefetchQuery is FetchQuery with the result and error discarded
// (spec.md §4.6).
func PrefetchQuery[K any, D any, E error](
	c *Client,
	key K,
	qkey querykey.Key,
	fn query.QueryFn[K, D],
	retry query.Resolver[bool],
	retryDelay query.Resolver[time.Duration],
	gcTime time.Duration,
	ctx context.Context,
) {
	_, _ = FetchQuery[K, D, E](c, key, qkey, fn, retry, retryDelay, gcTime, ctx)
}

// EnsureQueryData returns the cached value if fresh, else fetches
// (spec.md §4.6).
func EnsureQueryData[K any, D any, E error](
	c *Client,
	key K,
	qkey querykey.Key,
	fn query.QueryFn[K, D],
	retry query.Resolver[bool],
	retryDelay query.Resolver[time.Duration],
	staleTime query.StaleTime,
	gcTime time.Duration,
	ctx context.Context,
) (D, error) {
	if v, ok := c.Queries.Get(qkey); ok {
		if q, ok := v.(*query.Query[K, D, E]); ok {
			if !q.IsStale(staleTime, time.Now()) {
				return q.State().Data, nil
			}
		}
	}
	return FetchQuery[K, D, E](c, key, qkey, fn, retry, retryDelay, gcTime, ctx)
}

// NewMutationObserver wires a mutation.Observer into this Client's
// MutationCache, sharing the per-scopeID runner across every Observer
// registered with the same scope (spec.md §4.3). The returned id is the
// Observer's handle in the MutationCache; pass it to DetachMutationObserver
// when the caller unmounts.
func NewMutationObserver[D any, E error, V any, C any](
	c *Client,
	fn mutation.Fn[V, D],
	retry func(int, error) bool,
	retryDelay func(int, error) time.Duration,
	cbs mutation.Callbacks[D, E, V, C],
	scope mutation.Scope,
	scopeID string,
	onChange func(mutation.Result[D, E, V, C]),
) (*mutation.Observer[D, E, V, C], string) {
	runner := c.Mutations.RunnerFor(scopeID)
	cacheCbs := cache.DefaultMutationCallbacks[D, E, V, C](c.Mutations)
	o := mutation.NewObserver[D, E, V, C](fn, retry, retryDelay, cbs, cacheCbs, scope, scopeID, runner, c.Log.With("(mutation)"), onChange)
	id := c.Mutations.Register(o)
	return o, id
}

// SetDefaultMutationCallbacks registers cbs as the cache-level callbacks
// every mutation.Observer subsequently built by NewMutationObserver with
// matching D,E,V,C receives as its cacheCbs, firing after the Observer's own
// callbacks at each phase (spec.md §4.3 ordering, §4.6 defaultMutationOptions).
func SetDefaultMutationCallbacks[D any, E error, V any, C any](c *Client, cbs mutation.Callbacks[D, E, V, C]) {
	cache.SetDefaultMutationCallbacks[D, E, V, C](c.Mutations, cbs)
}

// DetachMutationObserver drops a mutation Observer's handle from the
// MutationCache once its owner unmounts. It does not reset the Observer
// itself; call Observer.Reset first if that is wanted.
func DetachMutationObserver(c *Client, id string) {
	c.Mutations.Unregister(id)
}
