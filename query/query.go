package query

import (
	"context"
	"sync"
	"time"

	"goquery/internal/clog"
)

// fetchFuture is the single-flight handle for one in-flight fetch
// invocation, modeled on gopls' internal/cache futureCache: a second Fetch
// call joins the same future instead of starting a new goroutine
// (spec.md §8 invariant 1), and Cancel aborts its context without
// corrupting the Query's committed state.
type fetchFuture[D any] struct {
	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}
	data D
	err  error
}

func (f *fetchFuture[D]) wait(ctx context.Context) (D, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		var zero D
		return zero, ctx.Err()
	}
}

// Query owns the state of a single cached key. Multiple Observers share one
// Query (request deduplication, spec.md §3); the cache registry is the
// exclusive owner and constructs Queries via cache.Build.
type Query[K any, D any, E error] struct {
	mu  sync.Mutex
	key K
	log *clog.Logger

	state   State[D, E]
	preFetchSnapshot State[D, E]

	queryFn    QueryFn[K, D]
	retry      Resolver[bool]
	retryDelay Resolver[time.Duration]

	inflight                *fetchFuture[D]
	invalidatedDuringFetch  bool
	observerCount           int

	listeners []func(State[D, E])
}

// New constructs a Query bound to key, using fn as its fetcher. retry and
// retryDelay are used as given: a zero Resolver[bool] never retries and a
// zero Resolver[time.Duration] retries without delay.
func New[K any, D any, E error](key K, fn QueryFn[K, D], retry Resolver[bool], retryDelay Resolver[time.Duration], log *clog.Logger) *Query[K, D, E] {
	if log == nil {
		log = clog.Discard
	}
	return &Query[K, D, E]{
		key:        key,
		log:        log,
		state:      initialState[D, E](),
		queryFn:    fn,
		retry:      retry,
		retryDelay: retryDelay,
	}
}

// State returns the current immutable snapshot.
func (q *Query[K, D, E]) State() State[D, E] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// IsStale reports staleness against staleTime as of now.
func (q *Query[K, D, E]) IsStale(staleTime StaleTime, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.IsStale(staleTime, now)
}

// Subscribe registers fn to be called, synchronously and in subscription
// order, on every state transition (spec.md §5). It returns an unsubscribe
// func.
func (q *Query[K, D, E]) Subscribe(fn func(State[D, E])) (unsubscribe func()) {
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	idx := len(q.listeners) - 1
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if idx < len(q.listeners) {
			q.listeners[idx] = nil
		}
	}
}

func (q *Query[K, D, E]) notify(locked State[D, E]) {
	q.mu.Lock()
	listeners := make([]func(State[D, E]), 0, len(q.listeners))
	for _, l := range q.listeners {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	q.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer recoverCallback("observer-notify", q.log.Warn)()
			l(locked)
		}()
	}
}

// AttachObserver and DetachObserver track how many Observers hold this Query
// live; the cache uses observerCount==0 to start/stop its GC timer
// (spec.md §3).
func (q *Query[K, D, E]) AttachObserver() {
	q.mu.Lock()
	q.observerCount++
	q.mu.Unlock()
}

func (q *Query[K, D, E]) DetachObserver() (remaining int) {
	q.mu.Lock()
	q.observerCount--
	remaining = q.observerCount
	q.mu.Unlock()
	return
}

func (q *Query[K, D, E]) ObserverCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.observerCount
}

// Fetch begins a fetch unless one is already in flight, in which case it
// joins the in-flight future (spec.md §4.1). It blocks until the (possibly
// shared) fetch resolves.
func (q *Query[K, D, E]) Fetch(ctx context.Context) (D, error) {
	f := q.startOrJoin()
	return f.wait(ctx)
}

func (q *Query[K, D, E]) startOrJoin() *fetchFuture[D] {
	q.mu.Lock()
	if q.inflight != nil {
		f := q.inflight
		q.mu.Unlock()
		return f
	}

	q.preFetchSnapshot = q.state
	q.state.FetchStatus = FetchFetching
	q.state.IsInvalidated = false
	snapshot := q.state
	q.invalidatedDuringFetch = false

	fctx, cancel := context.WithCancel(context.Background())
	f := &fetchFuture[D]{ctx: fctx, cancel: cancel, done: make(chan struct{})}
	q.inflight = f
	q.mu.Unlock()

	q.notify(snapshot)

	go q.run(f)
	return f
}

func (q *Query[K, D, E]) run(f *fetchFuture[D]) {
	result, err := runRetrying(
		f.ctx,
		q.retry,
		q.retryDelay,
		func(attempt int) (any, error) {
			d, err := q.queryFn(Context[K]{Key: q.key, Signal: f.ctx, Direction: DirectionForward})
			return d, err
		},
		func(attempt int, err error) {
			q.onAttemptFailed(attempt, err)
		},
	)

	q.finish(f, result, err)
}

// onAttemptFailed records a failed attempt's failure count/reason without
// flipping Status to Error; only the scheduler giving up does that
// (spec.md §4.1).
func (q *Query[K, D, E]) onAttemptFailed(attempt int, err error) {
	q.mu.Lock()
	q.state.FailureCount++
	q.state.HasFailureReason = true
	if e, ok := any(err).(E); ok {
		q.state.FailureReason = e
	}
	snapshot := q.state
	q.mu.Unlock()
	q.log.Debug("fetch attempt %d failed for %v: %v", attempt, q.key, err)
	q.notify(snapshot)
}

// finish is invoked once the retry-gated fetch loop terminates, either with
// a value, a terminal error, or cancellation.
func (q *Query[K, D, E]) finish(f *fetchFuture[D], result any, err error) {
	q.mu.Lock()
	if q.inflight != f {
		// superseded by a newer fetch already (should not happen given the
		// single in-flight invariant, but guards against races defensively).
		q.mu.Unlock()
		return
	}

	if err != nil && isAborted(err) {
		// Cancellation atomicity: roll back to the snapshot taken before
		// this fetch began (spec.md §4.1, §8 invariant 2).
		q.state = q.preFetchSnapshot
		q.inflight = nil
		f.err = &AbortedError{cause: err}
		snapshot := q.state
		q.mu.Unlock()
		close(f.done)
		q.notify(snapshot)
		return
	}

	now := time.Now()
	if err != nil {
		q.state.FetchStatus = FetchIdle
		if !q.state.HasData {
			q.state.Status = StatusError
		}
		q.state.HasErr = true
		if e, ok := any(newFetchError(err)).(E); ok {
			q.state.Err = e
		}
		q.state.ErrUpdatedAt = now
		q.state.ErrUpdateCount++
		f.err = newFetchError(err)
	} else {
		data := result.(D)
		q.state.Status = StatusSuccess
		q.state.FetchStatus = FetchIdle
		q.state.HasData = true
		q.state.Data = data
		q.state.DataUpdatedAt = now
		q.state.DataUpdateCount++
		q.state.FailureCount = 0
		q.state.HasFailureReason = false
		q.state.HasErr = false
		f.data = data
	}

	invalidateAgain := q.invalidatedDuringFetch
	q.invalidatedDuringFetch = false
	q.inflight = nil
	snapshot := q.state
	q.mu.Unlock()

	// Subscribers see the new state before any Fetch caller returns.
	q.notify(snapshot)
	close(f.done)

	if invalidateAgain {
		// Coalesced to at most one extra fetch per invalidation event
		// received while this fetch was in flight (spec.md §9 Open
		// Question (a)).
		go q.Fetch(context.Background())
	}
}

// Cancel aborts the in-flight fetch, if any. State rolls back atomically to
// the pre-fetch snapshot (spec.md §4.1, §8 invariant 2); Cancel is a no-op
// if nothing is in flight.
func (q *Query[K, D, E]) Cancel() {
	q.mu.Lock()
	f := q.inflight
	q.mu.Unlock()
	if f == nil {
		return
	}
	f.cancel()
	<-f.done
}

// Invalidate marks the Query stale and, if any Observer is attached,
// schedules an immediate background refetch (spec.md §4.1).
func (q *Query[K, D, E]) Invalidate() {
	q.mu.Lock()
	q.state.IsInvalidated = true
	hasInflight := q.inflight != nil
	if hasInflight {
		q.invalidatedDuringFetch = true
	}
	active := q.observerCount > 0
	snapshot := q.state
	q.mu.Unlock()

	q.notify(snapshot)

	if active && !hasInflight {
		go q.Fetch(context.Background())
	}
}

// SetData sets Data without fetching. It is a no-op if updatedAt is older
// than the Query's current DataUpdatedAt — older writes never win
// (spec.md §9 Open Question (b)).
func (q *Query[K, D, E]) SetData(updater func(current D, hadData bool) D, updatedAt time.Time) {
	q.mu.Lock()
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	if q.state.HasData && updatedAt.Before(q.state.DataUpdatedAt) {
		q.mu.Unlock()
		return
	}
	q.state.Data = updater(q.state.Data, q.state.HasData)
	q.state.HasData = true
	q.state.DataUpdatedAt = updatedAt
	q.state.DataUpdateCount++
	q.state.Status = StatusSuccess
	q.state.IsInvalidated = false
	snapshot := q.state
	q.mu.Unlock()
	q.notify(snapshot)
}

// Refetch forces a fetch and discards the result, for callers (QueryClient
// fleet operations) that only care whether it succeeded, not the payload's
// concrete type.
func (q *Query[K, D, E]) Refetch(ctx context.Context) error {
	_, err := q.Fetch(ctx)
	return err
}

// StatusNow, FetchStatusNow, and IsInvalidatedNow expose non-generic facets
// of State for callers (cache.Filters, QueryClient) that hold this Query
// behind an interface and cannot name D/E.
func (q *Query[K, D, E]) StatusNow() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Status
}

func (q *Query[K, D, E]) FetchStatusNow() FetchStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.FetchStatus
}

func (q *Query[K, D, E]) IsInvalidatedNow() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.IsInvalidated
}

// Reset returns the Query to its initial pending state (used by
// QueryClient.ResetQueries).
func (q *Query[K, D, E]) Reset() {
	q.mu.Lock()
	q.state = initialState[D, E]()
	snapshot := q.state
	q.mu.Unlock()
	q.notify(snapshot)
}
