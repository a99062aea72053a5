package mutation

import (
	"context"
	"sync"
	"time"

	"goquery/internal/clog"
)

// Result is what a mutation Observer hands to its consumer.
type Result[D any, E any, V any, C any] struct {
	Status Status

	HasData bool
	Data    D

	HasErr bool
	Err    E

	HasVariables bool
	Variables    V

	SubmittedAt time.Time

	IsIdle    bool
	IsPending bool
	IsError   bool
	IsSuccess bool

	Mutate func(ctx context.Context, variables V) (D, error)
	Reset  func()
}

// Observer owns the mount-time lifecycle callbacks for one useMutation-style
// handle and serializes/parallelizes submissions through a shared Runner
// (spec.md §4.3, §4.4). Unlike query.Observer it does not wrap a persistent
// Mutation: a fresh Mutation is constructed per Mutate call, consistent with
// "each mutate is an event".
type Observer[D any, E error, V any, C any] struct {
	mu sync.Mutex

	fn         Fn[V, D]
	retry      func(int, error) bool
	retryDelay func(int, error) time.Duration
	log        *clog.Logger

	cbs      Callbacks[D, E, V, C]
	cacheCbs Callbacks[D, E, V, C]
	scope    Scope
	scopeID  string
	runner   *Runner

	pending bool
	current *Mutation[D, E, V, C]
	last    Result[D, E, V, C]

	onChange func(Result[D, E, V, C])
}

// NewObserver constructs a mutation Observer. runner is shared across all
// Observers registered with the same MutationCache so that ScopeSingle
// queuing is effective across distinct mutate() handles with the same
// scopeID, not just repeated calls on this one Observer. cacheCbs is the
// cache-level callbacks layer (spec.md §4.6 defaultMutationOptions); it
// fires after cbs at every phase (spec.md §5).
func NewObserver[D any, E error, V any, C any](
	fn Fn[V, D],
	retry func(int, error) bool,
	retryDelay func(int, error) time.Duration,
	cbs Callbacks[D, E, V, C],
	cacheCbs Callbacks[D, E, V, C],
	scope Scope,
	scopeID string,
	sharedRunner *Runner,
	log *clog.Logger,
	onChange func(Result[D, E, V, C]),
) *Observer[D, E, V, C] {
	if sharedRunner == nil {
		sharedRunner = NewRunner()
	}
	o := &Observer[D, E, V, C]{
		fn:         fn,
		retry:      retry,
		retryDelay: retryDelay,
		log:        log,
		cbs:        cbs,
		cacheCbs:   cacheCbs,
		scope:      scope,
		scopeID:    scopeID,
		runner:     sharedRunner,
		onChange:   onChange,
	}
	o.last = idleResult[D, E, V, C](o.Mutate, o.Reset)
	return o
}

func idleResult[D any, E any, V any, C any](mutate func(context.Context, V) (D, error), reset func()) Result[D, E, V, C] {
	return Result[D, E, V, C]{Status: StatusIdle, IsIdle: true, Mutate: mutate, Reset: reset}
}

// Mutate submits variables. Under ScopeSingle, a call while the Observer's
// own handle is already pending rejects synchronously with
// PreconditionError and no state change (spec.md §7); distinct Observers
// sharing scopeID instead queue via the shared runner (spec.md §4.3).
func (o *Observer[D, E, V, C]) Mutate(ctx context.Context, variables V) (D, error) {
	o.mu.Lock()
	if o.scope == ScopeSingle && o.pending {
		o.mu.Unlock()
		var zero D
		return zero, newPreconditionError()
	}
	o.pending = true
	m := New[D, E, V, C](o.fn, o.retry, o.retryDelay, o.log)
	o.current = m
	o.mu.Unlock()

	unsubscribe := m.Subscribe(func(s State[D, E, V, C]) {
		o.publish(s)
	})

	resultCh := make(chan struct {
		data D
		err  error
	}, 1)

	o.runner.Submit(o.scope, o.scopeID, func() {
		data, err := m.Run(ctx, variables, o.cbs, o.cacheCbs)
		o.mu.Lock()
		o.pending = false
		o.mu.Unlock()
		unsubscribe()
		resultCh <- struct {
			data D
			err  error
		}{data, err}
	})

	r := <-resultCh
	return r.data, r.err
}

func (o *Observer[D, E, V, C]) publish(s State[D, E, V, C]) {
	r := Result[D, E, V, C]{
		Status:       s.Status,
		HasData:      s.HasData,
		Data:         s.Data,
		HasErr:       s.HasErr,
		Err:          s.Err,
		HasVariables: s.HasVariables,
		Variables:    s.Variables,
		SubmittedAt:  s.SubmittedAt,
		IsIdle:       s.Status == StatusIdle,
		IsPending:    s.Status == StatusPending,
		IsError:      s.Status == StatusError,
		IsSuccess:    s.Status == StatusSuccess,
		Mutate:       o.Mutate,
		Reset:        o.Reset,
	}

	o.mu.Lock()
	o.last = r
	cb := o.onChange
	o.mu.Unlock()

	if cb != nil {
		cb(r)
	}
}

// Current returns the most recently published Result.
func (o *Observer[D, E, V, C]) Current() Result[D, E, V, C] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Reset returns the Observer's handle to idle. No-op if the current
// Mutation is pending (spec.md §4.3).
func (o *Observer[D, E, V, C]) Reset() {
	o.mu.Lock()
	m := o.current
	pending := o.pending
	o.mu.Unlock()
	if pending || m == nil {
		return
	}
	m.Reset()
	o.mu.Lock()
	o.last = idleResult[D, E, V, C](o.Mutate, o.Reset)
	o.mu.Unlock()
}
