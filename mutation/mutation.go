package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"goquery/internal/clog"
)

// Fn is the user-supplied mutation body.
type Fn[V any, D any] func(ctx context.Context, variables V) (D, error)

// Callbacks are the lifecycle hooks spec.md §4.3 sequences around Fn.
// Observer-level callbacks (registered at mount) and cache-level callbacks
// (registered once on the MutationCache) are both expressed as Callbacks;
// the caller decides invocation order (observer before cache, spec.md §5).
type Callbacks[D any, E any, V any, C any] struct {
	OnMutate  func(ctx context.Context, variables V) (C, error)
	OnSuccess func(ctx context.Context, data D, variables V, mctx C)
	OnError   func(ctx context.Context, err E, variables V, mctx C)
	OnSettled func(ctx context.Context, data D, hasData bool, err E, hasErr bool, variables V, mctx C)
}

// Mutation is a one-shot state machine: "each mutate is an event" (spec.md
// §4.3), so a new Mutation is constructed per submit call rather than reused
// like a Query.
type Mutation[D any, E error, V any, C any] struct {
	mu    sync.Mutex
	state State[D, E, V, C]

	fn         Fn[V, D]
	retry      func(attempt int, err error) bool
	retryDelay func(attempt int, err error) time.Duration

	listeners []func(State[D, E, V, C])
	log       *clog.Logger
}

// New constructs a not-yet-run Mutation.
func New[D any, E error, V any, C any](fn Fn[V, D], retry func(int, error) bool, retryDelay func(int, error) time.Duration, log *clog.Logger) *Mutation[D, E, V, C] {
	if log == nil {
		log = clog.Discard
	}
	if retry == nil {
		retry = func(int, error) bool { return false }
	}
	if retryDelay == nil {
		retryDelay = func(int, error) time.Duration { return 0 }
	}
	return &Mutation[D, E, V, C]{
		state:      initialState[D, E, V, C](),
		fn:         fn,
		retry:      retry,
		retryDelay: retryDelay,
		log:        log,
	}
}

func (m *Mutation[D, E, V, C]) State() State[D, E, V, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[D, E, V, C]) Subscribe(fn func(State[D, E, V, C])) (unsubscribe func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	idx := len(m.listeners) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.listeners) {
			m.listeners[idx] = nil
		}
	}
}

func (m *Mutation[D, E, V, C]) notify(s State[D, E, V, C]) {
	m.mu.Lock()
	listeners := make([]func(State[D, E, V, C]), 0, len(m.listeners))
	for _, l := range m.listeners {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer recoverCallback("notify", m.log.Warn)()
			l(s)
		}()
	}
}

// Run executes the full lifecycle: onMutate -> mutationFn (retry-gated) ->
// onSuccess|onError -> onSettled (spec.md §4.3). observerCbs fire before
// cacheCbs at every phase (spec.md §5). Run is synchronous with respect to
// the caller; concurrency across Mutations sharing a scope is the
// MutationCache's responsibility, not this type's.
func (m *Mutation[D, E, V, C]) Run(ctx context.Context, variables V, observerCbs, cacheCbs Callbacks[D, E, V, C]) (D, error) {
	m.mu.Lock()
	m.state.Status = StatusPending
	m.state.SubmittedAt = time.Now()
	m.state.HasVariables = true
	m.state.Variables = variables
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)

	var mctx C
	var zeroErr E

	if observerCbs.OnMutate != nil || cacheCbs.OnMutate != nil {
		var err error
		mctx, err = m.runOnMutate(ctx, variables, observerCbs, cacheCbs)
		if err != nil {
			return m.fail(ctx, toE[E](err), variables, mctx, observerCbs, cacheCbs)
		}
	}

	m.mu.Lock()
	m.state.HasContext = true
	m.state.Context = mctx
	snapshot = m.state
	m.mu.Unlock()
	m.notify(snapshot)

	data, err := m.runWithRetry(ctx, variables)
	if err != nil {
		return m.fail(ctx, toE[E](err), variables, mctx, observerCbs, cacheCbs)
	}

	m.mu.Lock()
	m.state.Status = StatusSuccess
	m.state.HasData = true
	m.state.Data = data
	m.state.FailureCount = 0
	m.state.HasFailureReason = false
	snapshot = m.state
	m.mu.Unlock()
	m.notify(snapshot)

	m.invoke("onSuccess", func() { observerCbs.invokeSuccess(ctx, data, variables, mctx) })
	m.invoke("onSuccess", func() { cacheCbs.invokeSuccess(ctx, data, variables, mctx) })
	m.invoke("onSettled", func() { observerCbs.invokeSettled(ctx, data, true, zeroErr, false, variables, mctx) })
	m.invoke("onSettled", func() { cacheCbs.invokeSettled(ctx, data, true, zeroErr, false, variables, mctx) })

	return data, nil
}

func (m *Mutation[D, E, V, C]) runOnMutate(ctx context.Context, variables V, observerCbs, cacheCbs Callbacks[D, E, V, C]) (mctx C, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverToErr(r)
		}
	}()
	hasObserverCtx := false
	if observerCbs.OnMutate != nil {
		if mctx, err = observerCbs.OnMutate(ctx, variables); err != nil {
			return mctx, err
		}
		hasObserverCtx = true
	}
	if cacheCbs.OnMutate != nil {
		cctx, cerr := cacheCbs.OnMutate(ctx, variables)
		if cerr != nil {
			return mctx, cerr
		}
		if !hasObserverCtx {
			mctx = cctx
		}
	}
	return mctx, nil
}

func (m *Mutation[D, E, V, C]) runWithRetry(ctx context.Context, variables V) (D, error) {
	for attempt := 0; ; attempt++ {
		data, err := m.fn(ctx, variables)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			var zero D
			return zero, err
		}

		m.mu.Lock()
		m.state.FailureCount++
		m.state.HasFailureReason = true
		if e, ok := any(err).(E); ok {
			m.state.FailureReason = e
		}
		snapshot := m.state
		m.mu.Unlock()
		m.notify(snapshot)

		if !m.retry(attempt, err) {
			var zero D
			return zero, err
		}
		d := m.retryDelay(attempt, err)
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			var zero D
			return zero, ctx.Err()
		}
	}
}

func (m *Mutation[D, E, V, C]) fail(ctx context.Context, err E, variables V, mctx C, observerCbs, cacheCbs Callbacks[D, E, V, C]) (D, error) {
	m.mu.Lock()
	m.state.Status = StatusError
	m.state.HasErr = true
	m.state.Err = err
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)

	var zero D
	m.invoke("onError", func() { observerCbs.invokeError(ctx, err, variables, mctx) })
	m.invoke("onError", func() { cacheCbs.invokeError(ctx, err, variables, mctx) })
	m.invoke("onSettled", func() { observerCbs.invokeSettled(ctx, zero, false, err, true, variables, mctx) })
	m.invoke("onSettled", func() { cacheCbs.invokeSettled(ctx, zero, false, err, true, variables, mctx) })

	return zero, err
}

func (m *Mutation[D, E, V, C]) invoke(phase string, fn func()) {
	defer recoverCallback(phase, m.log.Warn)()
	fn()
}

// Reset returns the Mutation to idle, clearing data/error. Callers must not
// invoke Reset while Status is pending (spec.md §4.3); Mutation itself does
// not check this, while Observer.Reset does.
func (m *Mutation[D, E, V, C]) Reset() {
	m.mu.Lock()
	m.state = initialState[D, E, V, C]()
	snapshot := m.state
	m.mu.Unlock()
	m.notify(snapshot)
}

func (c Callbacks[D, E, V, C]) invokeSuccess(ctx context.Context, data D, variables V, mctx C) {
	if c.OnSuccess != nil {
		c.OnSuccess(ctx, data, variables, mctx)
	}
}

func (c Callbacks[D, E, V, C]) invokeError(ctx context.Context, err E, variables V, mctx C) {
	if c.OnError != nil {
		c.OnError(ctx, err, variables, mctx)
	}
}

func (c Callbacks[D, E, V, C]) invokeSettled(ctx context.Context, data D, hasData bool, err E, hasErr bool, variables V, mctx C) {
	if c.OnSettled != nil {
		c.OnSettled(ctx, data, hasData, err, hasErr, variables, mctx)
	}
}

func toE[E error](err error) E {
	if e, ok := err.(E); ok {
		return e
	}
	var zero E
	return zero
}

func recoverToErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.Errorf("%v", r)
}
