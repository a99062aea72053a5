package query

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// Result is what an Observer hands to its consumer: the Query's state,
// projected through Select and placeholder/initial-data rules, plus the
// derived boolean flags spec.md §4.4 enumerates.
type Result[D any, E error] struct {
	Status      Status
	FetchStatus FetchStatus

	HasData bool
	Data    D
	HasErr  bool
	Err     E

	IsPending         bool
	IsFetching        bool
	IsLoading         bool
	IsRefetching      bool
	IsStale           bool
	IsError           bool
	IsSuccess         bool
	IsPaused          bool
	IsPlaceholderData bool

	// Selected holds opts.Select(Data)'s output when a Select function is
	// configured; nil otherwise. The Query itself always stores raw Data
	// (spec.md §9 "Select transform").
	Selected any

	Refetch func(ctx context.Context) (D, error)
}

// ObserverOptions adds Observer-only concerns (Select, NotifyOnChangeProps)
// on top of the shared Options[D,E], which carries the refetch policies.
type ObserverOptions[D any, E error] struct {
	Options[D, E]

	Select              func(D) any
	NotifyOnChangeProps []string // empty means "notify on any tracked-field change"
}

// Observer translates Query state into a Result for one consumer, and
// drives the mount/resume/interval refetch policy (spec.md §4.4).
type Observer[K any, D any, E error] struct {
	mu sync.Mutex

	q    *Query[K, D, E]
	opts ObserverOptions[D, E]

	unsubscribe func()
	onChange    func(Result[D, E])

	last       Result[D, E]
	hasLast    bool
	offline    bool
	stopTicker chan struct{}
}

// NewObserver mounts an Observer on q: subscribes to state changes, computes
// the initial (possibly optimistic) Result, and triggers a fetch per
// RefetchOnMount if required (spec.md §4.4).
func NewObserver[K any, D any, E error](q *Query[K, D, E], opts ObserverOptions[D, E], onChange func(Result[D, E])) *Observer[K, D, E] {
	o := &Observer[K, D, E]{q: q, opts: opts, onChange: onChange}
	o.mount()
	return o
}

func (o *Observer[K, D, E]) enabled() bool {
	return o.opts.Enabled == nil || *o.opts.Enabled
}

func (o *Observer[K, D, E]) staleTime() StaleTime {
	if o.opts.StaleTime != nil {
		return *o.opts.StaleTime
	}
	return Duration(0)
}

func (o *Observer[K, D, E]) shouldFetchOnMount(state State[D, E]) bool {
	mode := RefetchIfStale
	if o.opts.RefetchOnMount != nil {
		mode = *o.opts.RefetchOnMount
	}
	return o.evalRefetchMode(mode, state)
}

func (o *Observer[K, D, E]) evalRefetchMode(mode RefetchMode, state State[D, E]) bool {
	switch mode {
	case RefetchNever:
		return false
	case RefetchAlways:
		return true
	default: // RefetchIfStale
		return state.IsStale(o.staleTime(), time.Now())
	}
}

func (o *Observer[K, D, E]) mount() {
	o.q.AttachObserver()
	o.unsubscribe = o.q.Subscribe(func(s State[D, E]) {
		o.handleState(s, false)
	})

	state := o.q.State()
	willFetch := o.enabled() && o.shouldFetchOnMount(state)
	o.handleState(state, willFetch)

	if willFetch {
		go o.Refetch(context.Background())
	}
	o.startInterval()
}

// handleState computes the Result for state (optionally forcing an
// optimistic FetchStatus=Fetching so the first render already shows
// loading, per spec.md §4.4) and notifies the consumer if a tracked field
// changed.
func (o *Observer[K, D, E]) handleState(state State[D, E], forceFetching bool) {
	result := o.deriveResult(state, forceFetching)

	o.mu.Lock()
	changed := !o.hasLast || o.resultChanged(o.last, result)
	o.last = result
	o.hasLast = true
	cb := o.onChange
	o.mu.Unlock()

	if changed && cb != nil {
		func() {
			defer recoverCallback("observer-onchange", o.q.log.Warn)()
			cb(result)
		}()
	}
}

func (o *Observer[K, D, E]) deriveResult(state State[D, E], forceFetching bool) Result[D, E] {
	fetchStatus := state.FetchStatus
	if forceFetching && fetchStatus == FetchIdle {
		fetchStatus = FetchFetching
	}

	data := state.Data
	hasData := state.HasData
	isPlaceholder := false
	if !hasData && o.opts.HasPlaceholderData {
		data = o.opts.PlaceholderData
		hasData = true
		isPlaceholder = true
	}

	isPending := state.Status == StatusPending
	isFetching := fetchStatus == FetchFetching

	r := Result[D, E]{
		Status:            state.Status,
		FetchStatus:       fetchStatus,
		HasData:           hasData,
		Data:              data,
		HasErr:            state.HasErr,
		Err:               state.Err,
		IsPending:         isPending,
		IsFetching:        isFetching,
		IsLoading:         isPending && isFetching,
		IsRefetching:      isFetching && !isPending,
		IsStale:           state.IsStale(o.staleTime(), time.Now()),
		IsError:           state.Status == StatusError,
		IsSuccess:         state.Status == StatusSuccess,
		IsPaused:          fetchStatus == FetchPaused,
		IsPlaceholderData: isPlaceholder,
		Refetch:           func(ctx context.Context) (D, error) { return o.Refetch(ctx) },
	}
	if o.opts.Select != nil {
		r.Selected = o.opts.Select(data)
	}
	return r
}

// resultChanged compares prev and next over the NotifyOnChangeProps subset
// (or every tracked field, if unset), per spec.md §4.4's "propagate only
// selected fields" requirement.
func (o *Observer[K, D, E]) resultChanged(prev, next Result[D, E]) bool {
	props := o.opts.NotifyOnChangeProps
	check := func(name string) bool {
		if len(props) == 0 {
			return true
		}
		for _, p := range props {
			if p == name {
				return true
			}
		}
		return false
	}

	if check("status") && prev.Status != next.Status {
		return true
	}
	if check("fetchStatus") && prev.FetchStatus != next.FetchStatus {
		return true
	}
	if check("data") && (prev.HasData != next.HasData || !reflect.DeepEqual(prev.Data, next.Data)) {
		return true
	}
	if check("error") && (prev.HasErr != next.HasErr || !reflect.DeepEqual(prev.Err, next.Err)) {
		return true
	}
	if check("isStale") && prev.IsStale != next.IsStale {
		return true
	}
	if check("isPlaceholderData") && prev.IsPlaceholderData != next.IsPlaceholderData {
		return true
	}
	if o.opts.Select != nil && check("selected") && !reflect.DeepEqual(prev.Selected, next.Selected) {
		return true
	}
	return false
}

// Refetch forces a fetch regardless of staleness.
func (o *Observer[K, D, E]) Refetch(ctx context.Context) (D, error) {
	return o.q.Fetch(ctx)
}

// Current returns the most recently computed Result without forcing a
// recompute.
func (o *Observer[K, D, E]) Current() Result[D, E] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// OnFocus/OnReconnect are invoked by the host's FocusManager/OnlineManager
// wiring (spec.md §4.4 "Resume/focus/online").
func (o *Observer[K, D, E]) OnFocus() {
	o.onResume(o.opts.RefetchOnWindowFocus)
}

func (o *Observer[K, D, E]) OnReconnect() {
	o.offline = false
	o.onResume(o.opts.RefetchOnReconnect)
}

func (o *Observer[K, D, E]) onResume(modePtr *RefetchMode) {
	if !o.enabled() {
		return
	}
	mode := RefetchIfStale
	if modePtr != nil {
		mode = *modePtr
	}
	if o.evalRefetchMode(mode, o.q.State()) {
		go o.Refetch(context.Background())
	}
}

// SetOffline marks the Observer's host as offline/online, pausing the
// interval timer unless RefetchIntervalInBackground is set (spec.md §4.4).
func (o *Observer[K, D, E]) SetOffline(offline bool) {
	o.mu.Lock()
	o.offline = offline
	o.mu.Unlock()
}

func (o *Observer[K, D, E]) startInterval() {
	interval := time.Duration(0)
	if o.opts.RefetchInterval != nil {
		interval = *o.opts.RefetchInterval
	}
	if interval <= 0 {
		return
	}

	stop := make(chan struct{})
	o.mu.Lock()
	o.stopTicker = stop
	o.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.mu.Lock()
				offline := o.offline
				inBackground := o.opts.RefetchIntervalInBackground != nil && *o.opts.RefetchIntervalInBackground
				o.mu.Unlock()
				if offline && !inBackground {
					continue
				}
				go o.Refetch(context.Background())
			}
		}
	}()
}

// Unmount detaches the Observer from its Query, stopping the interval timer
// and unsubscribing. The caller (typically the cache) is responsible for
// starting GC once the Query's observer count reaches zero.
func (o *Observer[K, D, E]) Unmount() (remainingObservers int) {
	o.mu.Lock()
	if o.stopTicker != nil {
		close(o.stopTicker)
		o.stopTicker = nil
	}
	o.mu.Unlock()

	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	return o.q.DetachObserver()
}

// Query exposes the underlying Query, e.g. so a consumer can Cancel it
// directly.
func (o *Observer[K, D, E]) Query() *Query[K, D, E] { return o.q }
