package query

import "time"

// Resolver is the tagged-union shape spec.md §9 calls for: an option is
// either a constant or a pure resolver callable over (attempt, err). Using
// one generic shape for every resolvable option (retry, retryDelay,
// refetchOnMount, ...) avoids a bespoke variant type per option.
type Resolver[T any] struct {
	value T
	fn    func(attempt int, err error) T
}

// Const builds a Resolver that always returns v.
func Const[T any](v T) Resolver[T] { return Resolver[T]{value: v} }

// Func builds a Resolver backed by a pure callable. fn must not mutate
// shared state (spec.md §9).
func Func[T any](fn func(attempt int, err error) T) Resolver[T] {
	return Resolver[T]{fn: fn}
}

// Resolve evaluates the resolver for the given attempt/err.
func (r Resolver[T]) Resolve(attempt int, err error) T {
	if r.fn != nil {
		return r.fn(attempt, err)
	}
	return r.value
}

// RetryCount builds the conventional "retry: bool | int" shape as a
// Resolver[bool]: n <= 0 means never retry, and a positive n means retry up
// to n additional attempts. (Const(true) retries until success or
// cancellation; the scheduler has no cap of its own.)
func RetryCount(n int) Resolver[bool] {
	if n <= 0 {
		return Const(false)
	}
	return Func(func(attempt int, _ error) bool { return attempt < n })
}

// RefetchMode controls refetch-on-mount / refetch-on-resume / refetch-on-
// reconnect policy (spec.md §4.4).
type RefetchMode int

const (
	RefetchNever RefetchMode = iota
	RefetchIfStale
	RefetchAlways
)

// Direction is the page-fetch direction an InfiniteQuery's fetcher receives.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// Options configures a single Query (or the Observer mounted on one).
// Three-layer merge order (observer options > client defaults > hard
// defaults) is implemented in client.ResolveQueryOptions, not here; Options is the
// per-layer value mergo.Merge combines.
type Options[D any, E any] struct {
	Enabled   *bool
	StaleTime *StaleTime
	GCTime    *time.Duration

	Retry      *Resolver[bool]
	RetryDelay *Resolver[time.Duration]

	RefetchOnMount          *RefetchMode
	RefetchOnWindowFocus    *RefetchMode
	RefetchOnReconnect      *RefetchMode
	RefetchInterval         *time.Duration
	RefetchIntervalInBackground *bool

	InitialData         D
	HasInitialData      bool
	InitialDataUpdatedAt time.Time

	PlaceholderData    D
	HasPlaceholderData bool

	Meta any
}

// HardDefaults are the innermost defaults layer, matching the values
// TanStack Query itself ships when nothing else is configured.
func HardDefaults[D any, E any]() Options[D, E] {
	retry := RetryCount(3)
	delay := defaultRetryDelay()
	staleTime := Duration(0)
	gcTime := 5 * time.Minute
	onMount := RefetchIfStale
	onFocus := RefetchIfStale
	onReconnect := RefetchIfStale
	enabled := true
	inBackground := false
	interval := time.Duration(0)

	return Options[D, E]{
		Enabled:                     &enabled,
		StaleTime:                   &staleTime,
		GCTime:                      &gcTime,
		Retry:                       &retry,
		RetryDelay:                  &delay,
		RefetchOnMount:              &onMount,
		RefetchOnWindowFocus:        &onFocus,
		RefetchOnReconnect:          &onReconnect,
		RefetchInterval:             &interval,
		RefetchIntervalInBackground: &inBackground,
	}
}
