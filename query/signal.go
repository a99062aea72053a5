package query

import "context"

// Signal is the cooperative cancellation token passed to a QueryFn
// (spec.md §4.7). Go's context.Context already is an AbortSignal — Done(),
// Err(), and a cause reachable via context.Cause — so the core does not
// reinvent a JS-flavored AbortController; this is the one place it
// deliberately reaches for the idiomatic Go primitive instead of a literal
// port (see DESIGN.md).
type Signal = context.Context

// Context is what a QueryFn receives: the resolved key, a cancellation
// Signal, and, for InfiniteQuery fetches, the page param/direction.
type Context[K any] struct {
	Key       K
	Signal    Signal
	PageParam any
	Direction Direction
	Meta      any
}

// QueryFn is the user-supplied fetcher. The core never calls more than one
// invocation concurrently per Query (spec.md §8 invariant 1).
type QueryFn[K any, D any] func(ctx Context[K]) (D, error)
