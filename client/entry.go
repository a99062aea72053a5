// Package client implements QueryClient: the entry point owning the
// QueryCache/MutationCache, the three-layer options defaults, and the fleet
// operations (InvalidateQueries, RefetchQueries, CancelQueries,
// SetQueryData/GetQueryData, FetchQuery/PrefetchQuery/EnsureQueryData,
// ResetQueries, Clear) of spec.md §4.6.
package client

import (
	"context"
	"time"

	"goquery/query"
)

// entryOps is the facet of *query.Query[K,D,E] / *query.InfiniteQuery[K,T,P,E]
// that QueryClient fleet operations need without naming D/E/T/P: every
// method below is declared on the concrete Query with no additional type
// parameters in its signature, so both instantiations satisfy this
// interface structurally (Go generics erase receiver type parameters from
// interface satisfaction).
type entryOps interface {
	Invalidate()
	Cancel()
	Refetch(ctx context.Context) error
	Reset()
	IsStale(staleTime query.StaleTime, now time.Time) bool
	StatusNow() query.Status
	FetchStatusNow() query.FetchStatus
	IsInvalidatedNow() bool
	ObserverCount() int
}
