package query

import (
	"context"
	"sync"
	"time"

	"goquery/internal/clog"
)

// InfiniteData is the paginated payload an InfiniteQuery caches: an ordered
// list of pages alongside the opaque page params that produced them
// (spec.md §3). len(Pages) == len(PageParams) is maintained as an invariant
// by every InfiniteQuery operation.
type InfiniteData[T any, P any] struct {
	Pages      []T
	PageParams []P
}

// PageParamBuilder computes the next (or previous) page param from the
// pages fetched so far. The second return value reports whether there is a
// next/previous page at all.
type PageParamBuilder[T any, P any] func(pages []T, pageParams []P) (P, bool)

// PageFetcher fetches one page for pageParam. ctx.Direction indicates
// whether this call is extending the list forward or backward.
type PageFetcher[K any, T any, P any] func(ctx Context[K], pageParam P) (T, error)

// InfiniteQuery extends Query with page-oriented fetch operations
// (spec.md §4.2). It embeds *Query so Subscribe/State/Cancel/GC/observer
// bookkeeping are shared; Invalidate and the initial Fetch are given
// InfiniteQuery-specific behavior since a "fetch" here means "fetch and
// append/prepend one page", not "replace Data wholesale".
type InfiniteQuery[K any, T any, P any, E error] struct {
	*Query[K, InfiniteData[T, P], E]

	fetchPage    PageFetcher[K, T, P]
	nextBuilder  PageParamBuilder[T, P]
	prevBuilder  PageParamBuilder[T, P]
	initialParam P

	pageMu         sync.Mutex
	hasNextPage    bool
	hasPrevPage    bool
	isFetchingNext bool
	isFetchingPrev bool
	busy           bool // mutual exclusion with a full refetch (spec.md §4.2 invariant)
}

// NewInfinite constructs an InfiniteQuery bound to key.
func NewInfinite[K any, T any, P any, E error](
	key K,
	fetchPage PageFetcher[K, T, P],
	nextBuilder, prevBuilder PageParamBuilder[T, P],
	initialParam P,
	retry Resolver[bool],
	retryDelay Resolver[time.Duration],
	log *clog.Logger,
) *InfiniteQuery[K, T, P, E] {
	iq := &InfiniteQuery[K, T, P, E]{
		fetchPage:    fetchPage,
		nextBuilder:  nextBuilder,
		prevBuilder:  prevBuilder,
		initialParam: initialParam,
	}

	initialFetch := func(ctx Context[K]) (InfiniteData[T, P], error) {
		ctx.PageParam = initialParam
		ctx.Direction = DirectionForward
		t, err := fetchPage(ctx, initialParam)
		if err != nil {
			return InfiniteData[T, P]{}, err
		}
		return InfiniteData[T, P]{Pages: []T{t}, PageParams: []P{initialParam}}, nil
	}

	iq.Query = New[K, InfiniteData[T, P], E](key, initialFetch, retry, retryDelay, log)
	iq.Query.Subscribe(func(s State[InfiniteData[T, P], E]) {
		if s.HasData {
			iq.recomputeHasPages(s.Data)
		}
	})
	return iq
}

func (iq *InfiniteQuery[K, T, P, E]) recomputeHasPages(data InfiniteData[T, P]) {
	iq.pageMu.Lock()
	defer iq.pageMu.Unlock()
	if iq.nextBuilder != nil {
		_, iq.hasNextPage = iq.nextBuilder(data.Pages, data.PageParams)
	}
	if iq.prevBuilder != nil {
		_, iq.hasPrevPage = iq.prevBuilder(data.Pages, data.PageParams)
	}
}

// HasNextPage/HasPreviousPage reflect the last-known builder result
// (spec.md §4.2 invariant).
func (iq *InfiniteQuery[K, T, P, E]) HasNextPage() bool {
	iq.pageMu.Lock()
	defer iq.pageMu.Unlock()
	return iq.hasNextPage
}

func (iq *InfiniteQuery[K, T, P, E]) HasPreviousPage() bool {
	iq.pageMu.Lock()
	defer iq.pageMu.Unlock()
	return iq.hasPrevPage
}

func (iq *InfiniteQuery[K, T, P, E]) acquireBusy() bool {
	iq.pageMu.Lock()
	defer iq.pageMu.Unlock()
	if iq.busy {
		return false
	}
	iq.busy = true
	return true
}

func (iq *InfiniteQuery[K, T, P, E]) releaseBusy() {
	iq.pageMu.Lock()
	iq.busy = false
	iq.pageMu.Unlock()
}

// FetchNextPage appends one page using the param nextBuilder computes from
// the current pages. No-op if there is no next page or a fetch/refetch is
// already in flight.
func (iq *InfiniteQuery[K, T, P, E]) FetchNextPage(ctx context.Context) error {
	return iq.fetchEdge(ctx, true)
}

// FetchPreviousPage prepends one page, symmetric to FetchNextPage.
func (iq *InfiniteQuery[K, T, P, E]) FetchPreviousPage(ctx context.Context) error {
	return iq.fetchEdge(ctx, false)
}

func (iq *InfiniteQuery[K, T, P, E]) fetchEdge(ctx context.Context, forward bool) error {
	if !iq.acquireBusy() {
		return nil
	}
	defer iq.releaseBusy()

	q := iq.Query
	q.mu.Lock()
	current := q.state
	q.mu.Unlock()
	if !current.HasData {
		return nil
	}

	var builder PageParamBuilder[T, P]
	if forward {
		builder = iq.nextBuilder
	} else {
		builder = iq.prevBuilder
	}
	if builder == nil {
		return nil
	}
	param, ok := builder(current.Data.Pages, current.Data.PageParams)
	if !ok {
		return nil
	}

	iq.pageMu.Lock()
	if forward {
		iq.isFetchingNext = true
	} else {
		iq.isFetchingPrev = true
	}
	iq.pageMu.Unlock()
	defer func() {
		iq.pageMu.Lock()
		iq.isFetchingNext = false
		iq.isFetchingPrev = false
		iq.pageMu.Unlock()
	}()

	direction := DirectionForward
	if !forward {
		direction = DirectionBackward
	}
	page, err := iq.fetchPage(Context[K]{Key: q.key, Signal: ctx, PageParam: param, Direction: direction}, param)
	if err != nil {
		return err
	}

	q.mu.Lock()
	next := q.state
	if forward {
		next.Data.Pages = append(append([]T{}, next.Data.Pages...), page)
		next.Data.PageParams = append(append([]P{}, next.Data.PageParams...), param)
	} else {
		next.Data.Pages = append([]T{page}, next.Data.Pages...)
		next.Data.PageParams = append([]P{param}, next.Data.PageParams...)
	}
	next.DataUpdatedAt = time.Now()
	next.DataUpdateCount++
	q.state = next
	q.mu.Unlock()

	q.notify(next)
	iq.recomputeHasPages(next.Data)
	return nil
}

// IsFetchingNextPage / IsFetchingPreviousPage expose the edge-fetch flags an
// Observer projects into its Result (spec.md §4.2).
func (iq *InfiniteQuery[K, T, P, E]) IsFetchingNextPage() bool {
	iq.pageMu.Lock()
	defer iq.pageMu.Unlock()
	return iq.isFetchingNext
}

func (iq *InfiniteQuery[K, T, P, E]) IsFetchingPreviousPage() bool {
	iq.pageMu.Lock()
	defer iq.pageMu.Unlock()
	return iq.isFetchingPrev
}

// RefetchAll refetches every known page in order with its original
// pageParam, then reassigns atomically. A failure at any page leaves the
// pre-refetch data untouched (spec.md §4.2).
func (iq *InfiniteQuery[K, T, P, E]) RefetchAll(ctx context.Context) error {
	if !iq.acquireBusy() {
		return nil
	}
	defer iq.releaseBusy()

	q := iq.Query
	q.mu.Lock()
	before := q.state
	q.mu.Unlock()
	if !before.HasData {
		return nil
	}

	newPages := make([]T, len(before.Data.PageParams))
	for i, p := range before.Data.PageParams {
		direction := DirectionForward
		if i > 0 {
			direction = DirectionForward
		}
		page, err := iq.fetchPage(Context[K]{Key: q.key, Signal: ctx, PageParam: p, Direction: direction}, p)
		if err != nil {
			return err // pre-refetch snapshot (before) was never touched
		}
		newPages[i] = StructuralShare(before.Data.Pages[i], page)
	}

	q.mu.Lock()
	next := q.state
	next.Data = InfiniteData[T, P]{Pages: newPages, PageParams: append([]P{}, before.Data.PageParams...)}
	next.DataUpdatedAt = time.Now()
	next.DataUpdateCount++
	next.IsInvalidated = false
	q.state = next
	q.mu.Unlock()

	q.notify(next)
	iq.recomputeHasPages(next.Data)
	return nil
}

// Refetch shadows the embedded Query's Refetch: a fleet-operation-triggered
// refetch of an InfiniteQuery means "refetch every known page", matching
// Invalidate's override below.
func (iq *InfiniteQuery[K, T, P, E]) Refetch(ctx context.Context) error {
	return iq.RefetchAll(ctx)
}

// Invalidate shadows the embedded Query's Invalidate: an InfiniteQuery's
// background refetch means "refetch every page", not "refetch once"
// (spec.md §4.2).
func (iq *InfiniteQuery[K, T, P, E]) Invalidate() {
	q := iq.Query
	q.mu.Lock()
	q.state.IsInvalidated = true
	active := q.observerCount > 0
	snapshot := q.state
	q.mu.Unlock()
	q.notify(snapshot)

	if active {
		go iq.RefetchAll(context.Background())
	}
}
