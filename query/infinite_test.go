package query_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goquery/query"
)

func pageFetcher(t *testing.T, calls *int32) query.PageFetcher[string, []int, int] {
	return func(ctx query.Context[string], pageParam int) ([]int, error) {
		atomic.AddInt32(calls, 1)
		return []int{pageParam, pageParam + 1}, nil
	}
}

func TestInfiniteQuery_FetchNextPageAppends(t *testing.T) {
	var calls int32
	next := func(pages [][]int, params []int) (int, bool) {
		if len(pages) >= 3 {
			return 0, false
		}
		return params[len(params)-1] + 10, true
	}

	iq := query.NewInfinite[string, []int, int, error]("k", pageFetcher(t, &calls), next, nil, 0, query.Const(false), query.Const(time.Duration(0)), nil)

	_, err := iq.Query.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, iq.HasNextPage())

	require.NoError(t, iq.FetchNextPage(context.Background()))
	require.NoError(t, iq.FetchNextPage(context.Background()))

	s := iq.Query.State()
	assert.Len(t, s.Data.Pages, 3)
	assert.Equal(t, []int{0, 10, 20}, s.Data.PageParams)
	assert.False(t, iq.HasNextPage())
}

func TestInfiniteQuery_RefetchAllPreservesPageCountAndOrder(t *testing.T) {
	var calls int32
	next := func(pages [][]int, params []int) (int, bool) { return 0, false }

	iq := query.NewInfinite[string, []int, int, error]("k", pageFetcher(t, &calls), next, nil, 0, query.Const(false), query.Const(time.Duration(0)), nil)
	_, err := iq.Query.Fetch(context.Background())
	require.NoError(t, err)

	before := atomic.LoadInt32(&calls)
	require.NoError(t, iq.RefetchAll(context.Background()))
	assert.Greater(t, atomic.LoadInt32(&calls), before)

	s := iq.Query.State()
	assert.Len(t, s.Data.Pages, 1)
	assert.Equal(t, []int{0}, s.Data.PageParams)
}

func TestInfiniteQuery_RefetchAllLeavesDataUntouchedOnError(t *testing.T) {
	attempt := 0
	fetchPage := func(ctx query.Context[string], pageParam int) ([]int, error) {
		attempt++
		if attempt > 1 {
			return nil, assert.AnError
		}
		return []int{pageParam}, nil
	}
	next := func(pages [][]int, params []int) (int, bool) { return 0, false }

	iq := query.NewInfinite[string, []int, int, error]("k", fetchPage, next, nil, 0, query.Const(false), query.Const(time.Duration(0)), nil)
	_, err := iq.Query.Fetch(context.Background())
	require.NoError(t, err)

	before := iq.Query.State()
	err = iq.RefetchAll(context.Background())
	require.Error(t, err)

	after := iq.Query.State()
	assert.Equal(t, before.Data, after.Data)
}

func TestInfiniteQuery_InvalidateOverridesQueryInvalidate(t *testing.T) {
	var calls int32
	next := func(pages [][]int, params []int) (int, bool) { return 0, false }
	iq := query.NewInfinite[string, []int, int, error]("k", pageFetcher(t, &calls), next, nil, 0, query.Const(false), query.Const(time.Duration(0)), nil)

	_, err := iq.Query.Fetch(context.Background())
	require.NoError(t, err)
	iq.Query.AttachObserver()

	before := atomic.LoadInt32(&calls)
	iq.Invalidate()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) > before
	}, time.Second, time.Millisecond)
}
