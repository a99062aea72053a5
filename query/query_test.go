package query_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goquery/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFetch_DeduplicatesConcurrentCalls(t *testing.T) {
	var calls int32
	start := make(chan struct{})
	fn := func(ctx query.Context[string]) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return 42, nil
	}
	q := query.New[string, int, error]("k", fn, query.Const(false), query.Const(time.Duration(0)), nil)

	type result struct {
		v   int
		err error
	}
	results := make(chan result, 2)
	go func() {
		v, err := q.Fetch(context.Background())
		results <- result{v, err}
	}()
	go func() {
		v, err := q.Fetch(context.Background())
		results <- result{v, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(start)

	r1 := <-results
	r2 := <-results
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Equal(t, 42, r1.v)
	assert.Equal(t, 42, r2.v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_RetriesUntilSuccess(t *testing.T) {
	var attempts int32
	fn := func(ctx query.Context[string]) (int, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return 0, assert.AnError
		}
		return 7, nil
	}
	q := query.New[string, int, error]("k", fn, query.RetryCount(5), query.Const(time.Millisecond), nil)

	v, err := q.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestCancel_RollsBackToPreFetchSnapshot(t *testing.T) {
	block := make(chan struct{})
	fn := func(ctx query.Context[string]) (int, error) {
		<-ctx.Signal.Done()
		return 0, ctx.Signal.Err()
	}
	q := query.New[string, int, error]("k", fn, query.Const(false), query.Const(time.Duration(0)), nil)

	go func() {
		_, _ = q.Fetch(context.Background())
		close(block)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Cancel()
	<-block

	s := q.State()
	assert.False(t, s.HasData)
	assert.False(t, s.HasErr)
	assert.Equal(t, query.FetchIdle, s.FetchStatus)
}

func TestInvalidate_TriggersBackgroundRefetchWhenObserved(t *testing.T) {
	var fetches int32
	done := make(chan struct{}, 2)
	fn := func(ctx query.Context[string]) (int, error) {
		n := atomic.AddInt32(&fetches, 1)
		done <- struct{}{}
		return int(n), nil
	}
	q := query.New[string, int, error]("k", fn, query.Const(false), query.Const(time.Duration(0)), nil)
	q.AttachObserver()

	_, err := q.Fetch(context.Background())
	require.NoError(t, err)
	<-done

	q.Invalidate()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("invalidate did not trigger a background refetch")
	}

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fetches), int32(2))
}

func TestSetData_RejectsOlderWrite(t *testing.T) {
	fn := func(ctx query.Context[string]) (int, error) { return 0, nil }
	q := query.New[string, int, error]("k", fn, query.Const(false), query.Const(time.Duration(0)), nil)

	now := time.Now()
	q.SetData(func(cur int, had bool) int { return 1 }, now)
	q.SetData(func(cur int, had bool) int { return 2 }, now.Add(-time.Hour))

	assert.Equal(t, 1, q.State().Data)
}

func TestFetch_SuccessClearsPriorError(t *testing.T) {
	fail := true
	fn := func(ctx query.Context[string]) (int, error) {
		if fail {
			return 0, assert.AnError
		}
		return 9, nil
	}
	q := query.New[string, int, error]("k", fn, query.Const(false), query.Const(time.Duration(0)), nil)

	_, err := q.Fetch(context.Background())
	require.Error(t, err)
	require.True(t, q.State().HasErr)

	fail = false
	v, err := q.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	s := q.State()
	assert.Equal(t, query.StatusSuccess, s.Status)
	assert.False(t, s.HasErr, "a successful refetch should clear a prior attempt's error")
}

func TestIsStale(t *testing.T) {
	fn := func(ctx query.Context[string]) (int, error) { return 0, nil }
	q := query.New[string, int, error]("k", fn, query.Const(false), query.Const(time.Duration(0)), nil)

	assert.True(t, q.IsStale(query.Duration(time.Minute), time.Now()), "no data yet means stale")

	q.SetData(func(cur int, had bool) int { return 1 }, time.Now())
	assert.False(t, q.IsStale(query.Duration(time.Minute), time.Now()))
	assert.True(t, q.IsStale(query.Duration(0), time.Now()))
	assert.False(t, q.IsStale(query.Static, time.Now().Add(time.Hour)))
}
