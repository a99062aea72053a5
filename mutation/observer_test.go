package mutation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goquery/mutation"
)

func TestObserver_SingleScopeRejectsConcurrentMutateOnSameHandle(t *testing.T) {
	block := make(chan struct{})
	fn := func(ctx context.Context, v int) (int, error) {
		<-block
		return v, nil
	}
	o := mutation.NewObserver[int, error, int, struct{}](fn, nil, nil, mutation.Callbacks[int, error, int, struct{}]{}, mutation.Callbacks[int, error, int, struct{}]{}, mutation.ScopeSingle, "scope-a", nil, nil, nil)

	first := make(chan struct{})
	go func() { _, _ = o.Mutate(context.Background(), 1); close(first) }()
	time.Sleep(20 * time.Millisecond)

	_, err := o.Mutate(context.Background(), 2)
	var precondition *mutation.PreconditionError
	assert.ErrorAs(t, err, &precondition)

	close(block)
	<-first
}

func TestObserver_SharedScopeQueuesAcrossDistinctHandles(t *testing.T) {
	runner := mutation.NewRunner()
	var mu sync.Mutex
	var order []int

	fn := func(n int) mutation.Fn[int, int] {
		return func(ctx context.Context, v int) (int, error) {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return n, nil
		}
	}

	o1 := mutation.NewObserver[int, error, int, struct{}](fn(1), nil, nil, mutation.Callbacks[int, error, int, struct{}]{}, mutation.Callbacks[int, error, int, struct{}]{}, mutation.ScopeSingle, "shared", runner, nil, nil)
	o2 := mutation.NewObserver[int, error, int, struct{}](fn(2), nil, nil, mutation.Callbacks[int, error, int, struct{}]{}, mutation.Callbacks[int, error, int, struct{}]{}, mutation.ScopeSingle, "shared", runner, nil, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = o1.Mutate(context.Background(), 0) }()
	time.Sleep(2 * time.Millisecond)
	go func() { defer wg.Done(); _, _ = o2.Mutate(context.Background(), 0) }()
	wg.Wait()

	assert.Equal(t, []int{1, 2}, order)
}

func TestObserver_CacheCallbacksFireAfterObserverCallbacks(t *testing.T) {
	var order []string
	fn := func(ctx context.Context, v int) (int, error) { return v, nil }

	cbs := mutation.Callbacks[int, error, int, struct{}]{
		OnSuccess: func(ctx context.Context, data int, v int, mctx struct{}) { order = append(order, "observer") },
	}
	cacheCbs := mutation.Callbacks[int, error, int, struct{}]{
		OnSuccess: func(ctx context.Context, data int, v int, mctx struct{}) { order = append(order, "cache") },
	}

	o := mutation.NewObserver[int, error, int, struct{}](fn, nil, nil, cbs, cacheCbs, mutation.ScopeParallel, "", nil, nil, nil)
	_, err := o.Mutate(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"observer", "cache"}, order)
}

func TestObserver_ResetNoopWhilePending(t *testing.T) {
	block := make(chan struct{})
	fn := func(ctx context.Context, v int) (int, error) {
		<-block
		return v, nil
	}
	o := mutation.NewObserver[int, error, int, struct{}](fn, nil, nil, mutation.Callbacks[int, error, int, struct{}]{}, mutation.Callbacks[int, error, int, struct{}]{}, mutation.ScopeParallel, "", nil, nil, nil)

	done := make(chan struct{})
	go func() {
		_, _ = o.Mutate(context.Background(), 1)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	o.Reset() // no-op: a mutation is in flight
	assert.Equal(t, mutation.StatusPending, o.Current().Status)

	close(block)
	<-done
	require.Equal(t, mutation.StatusSuccess, o.Current().Status)

	o.Reset()
	assert.Equal(t, mutation.StatusIdle, o.Current().Status)
}
