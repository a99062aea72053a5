package mutation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goquery/mutation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRun_LifecycleOrderOnSuccess(t *testing.T) {
	var order []string

	fn := func(ctx context.Context, v int) (string, error) {
		order = append(order, "mutationFn")
		return "ok", nil
	}
	observerCbs := mutation.Callbacks[string, error, int, string]{
		OnMutate: func(ctx context.Context, v int) (string, error) {
			order = append(order, "observer.onMutate")
			return "ctx", nil
		},
		OnSuccess: func(ctx context.Context, data string, v int, mctx string) {
			order = append(order, "observer.onSuccess")
		},
		OnSettled: func(ctx context.Context, data string, hasData bool, err error, hasErr bool, v int, mctx string) {
			order = append(order, "observer.onSettled")
		},
	}
	cacheCbs := mutation.Callbacks[string, error, int, string]{
		OnMutate: func(ctx context.Context, v int) (string, error) {
			order = append(order, "cache.onMutate")
			return "ctx", nil
		},
		OnSuccess: func(ctx context.Context, data string, v int, mctx string) {
			order = append(order, "cache.onSuccess")
		},
		OnSettled: func(ctx context.Context, data string, hasData bool, err error, hasErr bool, v int, mctx string) {
			order = append(order, "cache.onSettled")
		},
	}

	m := mutation.New[string, error, int, string](fn, nil, nil, nil)
	data, err := m.Run(context.Background(), 1, observerCbs, cacheCbs)

	require.NoError(t, err)
	assert.Equal(t, "ok", data)
	assert.Equal(t, []string{
		"observer.onMutate", "cache.onMutate",
		"mutationFn",
		"observer.onSuccess", "cache.onSuccess",
		"observer.onSettled", "cache.onSettled",
	}, order)
}

func TestRun_OnErrorSkipsOnSuccess(t *testing.T) {
	var order []string
	fn := func(ctx context.Context, v int) (string, error) { return "", assert.AnError }
	cbs := mutation.Callbacks[string, error, int, struct{}]{
		OnSuccess: func(ctx context.Context, data string, v int, mctx struct{}) { order = append(order, "onSuccess") },
		OnError:   func(ctx context.Context, err error, v int, mctx struct{}) { order = append(order, "onError") },
		OnSettled: func(ctx context.Context, data string, hasData bool, err error, hasErr bool, v int, mctx struct{}) {
			order = append(order, "onSettled")
		},
	}

	m := mutation.New[string, error, int, struct{}](fn, nil, nil, nil)
	_, err := m.Run(context.Background(), 1, cbs, mutation.Callbacks[string, error, int, struct{}]{})

	require.Error(t, err)
	assert.Equal(t, []string{"onError", "onSettled"}, order)
	assert.Equal(t, mutation.StatusError, m.State().Status)
}

func TestRun_RetriesAccordingToRetryFunc(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context, v int) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, assert.AnError
		}
		return attempts, nil
	}
	retry := func(attempt int, err error) bool { return attempt < 5 }
	m := mutation.New[int, error, int, struct{}](fn, retry, func(int, error) time.Duration { return time.Millisecond }, nil)

	v, err := m.Run(context.Background(), 0, mutation.Callbacks[int, error, int, struct{}]{}, mutation.Callbacks[int, error, int, struct{}]{})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestReset_ReturnsToIdle(t *testing.T) {
	fn := func(ctx context.Context, v int) (int, error) { return v, nil }
	m := mutation.New[int, error, int, struct{}](fn, nil, nil, nil)
	_, _ = m.Run(context.Background(), 1, mutation.Callbacks[int, error, int, struct{}]{}, mutation.Callbacks[int, error, int, struct{}]{})
	assert.Equal(t, mutation.StatusSuccess, m.State().Status)

	m.Reset()
	assert.Equal(t, mutation.StatusIdle, m.State().Status)
	assert.False(t, m.State().HasData)
}
