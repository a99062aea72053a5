package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goquery/cache"
	"goquery/querykey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBuild_GetOrCreateSharesOneValuePerKey(t *testing.T) {
	c := cache.NewQueryCache(8, nil)
	key := querykey.Key{"todos", 1}

	var constructed int
	factory := func() *int {
		constructed++
		v := 42
		return &v
	}

	a := cache.Build[*int](c, key, time.Minute, factory, func(*int) {}, func(v *int) any { return *v })
	b := cache.Build[*int](c, key, time.Minute, factory, func(*int) {}, func(v *int) any { return *v })

	assert.Same(t, a, b)
	assert.Equal(t, 1, constructed)

	c.Detach(key)
	c.Detach(key)
}

func TestDetach_ArmsGCOnlyWhenLastObserverLeaves(t *testing.T) {
	c := cache.NewQueryCache(8, nil)
	key := querykey.Key{"todos"}

	var cancelled int
	factory := func() *int { v := 1; return &v }
	cancel := func(*int) { cancelled++ }

	a := cache.Build[*int](c, key, 5*time.Millisecond, factory, cancel, func(v *int) any { return *v })
	cache.Build[*int](c, key, 5*time.Millisecond, factory, cancel, func(v *int) any { return *v })
	_ = a

	c.Detach(key)
	_, ok := c.Get(key)
	assert.True(t, ok, "still attached by the second observer")

	c.Detach(key)
	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "GC should have removed the entry")
	assert.Equal(t, 1, cancelled)
}

func TestDetach_ReattachBeforeExpiryCancelsGC(t *testing.T) {
	c := cache.NewQueryCache(8, nil)
	key := querykey.Key{"todos"}
	factory := func() *int { v := 1; return &v }

	cache.Build[*int](c, key, 10*time.Millisecond, factory, func(*int) {}, func(v *int) any { return *v })
	c.Detach(key)

	time.Sleep(5 * time.Millisecond)
	cache.Build[*int](c, key, 10*time.Millisecond, factory, func(*int) {}, func(v *int) any { return *v })

	time.Sleep(15 * time.Millisecond)
	_, ok := c.Get(key)
	assert.True(t, ok, "re-attach before the GC timer fired should cancel it")
}

func TestGetDisposed_RecordsLastStateWithinGraceWindow(t *testing.T) {
	c := cache.NewQueryCache(8, nil)
	key := querykey.Key{"todos"}
	factory := func() *int { v := 99; return &v }

	cache.Build[*int](c, key, 0, factory, func(*int) {}, func(v *int) any { return *v })
	c.Detach(key)

	v, ok := c.GetDisposed(key)
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestFindAll_PrefixAndExactMatch(t *testing.T) {
	c := cache.NewQueryCache(8, nil)
	for _, k := range []querykey.Key{{"todos"}, {"todos", 1}, {"users"}} {
		cache.Build[*int](c, k, time.Minute, func() *int { v := 0; return &v }, func(*int) {}, nil)
	}

	prefixMatch, err := cache.Filters{Key: querykey.Key{"todos"}, HasKey: true}.Matcher()
	require.NoError(t, err)
	assert.Len(t, c.FindAll(prefixMatch), 2)

	exactMatch, err := cache.Filters{Key: querykey.Key{"todos"}, HasKey: true, Exact: true}.Matcher()
	require.NoError(t, err)
	assert.Len(t, c.FindAll(exactMatch), 1)
}

func TestFilters_ExpressionMatchesFlattenedState(t *testing.T) {
	c := cache.NewQueryCache(8, nil)
	key := querykey.Key{"todos"}
	cache.Build[*int](c, key, time.Minute, func() *int { v := 0; return &v }, func(*int) {}, nil)

	f := cache.Filters{
		Expression: `status == "stale"`,
		ViewOf:     func(e cache.Entry) cache.StateView { return cache.StateView{Status: "stale"} },
	}
	matcher, err := f.Matcher()
	require.NoError(t, err)
	assert.Len(t, c.FindAll(matcher), 1)
}
