package focus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"goquery/focus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStore_SetNotifiesSubscribersInOrder(t *testing.T) {
	s := focus.NewStore(false)
	var seen []bool

	unsubscribe := s.Subscribe(func(v bool) { seen = append(seen, v) })
	s.Set(true)
	s.Set(false)
	unsubscribe()
	s.Set(true)

	assert.Equal(t, []bool{true, false}, seen)
	assert.True(t, s.Get())
}

func TestStore_MultipleSubscribersAllNotified(t *testing.T) {
	s := focus.NewStore(0)
	var a, b int
	s.Subscribe(func(v int) { a = v })
	s.Subscribe(func(v int) { b = v })

	s.Set(7)

	assert.Equal(t, 7, a)
	assert.Equal(t, 7, b)
}

func TestManagerAndOnlineManager_StartAtInitial(t *testing.T) {
	focusMgr := focus.NewManager(true)
	onlineMgr := focus.NewOnlineManager(false)

	assert.True(t, focusMgr.Get())
	assert.False(t, onlineMgr.Get())
}
