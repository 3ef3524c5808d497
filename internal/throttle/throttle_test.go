package throttle_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/throttle"
	"github.com/stretchr/testify/require"
)

func TestThrottle_CoalescesWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var got []string
	th := throttle.New(func(kind string) { got = append(got, kind) }, 500*time.Millisecond, clock)

	require.True(t, th.Call("page load"))
	require.False(t, th.Call("mousemove"))

	clock.Advance(200 * time.Millisecond)
	require.False(t, th.Call("scroll"))

	clock.Advance(400 * time.Millisecond)
	require.True(t, th.Call("keyup"))
	require.False(t, th.Call("touchstart"))

	require.Equal(t, []string{"page load", "keyup"}, got)
}

func TestThrottle_BurstYieldsOneCallPerWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	th := throttle.New(func(struct{}) { calls++ }, 0, clock)

	// 100 events 10ms apart: one call at 0 and one at 500ms
	for i := 0; i < 100; i++ {
		th.Call(struct{}{})
		clock.Advance(10 * time.Millisecond)
	}
	require.Equal(t, 2, calls)
}
