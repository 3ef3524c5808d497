// Package timer renders the page's MM:SS countdown and count-up displays.
// Timers are computed from a start instant instead of ticking, so restarting
// one is just moving its start.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Format renders whole seconds as MM:SS; minutes grow past 99 if needed.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

type base struct {
	clock clockwork.Clock

	mu      sync.Mutex
	started time.Time
	running bool
}

// Restart resets the timer to its initial value.
func (b *base) Restart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = b.clock.Now()
	b.running = true
}

func (b *base) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

func (b *base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *base) elapsed() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return 0, false
	}
	return b.clock.Since(b.started), true
}

// Countdown counts from Duration down to zero, then starts over.
type Countdown struct {
	base
	Duration time.Duration
}

func NewCountdown(d time.Duration, clock clockwork.Clock) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{base: base{clock: clock}, Duration: d}
}

// Remaining is the whole seconds left in the current cycle. A cycle shows
// Duration, Duration-1, ... 0 and so lasts Duration+1 seconds.
func (c *Countdown) Remaining() int {
	elapsed, ok := c.elapsed()
	total := int(c.Duration / time.Second)
	if !ok {
		return total
	}
	return total - int(elapsed/time.Second)%(total+1)
}

func (c *Countdown) String() string {
	return Format(c.Remaining())
}

// CountUp counts seconds since its last restart.
type CountUp struct {
	base
}

func NewCountUp(clock clockwork.Clock) *CountUp {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CountUp{base: base{clock: clock}}
}

func (c *CountUp) Elapsed() int {
	elapsed, _ := c.elapsed()
	return int(elapsed / time.Second)
}

// Exceeds reports whether the timer is running and has passed d.
func (c *CountUp) Exceeds(d time.Duration) bool {
	elapsed, ok := c.elapsed()
	return ok && elapsed >= d
}

func (c *CountUp) String() string {
	return Format(c.Elapsed())
}
