// Package throttle coalesces bursts of calls into at most one per window.
package throttle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const DefaultDelay = 500 * time.Millisecond

// Throttle runs fn for the first call in each delay window and drops the rest.
type Throttle[T any] struct {
	fn      func(T)
	clock   clockwork.Clock
	limiter *rate.Limiter

	mu sync.Mutex
}

func New[T any](fn func(T), delay time.Duration, clock clockwork.Clock) *Throttle[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Throttle[T]{
		fn:      fn,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Call invokes fn with arg unless a call already ran inside the current
// window. It reports whether fn ran.
func (t *Throttle[T]) Call(arg T) bool {
	t.mu.Lock()
	allowed := t.limiter.AllowN(t.clock.Now(), 1)
	t.mu.Unlock()

	if !allowed {
		return false
	}
	t.fn(arg)
	return true
}
