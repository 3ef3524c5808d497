package tokens

import (
	"slices"
	"sync"

	"github.com/marcogenualdo/session-demo/internal/auth"
)

type Event string

const (
	EventAdded   Event = "added"
	EventRemoved Event = "removed"
	EventRenewed Event = "renewed"
	EventExpired Event = "expired"
	EventError   Event = "error"
)

// Change describes one token event. NewToken and OldToken are set as they
// apply: added carries NewToken, removed and expired carry OldToken, renewed
// carries both, error carries Err.
type Change struct {
	Event    Event
	Key      auth.TokenKey
	NewToken *auth.Token
	OldToken *auth.Token
	Err      error
}

type Handler func(Change)

type emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Event]map[int]Handler
}

func (e *emitter) on(event Event, fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[Event]map[int]Handler)
	}
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[int]Handler)
	}

	id := e.nextID
	e.nextID++
	e.handlers[event][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[event], id)
	}
}

// emit runs handlers synchronously, in subscription order, without holding
// the lock so handlers may call back into the manager.
func (e *emitter) emit(c Change) {
	e.mu.RLock()
	ids := make([]int, 0, len(e.handlers[c.Event]))
	for id := range e.handlers[c.Event] {
		ids = append(ids, id)
	}
	fns := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, e.handlers[c.Event][id])
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
