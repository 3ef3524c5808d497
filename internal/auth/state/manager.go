// Package state tracks whether a browser session is authenticated and fans
// the result out to subscribers.
package state

import (
	"context"
	"slices"
	"sync"

	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/auth/tokens"
)

type Subscriber func(auth.AuthState)

// TokenSource is the part of the token manager the state manager reads.
type TokenSource interface {
	GetTokens(ctx context.Context) (*auth.TokenSet, error)
	HasExpired(token *auth.Token) bool
	On(event tokens.Event, fn tokens.Handler) func()
}

type Manager struct {
	tokens TokenSource

	mu          sync.Mutex
	nextID      int
	subscribers map[int]Subscriber
	current     auth.AuthState
	hasState    bool

	detach []func()
}

func NewManager(src TokenSource) *Manager {
	return &Manager{
		tokens:      src,
		subscribers: make(map[int]Subscriber),
	}
}

// Subscribe registers fn and returns its unsubscribe func.
func (m *Manager) Subscribe(fn Subscriber) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// Attach recomputes state whenever tokens are added or removed. ctx is used
// for those background reads.
func (m *Manager) Attach(ctx context.Context) {
	update := func(tokens.Change) { m.UpdateAuthState(ctx) }

	m.mu.Lock()
	defer m.mu.Unlock()
	m.detach = append(m.detach,
		m.tokens.On(tokens.EventAdded, update),
		m.tokens.On(tokens.EventRemoved, update),
	)
}

// Detach undoes Attach.
func (m *Manager) Detach() {
	m.mu.Lock()
	detach := m.detach
	m.detach = nil
	m.mu.Unlock()

	for _, off := range detach {
		off()
	}
}

// UpdateAuthState recomputes the state from storage and notifies every
// subscriber, whether or not it changed.
func (m *Manager) UpdateAuthState(ctx context.Context) auth.AuthState {
	st := m.compute(ctx)

	m.mu.Lock()
	m.current = st
	m.hasState = true
	ids := make([]int, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subscribers[id])
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return st
}

// AuthState returns the last published state, computing one if none exists.
func (m *Manager) AuthState(ctx context.Context) auth.AuthState {
	m.mu.Lock()
	st, ok := m.current, m.hasState
	m.mu.Unlock()
	if ok {
		return st
	}
	return m.compute(ctx)
}

func (m *Manager) compute(ctx context.Context) auth.AuthState {
	set, err := m.tokens.GetTokens(ctx)
	if err != nil {
		return auth.AuthState{}
	}

	st := auth.AuthState{
		AccessToken: set.AccessToken,
		IDToken:     set.IDToken,
	}
	st.IsAuthenticated = set.AccessToken != nil && set.IDToken != nil &&
		!m.tokens.HasExpired(set.AccessToken) && !m.tokens.HasExpired(set.IDToken)
	return st
}
