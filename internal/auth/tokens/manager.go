package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/cache"
)

// Renewer exchanges a refresh token for a fresh token set.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*auth.TokenSet, error)
}

type Options struct {
	// ExpireEarly treats tokens as expired this long before their real expiry.
	ExpireEarly time.Duration
	// TTL bounds how long a token set survives in storage.
	TTL   time.Duration
	Clock clockwork.Clock
}

// Manager owns the token set of one browser session. Tokens live in the
// cache so that instances sharing a Redis backend see the same set.
type Manager struct {
	storage    cache.Cache
	storageKey string
	renewer    Renewer
	opts       Options

	events emitter

	// mu serializes read-modify-write cycles on storage.
	mu sync.Mutex
	// renewMu keeps a single refresh grant in flight.
	renewMu sync.Mutex

	expiredMu   sync.Mutex
	expiredSeen map[auth.TokenKey]string

	// known is the token values last written or observed by this manager.
	knownMu sync.Mutex
	known   map[auth.TokenKey]string
}

func NewManager(storage cache.Cache, sessionID string, renewer Renewer, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{
		storage:     storage,
		storageKey:  StorageKey(sessionID),
		renewer:     renewer,
		opts:        opts,
		expiredSeen: make(map[auth.TokenKey]string),
		known:       make(map[auth.TokenKey]string),
	}
}

// StorageKey is the cache key holding a session's token set.
func StorageKey(sessionID string) string {
	return "tokens:" + sessionID
}

// On subscribes fn to event and returns the matching unsubscribe func.
func (m *Manager) On(event Event, fn Handler) func() {
	return m.events.on(event, fn)
}

func (m *Manager) ExpireEarly() time.Duration {
	return m.opts.ExpireEarly
}

// GetTokens returns the stored set; an empty set when nothing is stored.
func (m *Manager) GetTokens(ctx context.Context) (*auth.TokenSet, error) {
	var set auth.TokenSet
	err := cache.GetJSON(ctx, m.storage, m.storageKey, &set)
	if errors.Is(err, cache.ErrNotFound) {
		return &auth.TokenSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	return &set, nil
}

// Get returns the token under key, or nil when absent.
func (m *Manager) Get(ctx context.Context, key auth.TokenKey) (*auth.Token, error) {
	set, err := m.GetTokens(ctx)
	if err != nil {
		return nil, err
	}
	return set.Get(key), nil
}

// save must be called with mu held.
func (m *Manager) save(ctx context.Context, set *auth.TokenSet) error {
	if set.Empty() {
		if err := m.storage.Delete(ctx, m.storageKey); err != nil {
			return fmt.Errorf("failed to clear tokens: %w", err)
		}
	} else if err := cache.SetJSON(ctx, m.storage, m.storageKey, set, m.opts.TTL); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	m.remember(set)
	return nil
}

func (m *Manager) remember(set *auth.TokenSet) map[auth.TokenKey]string {
	next := make(map[auth.TokenKey]string)
	for _, key := range set.Keys() {
		next[key] = set.Get(key).Value
	}

	m.knownMu.Lock()
	defer m.knownMu.Unlock()
	prev := m.known
	m.known = next
	return prev
}

// Sync reconciles with storage written by another instance, emitting added
// for tokens that appeared or changed and removed for tokens that vanished.
func (m *Manager) Sync(ctx context.Context) error {
	m.mu.Lock()
	set, err := m.GetTokens(ctx)
	var prev map[auth.TokenKey]string
	if err == nil {
		prev = m.remember(set)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, key := range auth.TokenKeys {
		old, had := prev[key]
		token := set.Get(key)
		switch {
		case had && token == nil:
			m.forgetExpired(key)
			m.events.emit(Change{Event: EventRemoved, Key: key, OldToken: &auth.Token{Value: old}})
		case token != nil && (!had || token.Value != old):
			m.forgetExpired(key)
			m.events.emit(Change{Event: EventAdded, Key: key, NewToken: token})
		}
	}
	return nil
}

// SetTokens replaces the stored set, emitting added for every token in
// next and removed for every key that disappears.
func (m *Manager) SetTokens(ctx context.Context, next *auth.TokenSet) error {
	m.mu.Lock()
	prev, err := m.GetTokens(ctx)
	if err == nil {
		err = m.save(ctx, next)
	}
	m.mu.Unlock()
	if err != nil {
		m.emitError(err)
		return err
	}

	for _, key := range auth.TokenKeys {
		if old := prev.Get(key); old != nil && next.Get(key) == nil {
			m.forgetExpired(key)
			m.events.emit(Change{Event: EventRemoved, Key: key, OldToken: old})
		}
	}
	for _, key := range next.Keys() {
		m.forgetExpired(key)
		m.events.emit(Change{Event: EventAdded, Key: key, NewToken: next.Get(key)})
	}
	return nil
}

func (m *Manager) Add(ctx context.Context, key auth.TokenKey, token *auth.Token) error {
	m.mu.Lock()
	set, err := m.GetTokens(ctx)
	if err == nil {
		set.Set(key, token)
		err = m.save(ctx, set)
	}
	m.mu.Unlock()
	if err != nil {
		m.emitError(err)
		return err
	}

	m.forgetExpired(key)
	m.events.emit(Change{Event: EventAdded, Key: key, NewToken: token})
	return nil
}

func (m *Manager) Remove(ctx context.Context, key auth.TokenKey) error {
	m.mu.Lock()
	set, err := m.GetTokens(ctx)
	var old *auth.Token
	if err == nil {
		old = set.Get(key)
		set.Set(key, nil)
		err = m.save(ctx, set)
	}
	m.mu.Unlock()
	if err != nil {
		m.emitError(err)
		return err
	}

	if old != nil {
		m.forgetExpired(key)
		m.events.emit(Change{Event: EventRemoved, Key: key, OldToken: old})
	}
	return nil
}

// Clear drops every token, emitting removed for each.
func (m *Manager) Clear(ctx context.Context) error {
	return m.SetTokens(ctx, &auth.TokenSet{})
}

// Renew runs the refresh grant and stores the result. renewed is emitted for
// every key the issuer returned; the token for key is returned.
func (m *Manager) Renew(ctx context.Context, key auth.TokenKey) (*auth.Token, error) {
	m.renewMu.Lock()
	defer m.renewMu.Unlock()

	set, err := m.GetTokens(ctx)
	if err != nil {
		m.emitError(err)
		return nil, err
	}
	if set.Get(key) == nil {
		err := fmt.Errorf("renew %s: %w", key, auth.ErrNoToken)
		m.emitError(err)
		return nil, err
	}
	if set.RefreshToken == nil {
		err := fmt.Errorf("renew %s: %w", key, auth.ErrNoRefreshToken)
		m.emitError(err)
		return nil, err
	}

	fresh, err := m.renewer.Renew(ctx, set.RefreshToken.Value)
	if err != nil {
		err = fmt.Errorf("renew %s: %w", key, err)
		m.emitError(err)
		return nil, err
	}

	m.mu.Lock()
	current, err := m.GetTokens(ctx)
	if err == nil && (current.RefreshToken == nil || current.RefreshToken.Value != set.RefreshToken.Value) {
		// cleared or replaced while the grant was in flight
		err = fmt.Errorf("renew %s: %w", key, auth.ErrNoToken)
	}
	if err == nil {
		for _, k := range fresh.Keys() {
			current.Set(k, fresh.Get(k))
		}
		err = m.save(ctx, current)
	}
	m.mu.Unlock()
	if err != nil {
		m.emitError(err)
		return nil, err
	}

	for _, k := range fresh.Keys() {
		m.forgetExpired(k)
		m.events.emit(Change{Event: EventRenewed, Key: k, NewToken: fresh.Get(k), OldToken: set.Get(k)})
	}

	token := fresh.Get(key)
	if token == nil {
		return nil, fmt.Errorf("renew %s: %w", key, auth.ErrNoToken)
	}
	return token, nil
}

// HasExpired applies the early-expiry window.
func (m *Manager) HasExpired(token *auth.Token) bool {
	return token.Expired(m.opts.Clock.Now(), m.opts.ExpireEarly)
}

// CheckExpirations emits expired once per expired token and returns the
// keys it fired for.
func (m *Manager) CheckExpirations(ctx context.Context) ([]auth.TokenKey, error) {
	set, err := m.GetTokens(ctx)
	if err != nil {
		return nil, err
	}

	var fired []auth.TokenKey
	for _, key := range set.Keys() {
		token := set.Get(key)
		if !m.HasExpired(token) || !m.markExpired(key, token) {
			continue
		}
		fired = append(fired, key)
		m.events.emit(Change{Event: EventExpired, Key: key, OldToken: token})
	}
	return fired, nil
}

func (m *Manager) markExpired(key auth.TokenKey, token *auth.Token) bool {
	m.expiredMu.Lock()
	defer m.expiredMu.Unlock()

	if m.expiredSeen[key] == token.Value {
		return false
	}
	m.expiredSeen[key] = token.Value
	return true
}

func (m *Manager) forgetExpired(key auth.TokenKey) {
	m.expiredMu.Lock()
	defer m.expiredMu.Unlock()
	delete(m.expiredSeen, key)
}

func (m *Manager) emitError(err error) {
	m.events.emit(Change{Event: EventError, Err: err})
}
