package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/auth/state"
	"github.com/marcogenualdo/session-demo/internal/auth/tokens"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/marcogenualdo/session-demo/internal/services"
)

// Factory builds the controller of a browser session.
type Factory func(ctx context.Context, sessionID string) *Controller

// ElectorFunc picks the leader elector of a browser session.
type ElectorFunc func(sessionID string) services.LeaderElector

// NewFactory wires a token manager, auth state manager and service manager
// around the shared client and cache for every new session.
func NewFactory(cfg *config.Config, client auth.Client, store cache.Cache, electors ElectorFunc, opts Options) Factory {
	return func(ctx context.Context, sessionID string) *Controller {
		tm := tokens.NewManager(store, sessionID, client, tokens.Options{
			ExpireEarly: cfg.OIDC.ExpireEarly(),
			TTL:         cfg.Server.SessionTTL,
			Clock:       opts.Clock,
		})

		var elector services.LeaderElector
		if electors != nil {
			elector = electors(sessionID)
		}

		return New(ctx, sessionID, cfg, Deps{
			Client:    client,
			Tokens:    tm,
			AuthState: state.NewManager(tm),
			Services: services.New(cfg.OIDC.Services, tm, elector, services.Options{
				Clock:  opts.Clock,
				Logger: opts.Logger,
			}),
			Store: store,
		}, opts)
	}
}

// Registry keeps one controller per browser session and closes the ones
// not seen for ttl.
type Registry struct {
	factory Factory
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	stopCh    chan struct{}
	closeOnce sync.Once
}

type entry struct {
	controller *Controller
	lastSeen   time.Time
}

func NewRegistry(factory Factory, ttl time.Duration, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		factory: factory,
		ttl:     ttl,
		clock:   opts.Clock,
		logger:  opts.Logger,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}

	go r.evictIdle()

	return r
}

// Get returns the controller of sessionID, creating it on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if e, ok := r.entries[sessionID]; ok {
		e.lastSeen = now
		return e.controller
	}

	c := r.factory(ctx, sessionID)
	r.entries[sessionID] = &entry{controller: c, lastSeen: now}
	r.logger.Debug("session controller created", "session", shortID(sessionID))
	return c
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes controllers idle for longer than ttl and returns how many
// were evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.clock.Now()
	var idle []*Controller
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) >= r.ttl {
			idle = append(idle, e.controller)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle session controllers", "count", len(idle))
	}
	return len(idle)
}

// Close stops eviction and closes every controller.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	all := make([]*Controller, 0, len(r.entries))
	for id, e := range r.entries {
		all = append(all, e.controller)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

func (r *Registry) evictIdle() {
	ticker := r.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}
