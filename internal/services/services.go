// Package services runs the background work attached to a browser session's
// token manager: renewing and removing expired tokens, picking up tokens
// written by other instances, and electing the instance allowed to renew.
package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/auth/tokens"
	"github.com/marcogenualdo/session-demo/internal/config"
)

const (
	NameAutoRenew      = "autoRenew"
	NameAutoRemove     = "autoRemove"
	NameSyncStorage    = "syncStorage"
	NameLeaderElection = "leaderElection"
)

type Options struct {
	Clock  clockwork.Clock
	Logger *slog.Logger
	// ExpiryPoll is how often token expirations are checked.
	ExpiryPoll time.Duration
	// SyncInterval is how often shared storage is reconciled.
	SyncInterval time.Duration
	// LeaseRenewal is how often the leader lease is campaigned for.
	LeaseRenewal time.Duration
}

// Service is one background capability. Start on a service that cannot
// start is a no-op.
type Service interface {
	Name() string
	CanStart() bool
	RequiresLeadership() bool
	IsStarted() bool
	Start(ctx context.Context)
	Stop()
}

type service struct {
	name               string
	canStart           bool
	requiresLeadership bool
	run                func(ctx context.Context) (stop func())

	mu      sync.Mutex
	stop    func()
	started bool
}

func (s *service) Name() string             { return s.name }
func (s *service) CanStart() bool           { return s.canStart }
func (s *service) RequiresLeadership() bool { return s.requiresLeadership }

func (s *service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || !s.canStart {
		return
	}
	s.stop = s.run(ctx)
	s.started = true
}

func (s *service) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.started = false
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Manager starts and stops the services of one token manager.
type Manager struct {
	tokens  *tokens.Manager
	elector LeaderElector
	opts    Options

	services []*service
	byName   map[string]*service

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.ServicesConfig, tm *tokens.Manager, elector LeaderElector, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ExpiryPoll == 0 {
		opts.ExpiryPoll = time.Second
	}
	if opts.SyncInterval == 0 {
		opts.SyncInterval = 2 * time.Second
	}
	if opts.LeaseRenewal == 0 {
		opts.LeaseRenewal = 10 * time.Second
	}
	if elector == nil {
		elector = LocalElector{}
	}

	m := &Manager{
		tokens:  tm,
		elector: elector,
		opts:    opts,
		byName:  make(map[string]*service),
	}

	shared := cfg.SyncStorageEnabled()
	m.add(&service{name: NameLeaderElection, canStart: shared, run: m.runLeaderElection})
	m.add(&service{name: NameSyncStorage, canStart: shared, run: m.runSyncStorage})
	m.add(&service{name: NameAutoRenew, canStart: cfg.AutoRenewEnabled(), requiresLeadership: shared, run: m.runAutoRenew(cfg.AutoRemoveEnabled())})
	m.add(&service{name: NameAutoRemove, canStart: cfg.AutoRemoveEnabled(), requiresLeadership: shared, run: m.runAutoRemove})

	return m
}

func (m *Manager) add(s *service) {
	m.services = append(m.services, s)
	m.byName[s.name] = s
}

func (m *Manager) Service(name string) (Service, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// Start launches every service that can start. The services outlive ctx's
// cancellation; only Stop ends them.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	for _, s := range m.services {
		s.Start(runCtx)
	}

	if m.isStarted(NameAutoRenew) || m.isStarted(NameAutoRemove) {
		m.every(runCtx, m.opts.ExpiryPoll, func(ctx context.Context) {
			if _, err := m.tokens.CheckExpirations(ctx); err != nil {
				m.opts.Logger.Warn("expiry check failed", "error", err)
			}
		})
	}
}

func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	for i := len(m.services) - 1; i >= 0; i-- {
		m.services[i].Stop()
	}
	cancel()
	m.wg.Wait()
}

func (m *Manager) Restart(ctx context.Context) {
	m.Stop()
	m.Start(ctx)
}

func (m *Manager) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Manager) isStarted(name string) bool {
	s, ok := m.byName[name]
	return ok && s.IsStarted()
}

// every runs fn on each tick until ctx ends.
func (m *Manager) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := m.opts.Clock.NewTicker(interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				fn(ctx)
			}
		}
	}()
}

func (m *Manager) leading() bool {
	return m.elector.IsLeader()
}

func (m *Manager) runLeaderElection(ctx context.Context) func() {
	campaign := func(ctx context.Context) {
		if _, err := m.elector.Campaign(ctx); err != nil {
			m.opts.Logger.Warn("leader campaign failed", "error", err)
		}
	}
	campaign(ctx)
	m.every(ctx, m.opts.LeaseRenewal, campaign)

	return func() {
		if err := m.elector.Resign(context.WithoutCancel(ctx)); err != nil {
			m.opts.Logger.Warn("failed to resign leadership", "error", err)
		}
	}
}

func (m *Manager) runSyncStorage(ctx context.Context) func() {
	m.every(ctx, m.opts.SyncInterval, func(ctx context.Context) {
		if err := m.tokens.Sync(ctx); err != nil {
			m.opts.Logger.Warn("token sync failed", "error", err)
		}
	})
	return func() {}
}

func (m *Manager) runAutoRenew(removeOnFailure bool) func(ctx context.Context) func() {
	return func(ctx context.Context) func() {
		return m.tokens.On(tokens.EventExpired, func(c tokens.Change) {
			if c.Key == auth.RefreshTokenKey {
				return
			}
			if m.byName[NameAutoRenew].requiresLeadership && !m.leading() {
				m.opts.Logger.Debug("not leader, skipping renew", "key", c.Key)
				return
			}
			if !m.stillCurrent(ctx, c) {
				return
			}

			if _, err := m.tokens.Renew(ctx, c.Key); err != nil {
				m.opts.Logger.Warn("auto renew failed", "key", c.Key, "error", err)
				if removeOnFailure {
					if err := m.tokens.Remove(ctx, c.Key); err != nil {
						m.opts.Logger.Warn("auto remove after failed renew", "key", c.Key, "error", err)
					}
				}
			}
		})
	}
}

func (m *Manager) runAutoRemove(ctx context.Context) func() {
	return m.tokens.On(tokens.EventExpired, func(c tokens.Change) {
		if m.isStarted(NameAutoRenew) && c.Key != auth.RefreshTokenKey {
			return
		}
		if m.byName[NameAutoRemove].requiresLeadership && !m.leading() {
			return
		}
		if !m.stillCurrent(ctx, c) {
			return
		}
		if err := m.tokens.Remove(ctx, c.Key); err != nil {
			m.opts.Logger.Warn("auto remove failed", "key", c.Key, "error", err)
		}
	})
}

// stillCurrent drops expirations already handled, e.g. an ID token renewed
// together with its access token.
func (m *Manager) stillCurrent(ctx context.Context, c tokens.Change) bool {
	current, err := m.tokens.Get(ctx, c.Key)
	return err == nil && current != nil && c.OldToken != nil && current.Value == c.OldToken.Value
}

// Snapshot is the state dumped to the debug panel.
type Snapshot struct {
	SyncStorageCanStart         bool   `json:"syncStorage_CanStart"`
	SyncStorageIsStarted        bool   `json:"syncStorage_isStarted"`
	AutoRenewCanStart           bool   `json:"autoRenew_CanStart"`
	AutoRenewIsStarted          bool   `json:"autoRenew_isStarted"`
	AutoRenewRequiresLeadership bool   `json:"autoRenew_requiresLeadership"`
	LeaderElectionIsLeader      *bool  `json:"leaderElection_isLeader"`
	LeaderElectionHasLeader     *bool  `json:"leaderElection_hasLeader"`
	LeaderElectionType          string `json:"leaderElection_type,omitempty"`
}

func (m *Manager) Describe(ctx context.Context) Snapshot {
	syncStorage := m.byName[NameSyncStorage]
	autoRenew := m.byName[NameAutoRenew]

	snap := Snapshot{
		SyncStorageCanStart:         syncStorage.CanStart(),
		SyncStorageIsStarted:        syncStorage.IsStarted(),
		AutoRenewCanStart:           autoRenew.CanStart(),
		AutoRenewIsStarted:          autoRenew.IsStarted(),
		AutoRenewRequiresLeadership: autoRenew.RequiresLeadership(),
	}

	if m.isStarted(NameLeaderElection) {
		isLeader := m.elector.IsLeader()
		snap.LeaderElectionIsLeader = &isLeader
		if has, err := m.elector.HasLeader(ctx); err == nil {
			snap.LeaderElectionHasLeader = &has
		}
		snap.LeaderElectionType = m.elector.Type()
	}
	return snap
}
