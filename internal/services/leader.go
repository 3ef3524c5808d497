package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcogenualdo/session-demo/internal/cache"
)

// LeaderElector decides which instance runs leadership-bound services for a
// browser session.
type LeaderElector interface {
	Type() string
	Campaign(ctx context.Context) (bool, error)
	IsLeader() bool
	HasLeader(ctx context.Context) (bool, error)
	Resign(ctx context.Context) error
}

// LocalElector is used when tokens are not shared; this instance always leads.
type LocalElector struct{}

func (LocalElector) Type() string                                { return "local" }
func (LocalElector) Campaign(ctx context.Context) (bool, error)  { return true, nil }
func (LocalElector) IsLeader() bool                              { return true }
func (LocalElector) HasLeader(ctx context.Context) (bool, error) { return true, nil }
func (LocalElector) Resign(ctx context.Context) error            { return nil }

// DefaultLease outlives a few missed renewals at the default LeaseRenewal.
const DefaultLease = 30 * time.Second

// CacheElector holds a lease in the shared cache. The lease is renewed by
// its holder on every campaign and lapses if the holder disappears.
type CacheElector struct {
	cache      cache.Cache
	key        string
	instanceID string
	lease      time.Duration

	mu     sync.Mutex
	leader bool
}

func NewCacheElector(c cache.Cache, sessionID, instanceID string, lease time.Duration) *CacheElector {
	return &CacheElector{
		cache:      c,
		key:        "leader:" + sessionID,
		instanceID: instanceID,
		lease:      lease,
	}
}

func (e *CacheElector) Type() string { return "cache-lease" }

func (e *CacheElector) Campaign(ctx context.Context) (bool, error) {
	won, err := e.cache.SetNX(ctx, e.key, []byte(e.instanceID), e.lease)
	if err != nil {
		e.setLeader(false)
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	if !won {
		won, err = e.cache.Extend(ctx, e.key, []byte(e.instanceID), e.lease)
		if err != nil {
			e.setLeader(false)
			return false, fmt.Errorf("failed to extend lease: %w", err)
		}
	}

	e.setLeader(won)
	return won, nil
}

func (e *CacheElector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader
}

func (e *CacheElector) HasLeader(ctx context.Context) (bool, error) {
	return e.cache.Exists(ctx, e.key)
}

func (e *CacheElector) Resign(ctx context.Context) error {
	if !e.IsLeader() {
		return nil
	}
	e.setLeader(false)

	holder, err := e.cache.Get(ctx, e.key)
	if err != nil || string(holder) != e.instanceID {
		return nil
	}
	return e.cache.Delete(ctx, e.key)
}

func (e *CacheElector) setLeader(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leader = v
}
