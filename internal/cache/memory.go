package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryCache is a process-local Cache. Entries past their TTL are invisible
// immediately and swept once a minute.
type MemoryCache struct {
	data  map[string]*cacheItem
	mu    sync.RWMutex
	clock clockwork.Clock

	stopCh    chan struct{}
	closeOnce sync.Once
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

type MemoryOption func(*MemoryCache)

// WithClock swaps the clock used for TTL bookkeeping.
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(mc *MemoryCache) { mc.clock = clock }
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		data:   make(map[string]*cacheItem),
		clock:  clockwork.NewRealClock(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mc)
	}

	go mc.cleanupExpired()

	return mc
}

func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, ok := mc.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(item.value), nil
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.put(key, value, ttl)
	return nil
}

func (mc *MemoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.live(key); ok {
		return false, nil
	}
	mc.put(key, value, ttl)
	return true, nil
}

func (mc *MemoryCache) Extend(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.live(key)
	if !ok || !bytes.Equal(item.value, value) {
		return false, nil
	}
	mc.put(key, value, ttl)
	return true, nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	_, ok := mc.live(key)
	return ok, nil
}

func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stopCh) })
	return nil
}

// live must be called with mu held.
func (mc *MemoryCache) live(key string) (*cacheItem, bool) {
	item, exists := mc.data[key]
	if !exists || !mc.clock.Now().Before(item.expiresAt) {
		return nil, false
	}
	return item, true
}

// put must be called with mu held for writing.
func (mc *MemoryCache) put(key string, value []byte, ttl time.Duration) {
	mc.data[key] = &cacheItem{
		value:     cloneBytes(value),
		expiresAt: mc.clock.Now().Add(ttl),
	}
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := mc.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			mc.cleanup()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) cleanup() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.clock.Now()
	for key, item := range mc.data {
		if !now.Before(item.expiresAt) {
			delete(mc.data, key)
		}
	}
}

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
