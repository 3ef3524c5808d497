package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T) (*cache.MemoryCache, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	mc := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { mc.Close() })
	return mc, clock
}

func TestMemoryCache_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	mc, clock := newMemory(t)

	_, err := mc.Get(ctx, "missing")
	require.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	got[0] = 'x'
	again, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), again, "stored value must not alias returned slice")

	clock.Advance(time.Minute)
	_, err = mc.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrNotFound)

	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_SetNX(t *testing.T) {
	ctx := context.Background()
	mc, clock := newMemory(t)

	ok, err := mc.SetNX(ctx, "leader", []byte("a"), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mc.SetNX(ctx, "leader", []byte("b"), 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(11 * time.Second)
	ok, err = mc.SetNX(ctx, "leader", []byte("b"), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mc.Get(ctx, "leader")
	require.NoError(t, err)
	require.Equal(t, []byte("b"), got)
}

func TestMemoryCache_Extend(t *testing.T) {
	ctx := context.Background()
	mc, clock := newMemory(t)

	ok, err := mc.Extend(ctx, "leader", []byte("a"), 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok, "missing key is not extended")

	require.NoError(t, mc.Set(ctx, "leader", []byte("a"), 10*time.Second))
	clock.Advance(8 * time.Second)

	ok, err = mc.Extend(ctx, "leader", []byte("b"), 10*time.Second)
	require.NoError(t, err)
	require.False(t, ok, "other holder is not extended")

	ok, err = mc.Extend(ctx, "leader", []byte("a"), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(8 * time.Second)
	got, err := mc.Get(ctx, "leader")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), got)
}

func TestMemoryCache_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	mc, _ := newMemory(t)

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, mc.Delete(ctx, "k"))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mc.Close())
	require.NoError(t, mc.Close())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	mc, _ := newMemory(t)

	type payload struct {
		Name string `json:"name"`
	}

	require.NoError(t, cache.SetJSON(ctx, mc, "p", payload{Name: "ada"}, time.Minute))

	var got payload
	require.NoError(t, cache.GetJSON(ctx, mc, "p", &got))
	require.Equal(t, "ada", got.Name)

	require.NoError(t, mc.Set(ctx, "bad", []byte("{"), time.Minute))
	err := cache.GetJSON(ctx, mc, "bad", &got)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal bad")
}

func TestNew(t *testing.T) {
	c, err := cache.New(config.CacheConfig{Type: "memory"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = cache.New(config.CacheConfig{Type: "redis"})
	require.Error(t, err)

	_, err = cache.New(config.CacheConfig{Type: "etcd"})
	require.Error(t, err)
}
