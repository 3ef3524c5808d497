package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/services"
	"github.com/stretchr/testify/require"
)

func TestCacheElector(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { store.Close() })

	a := services.NewCacheElector(store, "sid", "a", 30*time.Second)
	b := services.NewCacheElector(store, "sid", "b", 30*time.Second)

	has, err := a.HasLeader(ctx)
	require.NoError(t, err)
	require.False(t, has)

	won, err := a.Campaign(ctx)
	require.NoError(t, err)
	require.True(t, won)

	won, err = b.Campaign(ctx)
	require.NoError(t, err)
	require.False(t, won)
	require.False(t, b.IsLeader())

	clock.Advance(20 * time.Second)
	won, err = a.Campaign(ctx)
	require.NoError(t, err)
	require.True(t, won, "holder extends its lease")

	clock.Advance(20 * time.Second)
	won, err = b.Campaign(ctx)
	require.NoError(t, err)
	require.False(t, won, "extended lease still held")

	clock.Advance(31 * time.Second)
	won, err = b.Campaign(ctx)
	require.NoError(t, err)
	require.True(t, won, "lapsed lease can be taken over")

	require.NoError(t, a.Resign(ctx))
	has, err = b.HasLeader(ctx)
	require.NoError(t, err)
	require.True(t, has, "a stale holder must not delete someone else's lease")

	won, err = a.Campaign(ctx)
	require.NoError(t, err)
	require.False(t, won, "a stale holder must not extend someone else's lease")
	holder, err := store.Get(ctx, "leader:sid")
	require.NoError(t, err)
	require.Equal(t, []byte("b"), holder)
}

func TestLocalElector(t *testing.T) {
	var e services.LeaderElector = services.LocalElector{}
	won, err := e.Campaign(context.Background())
	require.NoError(t, err)
	require.True(t, won)
	require.True(t, e.IsLeader())
	require.Equal(t, "local", e.Type())
}
