package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/auth/state"
	"github.com/marcogenualdo/session-demo/internal/auth/tokens"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/controller"
	"github.com/marcogenualdo/session-demo/internal/services"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetAndSweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { store.Close() })

	cfg := testConfig(t)
	client := &fakeClient{clock: clock}
	svc := map[string]*fakeServices{}

	factory := func(ctx context.Context, sid string) *controller.Controller {
		tm := tokens.NewManager(store, sid, client, tokens.Options{Clock: clock})
		svc[sid] = &fakeServices{}
		return controller.New(ctx, sid, cfg, controller.Deps{
			Client:    client,
			Tokens:    tm,
			AuthState: state.NewManager(tm),
			Services:  svc[sid],
			Store:     store,
		}, controller.Options{Clock: clock})
	}

	r := controller.NewRegistry(factory, 10*time.Minute, controller.Options{Clock: clock})
	t.Cleanup(r.Close)

	ctx := context.Background()
	a := r.Get(ctx, "a")
	require.Same(t, a, r.Get(ctx, "a"))
	r.Get(ctx, "b")
	require.Equal(t, 2, r.Len())

	clock.Advance(6 * time.Minute)
	r.Get(ctx, "a")
	clock.Advance(5 * time.Minute)

	// the background sweep may win the race, so only the outcome is checked
	r.Sweep()
	require.Eventually(t, func() bool { return svc["b"].stops() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, r.Len())
	require.Zero(t, svc["a"].stops())

	r.Close()
	require.Zero(t, r.Len())
	require.Equal(t, 1, svc["a"].stops())
}

func TestNewFactory_WiresServices(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { store.Close() })

	cfg := testConfig(t)
	var electedFor string
	factory := controller.NewFactory(cfg, &fakeClient{clock: clock}, store, func(sid string) services.LeaderElector {
		electedFor = sid
		return services.LocalElector{}
	}, controller.Options{Clock: clock})

	c := factory(context.Background(), "sid-9")
	t.Cleanup(c.Close)
	require.Equal(t, "sid-9", c.ID())
	require.Equal(t, "sid-9", electedFor)

	c.ShowLog(context.Background())
	require.Contains(t, c.View().DebugLog[len(c.View().DebugLog)-1], `"autoRenew_CanStart": true`)
}
