package tokens_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/auth/tokens"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/stretchr/testify/require"
)

type fakeRenewer struct {
	mu    sync.Mutex
	calls int
	err   error
	clock clockwork.Clock
}

func (f *fakeRenewer) Renew(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	exp := f.clock.Now().Add(time.Hour)
	return &auth.TokenSet{
		AccessToken: &auth.Token{Value: "at-renewed", ExpiresAt: exp},
		IDToken:     &auth.Token{Value: "id-renewed", ExpiresAt: exp},
	}, nil
}

// blockingRenewer parks inside the grant until release is closed.
type blockingRenewer struct {
	entered chan struct{}
	release chan struct{}
	clock   clockwork.Clock
}

func (b *blockingRenewer) Renew(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	close(b.entered)
	<-b.release
	exp := b.clock.Now().Add(time.Hour)
	return &auth.TokenSet{
		AccessToken: &auth.Token{Value: "at-renewed", ExpiresAt: exp},
		IDToken:     &auth.Token{Value: "id-renewed", ExpiresAt: exp},
	}, nil
}

type recorder struct {
	mu      sync.Mutex
	changes []tokens.Change
}

func (r *recorder) record(c tokens.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, string(c.Event)+":"+string(c.Key))
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}

func setup(t *testing.T) (*tokens.Manager, *fakeRenewer, *recorder, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	mc := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { mc.Close() })

	renewer := &fakeRenewer{clock: clock}
	m := tokens.NewManager(mc, "sid-1", renewer, tokens.Options{
		ExpireEarly: 30 * time.Second,
		TTL:         24 * time.Hour,
		Clock:       clock,
	})

	rec := &recorder{}
	for _, ev := range []tokens.Event{tokens.EventAdded, tokens.EventRemoved, tokens.EventRenewed, tokens.EventExpired, tokens.EventError} {
		m.On(ev, rec.record)
	}
	return m, renewer, rec, clock
}

func signedIn(clock clockwork.Clock) *auth.TokenSet {
	exp := clock.Now().Add(5 * time.Minute)
	return &auth.TokenSet{
		AccessToken:  &auth.Token{Value: "at-1", ExpiresAt: exp},
		IDToken:      &auth.Token{Value: "id-1", ExpiresAt: exp, Claims: map[string]any{"name": "Ada"}},
		RefreshToken: &auth.Token{Value: "rt-1"},
	}
}

func TestManager_SetGetClear(t *testing.T) {
	ctx := context.Background()
	m, _, rec, clock := setup(t)

	empty, err := m.GetTokens(ctx)
	require.NoError(t, err)
	require.True(t, empty.Empty())

	require.NoError(t, m.SetTokens(ctx, signedIn(clock)))
	require.Equal(t, []string{"added:accessToken", "added:idToken", "added:refreshToken"}, rec.events())

	id, err := m.Get(ctx, auth.IDTokenKey)
	require.NoError(t, err)
	require.Equal(t, "Ada", id.Claim("name"))

	rec.reset()
	require.NoError(t, m.Remove(ctx, auth.IDTokenKey))
	require.Equal(t, []string{"removed:idToken"}, rec.events())

	rec.reset()
	require.NoError(t, m.Clear(ctx))
	require.Equal(t, []string{"removed:accessToken", "removed:refreshToken"}, rec.events())

	got, err := m.Get(ctx, auth.AccessTokenKey)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestManager_Renew(t *testing.T) {
	ctx := context.Background()
	m, renewer, rec, clock := setup(t)
	require.NoError(t, m.SetTokens(ctx, signedIn(clock)))
	rec.reset()

	token, err := m.Renew(ctx, auth.AccessTokenKey)
	require.NoError(t, err)
	require.Equal(t, "at-renewed", token.Value)
	require.Equal(t, 1, renewer.calls)
	require.Equal(t, []string{"renewed:accessToken", "renewed:idToken"}, rec.events())

	rec.mu.Lock()
	first := rec.changes[0]
	rec.mu.Unlock()
	require.Equal(t, "at-1", first.OldToken.Value)
	require.Equal(t, "at-renewed", first.NewToken.Value)

	set, err := m.GetTokens(ctx)
	require.NoError(t, err)
	require.Equal(t, "rt-1", set.RefreshToken.Value, "refresh token survives when not rotated")
}

func TestManager_RenewErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no token", func(t *testing.T) {
		m, _, rec, _ := setup(t)
		_, err := m.Renew(ctx, auth.AccessTokenKey)
		require.ErrorIs(t, err, auth.ErrNoToken)
		require.Equal(t, []string{"error:"}, rec.events())
	})

	t.Run("no refresh token", func(t *testing.T) {
		m, _, rec, clock := setup(t)
		set := signedIn(clock)
		set.RefreshToken = nil
		require.NoError(t, m.SetTokens(ctx, set))
		rec.reset()

		_, err := m.Renew(ctx, auth.AccessTokenKey)
		require.ErrorIs(t, err, auth.ErrNoRefreshToken)
		require.Equal(t, []string{"error:"}, rec.events())
	})

	t.Run("issuer failure", func(t *testing.T) {
		m, renewer, rec, clock := setup(t)
		require.NoError(t, m.SetTokens(ctx, signedIn(clock)))
		rec.reset()
		renewer.err = errors.New("boom")

		_, err := m.Renew(ctx, auth.AccessTokenKey)
		require.ErrorContains(t, err, "boom")
		require.Equal(t, []string{"error:"}, rec.events())

		set, err := m.GetTokens(ctx)
		require.NoError(t, err)
		require.Equal(t, "at-1", set.AccessToken.Value)
	})
}

func TestManager_RenewAfterClearIsDropped(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	mc := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { mc.Close() })

	renewer := &blockingRenewer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		clock:   clock,
	}
	m := tokens.NewManager(mc, "sid-1", renewer, tokens.Options{Clock: clock})
	require.NoError(t, m.SetTokens(ctx, signedIn(clock)))

	rec := &recorder{}
	m.On(tokens.EventRenewed, rec.record)
	m.On(tokens.EventError, rec.record)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Renew(ctx, auth.AccessTokenKey)
		errc <- err
	}()

	<-renewer.entered
	require.NoError(t, m.Clear(ctx))
	close(renewer.release)

	require.ErrorIs(t, <-errc, auth.ErrNoToken)
	require.Equal(t, []string{"error:"}, rec.events())

	set, err := m.GetTokens(ctx)
	require.NoError(t, err)
	require.True(t, set.Empty(), "cleared tokens stay cleared")
}

func TestManager_CheckExpirations(t *testing.T) {
	ctx := context.Background()
	m, _, rec, clock := setup(t)
	require.NoError(t, m.SetTokens(ctx, signedIn(clock)))
	rec.reset()

	fired, err := m.CheckExpirations(ctx)
	require.NoError(t, err)
	require.Empty(t, fired)

	// inside the 30s early window of a 5 minute token
	clock.Advance(4*time.Minute + 31*time.Second)
	fired, err = m.CheckExpirations(ctx)
	require.NoError(t, err)
	require.Equal(t, []auth.TokenKey{auth.AccessTokenKey, auth.IDTokenKey}, fired)

	fired, err = m.CheckExpirations(ctx)
	require.NoError(t, err)
	require.Empty(t, fired, "expired fires once per token")

	require.Equal(t, []string{"expired:accessToken", "expired:idToken"}, rec.events())

	_, err = m.Renew(ctx, auth.AccessTokenKey)
	require.NoError(t, err)
	fired, err = m.CheckExpirations(ctx)
	require.NoError(t, err)
	require.Empty(t, fired)
}

func TestManager_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	m, _, _, clock := setup(t)

	count := 0
	off := m.On(tokens.EventAdded, func(tokens.Change) { count++ })
	require.NoError(t, m.Add(ctx, auth.AccessTokenKey, signedIn(clock).AccessToken))
	off()
	require.NoError(t, m.Add(ctx, auth.AccessTokenKey, signedIn(clock).AccessToken))
	require.Equal(t, 1, count)
}

func TestManager_SyncSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	shared := cache.NewMemoryCache(cache.WithClock(clock))
	t.Cleanup(func() { shared.Close() })

	here := tokens.NewManager(shared, "sid", nil, tokens.Options{Clock: clock})
	there := tokens.NewManager(shared, "sid", nil, tokens.Options{Clock: clock})

	rec := &recorder{}
	here.On(tokens.EventAdded, rec.record)
	here.On(tokens.EventRemoved, rec.record)

	require.NoError(t, here.Sync(ctx))
	require.Empty(t, rec.events())

	require.NoError(t, there.SetTokens(ctx, signedIn(clock)))
	require.NoError(t, here.Sync(ctx))
	require.Equal(t, []string{"added:accessToken", "added:idToken", "added:refreshToken"}, rec.events())

	rec.reset()
	require.NoError(t, here.Sync(ctx))
	require.Empty(t, rec.events(), "unchanged storage emits nothing")

	require.NoError(t, there.Remove(ctx, auth.IDTokenKey))
	require.NoError(t, here.Sync(ctx))
	require.Equal(t, []string{"removed:idToken"}, rec.events())
}
