// Package controller holds the per-browser-session UI controller. It reacts
// to page loads, user actions and token events, and keeps the view model the
// status page renders.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/auth/state"
	"github.com/marcogenualdo/session-demo/internal/auth/tokens"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/marcogenualdo/session-demo/internal/services"
	"github.com/marcogenualdo/session-demo/internal/throttle"
	"github.com/marcogenualdo/session-demo/internal/timer"
)

// Services is the background service manager of one session.
type Services interface {
	Start(ctx context.Context)
	Stop()
	Restart(ctx context.Context)
	Describe(ctx context.Context) services.Snapshot
}

type Deps struct {
	Client    auth.Client
	Tokens    *tokens.Manager
	AuthState *state.Manager
	Services  Services
	// Store holds pending login state between SignIn and the redirect back.
	Store cache.Cache
}

type Options struct {
	Clock  clockwork.Clock
	Logger *slog.Logger
}

type Controller struct {
	id  string
	cfg *config.Config
	bg  context.Context

	client    auth.Client
	tokens    *tokens.Manager
	authState *state.Manager
	services  Services
	store     cache.Cache

	clock    clockwork.Clock
	logger   *slog.Logger
	debugLog *DebugLog

	refreshTimer *timer.Countdown
	idleTimer    *timer.CountUp
	activity     *throttle.Throttle[string]

	subscribeOnce sync.Once

	mu               sync.Mutex
	view             viewState
	sessionExpires   *time.Time
	sessionLastCheck time.Time
	unsubscribe      []func()
}

type viewState struct {
	authenticated  bool
	name           string
	email          string
	expire         string
	refreshCount   int
	sessionStatus  string
	sessionActive  bool
	sessionExpires string
	showTokens     bool
	tokens         []TokenView
	showLog        bool
	errText        string
}

// New builds the controller of browser session id. ctx is only used for
// values; work triggered by background token events never inherits its
// cancellation.
func New(ctx context.Context, id string, cfg *config.Config, deps Deps, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Controller{
		id:           id,
		cfg:          cfg,
		bg:           context.WithoutCancel(ctx),
		client:       deps.Client,
		tokens:       deps.Tokens,
		authState:    deps.AuthState,
		services:     deps.Services,
		store:        deps.Store,
		clock:        opts.Clock,
		logger:       opts.Logger.With("session", shortID(id)),
		debugLog:     NewDebugLog(cfg.UI.DebugLogLines),
		refreshTimer: timer.NewCountdown(cfg.UI.RefreshCountdown, opts.Clock),
		idleTimer:    timer.NewCountUp(opts.Clock),
	}
	c.activity = throttle.New(c.restartIdleTimer, cfg.UI.ActivityThrottle, opts.Clock)
	c.view.sessionStatus = string(auth.SessionInactive)

	c.unsubscribe = append(c.unsubscribe,
		c.tokens.On(tokens.EventRenewed, c.OnRenewed),
		c.tokens.On(tokens.EventExpired, c.onExpired),
		c.tokens.On(tokens.EventError, c.onTokenError),
	)
	return c
}

func (c *Controller) ID() string { return c.id }

// Load runs on every page load. It reports whether the request completed a
// login redirect, in which case the caller should send the browser back to a
// clean URL.
func (c *Controller) Load(ctx context.Context, r *http.Request) bool {
	c.debug("initSpaApp!")
	c.logConfig()
	c.subscribe()

	if c.client.IsLoginRedirect(r) {
		if c.handleLoginRedirect(ctx, r) {
			return true
		}
	} else {
		c.services.Start(c.bg)
	}

	c.activity.Call("page load")
	c.refreshTimer.Restart()
	c.CheckSession(ctx)
	c.services.Start(c.bg)
	c.authState.UpdateAuthState(ctx)
	return false
}

func (c *Controller) subscribe() {
	c.subscribeOnce.Do(func() {
		off := c.authState.Subscribe(c.OnAuthStateChange)
		c.authState.Attach(c.bg)

		c.mu.Lock()
		c.unsubscribe = append(c.unsubscribe, off, c.authState.Detach)
		c.mu.Unlock()
	})
}

func (c *Controller) handleLoginRedirect(ctx context.Context, r *http.Request) bool {
	c.debug("handleLoginRedirect")

	set, err := c.client.HandleRedirect(ctx, r)
	if err != nil {
		c.fail("handleLoginRedirect error", err)
		return false
	}
	if err := c.tokens.SetTokens(ctx, set); err != nil {
		c.fail("failed to store tokens", err)
		return false
	}

	c.debug("handleLoginRedirect succeeded")
	return true
}

// OnAuthStateChange switches the view between signed in and signed out.
func (c *Controller) OnAuthStateChange(st auth.AuthState) {
	c.debug(fmt.Sprintf("authStateManager Event! authState.isAuthenticated=%t", st.IsAuthenticated))

	if !st.IsAuthenticated {
		c.debug("NOT logged in!")
		c.showSignedOut()
		return
	}

	c.debug("Logged in!")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.authenticated = true
	c.view.expire = formatDateTime(st.AccessToken.ExpiresAt)
	c.view.name = st.IDToken.Claim("name")
	c.view.email = st.IDToken.Claim("email")
}

func (c *Controller) showSignedOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.authenticated = false
	c.view.name = ""
	c.view.email = ""
	c.view.expire = ""
	c.view.showTokens = false
	c.view.tokens = nil
}

// OnRenewed counts access token renewals; every other key is only logged.
func (c *Controller) OnRenewed(ch tokens.Change) {
	c.debug(fmt.Sprintf("Token with key %s has been renewed", ch.Key))
	if ch.Key != auth.AccessTokenKey || ch.NewToken == nil {
		return
	}

	c.mu.Lock()
	c.view.refreshCount++
	count := c.view.refreshCount
	c.view.expire = formatDateTime(ch.NewToken.ExpiresAt)
	c.mu.Unlock()

	c.refreshTimer.Restart()
	c.debug(fmt.Sprintf("Token refresh count is now %d", count))
}

func (c *Controller) onExpired(ch tokens.Change) {
	c.debug(fmt.Sprintf("Token with key %s has expired", ch.Key))
}

func (c *Controller) onTokenError(ch tokens.Change) {
	c.debug("TokenManager Error!", ch.Err)
	c.logger.Warn("token manager error", "error", ch.Err)
}

// Visibility handles the page becoming hidden or visible again.
func (c *Controller) Visibility(ctx context.Context, hidden bool) {
	c.debug("Event! visibilitychange")
	if hidden {
		c.debug("Visibility hidden")
		return
	}

	c.debug("Visibility restored, updating auth state and checking session")
	c.authState.UpdateAuthState(ctx)
	c.CheckIfSessionExistsOrExpired(ctx)
}

// PageShow handles a page shown from the back/forward cache.
func (c *Controller) PageShow(ctx context.Context, persisted bool) {
	c.debug(fmt.Sprintf("Event! pageshow persisted=%t", persisted))
	if persisted {
		c.Visibility(ctx, false)
	}
}

func (c *Controller) PageHide() {
	c.debug("Event! pagehide")
}

// Activity restarts the idle timer, at most once per throttle window. It
// reports whether the timer was restarted.
func (c *Controller) Activity(kind string) bool {
	return c.activity.Call(kind)
}

func (c *Controller) restartIdleTimer(kind string) {
	c.idleTimer.Restart()
	c.logger.Debug("idle timer restarted", "trigger", kind)
}

// Close stops background services and drops every subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	offs := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
	c.services.Stop()
	c.refreshTimer.Stop()
	c.idleTimer.Stop()
}

func (c *Controller) debug(msg string, details ...any) {
	c.debugLog.Add(c.clock.Now(), append([]any{msg}, details...)...)
	if len(details) > 0 {
		c.logger.Debug(msg, "details", details)
	} else {
		c.logger.Debug(msg)
	}
}

// fail logs err and shows it in the page's error box.
func (c *Controller) fail(msg string, err error) {
	c.debug(msg, err)
	c.logger.Warn(msg, "error", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.errText = err.Error()
}

func (c *Controller) logConfig() {
	oidc := c.cfg.OIDC
	c.debug("Config:", map[string]any{
		"issuer":                 oidc.Issuer,
		"clientId":               oidc.ClientID,
		"redirectUri":            oidc.RedirectURI,
		"postLogoutRedirectUri":  oidc.PostLogoutRedirectURI,
		"scopes":                 oidc.Scopes,
		"useInteractionCodeFlow": oidc.UseInteractionCodeFlow,
		"tokenManager": map[string]any{
			"expireEarlySeconds": oidc.ExpireEarlySeconds,
			"autoRenew":          oidc.Services.AutoRenewEnabled(),
			"autoRemove":         oidc.Services.AutoRemoveEnabled(),
			"syncStorage":        oidc.Services.SyncStorageEnabled(),
		},
	})
	c.debug("Tenant: " + tenant(oidc.Issuer))
}

// tenant is the scheme and host of the issuer.
func tenant(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return issuer
	}
	return u.Scheme + "://" + u.Host
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
