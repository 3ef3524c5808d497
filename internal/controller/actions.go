package controller

import (
	"context"

	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/cache"
)

// SignIn starts the authorization code flow and returns the issuer URL the
// browser must visit.
func (c *Controller) SignIn(ctx context.Context) (string, error) {
	c.debug("Clicked Sign In")

	redirect, err := c.client.AuthorizeRedirect(ctx, c.cfg.OIDC.Scopes)
	if err != nil {
		c.fail("signInWithRedirect error", err)
		return "", err
	}
	if err := cache.SetJSON(ctx, c.store, redirect.CacheKey, redirect.CacheData, redirect.CacheTTL); err != nil {
		c.fail("failed to store login state", err)
		return "", err
	}
	return redirect.URL, nil
}

// SignOut clears local tokens and returns where the browser goes next: the
// issuer's logout endpoint, or the post logout URI when there is none.
func (c *Controller) SignOut(ctx context.Context) string {
	c.debug("Clicked Sign Out")

	idToken, err := c.tokens.Get(ctx, auth.IDTokenKey)
	if err != nil {
		c.debug("failed to read id token", err)
	}

	target, err := c.client.SignOutURL(idToken, c.cfg.OIDC.PostLogoutRedirectURI)
	if err != nil {
		c.fail("signOut error", err)
		target = c.cfg.OIDC.PostLogoutRedirectURI
	}

	if err := c.tokens.Clear(ctx); err != nil {
		c.fail("failed to clear tokens", err)
	}
	c.showSignedOut()

	c.mu.Lock()
	c.sessionExpires = nil
	c.mu.Unlock()

	return target
}

func (c *Controller) RefreshTokens(ctx context.Context) error {
	c.debug("Clicked Refresh tokens")

	token, err := c.tokens.Renew(ctx, auth.AccessTokenKey)
	if err != nil {
		c.fail("Manual Token refresh error!", err)
		return err
	}

	c.mu.Lock()
	c.view.expire = formatDateTime(token.ExpiresAt)
	c.mu.Unlock()

	c.debug("Manual Token refresh succeeded")
	return nil
}

func (c *Controller) ClearTokens(ctx context.Context) error {
	c.debug("Clicked Clear all tokens")

	if err := c.tokens.Clear(ctx); err != nil {
		c.fail("failed to clear tokens", err)
		return err
	}
	return nil
}

// CloseSession ends the issuer session and re-reads its status.
func (c *Controller) CloseSession(ctx context.Context) error {
	c.debug("Clicked Close Session")

	set, err := c.tokens.GetTokens(ctx)
	if err == nil {
		err = c.client.CloseSession(ctx, set)
	}
	if err != nil {
		c.fail("closeSession error", err)
		return err
	}

	c.debug("Session closed")
	c.CheckSession(ctx)
	return nil
}

// ShowTokens captures the current tokens for the token viewer.
func (c *Controller) ShowTokens(ctx context.Context) error {
	c.debug("Click Show Tokens")

	set, err := c.tokens.GetTokens(ctx)
	if err != nil {
		c.fail("failed to read tokens", err)
		return err
	}
	views := tokenViews(set)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.showTokens = true
	c.view.tokens = views
	return nil
}

func (c *Controller) HideTokens() {
	c.debug("Hide Tokens")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.showTokens = false
	c.view.tokens = nil
}

// ShowLog opens the debug panel and dumps the background service state.
func (c *Controller) ShowLog(ctx context.Context) {
	c.debug("Show debug log")
	c.debug("debugServices", c.services.Describe(ctx))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.showLog = true
}

func (c *Controller) HideLog() {
	c.debug("Hide debug log")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.showLog = false
}

// DismissError clears the page's error box.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.errText = ""
}
