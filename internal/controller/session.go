package controller

import (
	"context"
	"fmt"

	"github.com/marcogenualdo/session-demo/internal/auth"
)

const sessionFailed = "Failed to get session"

// CheckSession fetches the issuer session and caches its expiry.
func (c *Controller) CheckSession(ctx context.Context) {
	c.mu.Lock()
	c.sessionLastCheck = c.clock.Now()
	c.mu.Unlock()

	info, err := c.fetchSession(ctx)
	if err != nil {
		c.debug("checkSession error", err)
		c.logger.Warn("session check failed", "error", err)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.view.sessionStatus = sessionFailed
		c.view.sessionActive = false
		c.view.sessionExpires = ""
		c.view.errText = err.Error()
		return
	}

	c.debug("Session response", sessionDebug(info))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.sessionStatus = string(info.Status)
	c.view.sessionActive = info.Active()
	c.view.sessionExpires = ""
	c.sessionExpires = nil
	if info.Active() && !info.ExpiresAt.IsZero() {
		expires := info.ExpiresAt
		c.sessionExpires = &expires
		c.view.sessionExpires = formatDateTime(expires)
	}
}

func (c *Controller) fetchSession(ctx context.Context) (*auth.SessionInfo, error) {
	set, err := c.tokens.GetTokens(ctx)
	if err != nil {
		return nil, err
	}
	return c.client.GetSession(ctx, set)
}

// CheckIfSessionExistsOrExpired re-checks the session only when nothing is
// cached, the cached expiry has passed, or the last check is older than the
// session check interval. It reports whether a check ran.
func (c *Controller) CheckIfSessionExistsOrExpired(ctx context.Context) bool {
	c.debug("checking if session exists or expired")

	c.mu.Lock()
	expires, last := c.sessionExpires, c.sessionLastCheck
	c.mu.Unlock()

	now := c.clock.Now()
	switch {
	case expires == nil:
		c.debug("no cached session expiry, checking session")
	case !now.Before(*expires):
		c.debug("session expiry has passed, checking session")
	default:
		since := now.Sub(last)
		c.debug(fmt.Sprintf("last session check was %d seconds ago", int(since.Seconds())))
		if since < c.cfg.UI.SessionCheckInterval {
			c.debug("skipping session check")
			return false
		}
	}

	c.CheckSession(ctx)
	return true
}
