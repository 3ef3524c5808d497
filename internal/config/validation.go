package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateCache(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.validateOIDC(); err != nil {
		return fmt.Errorf("oidc config: %w", err)
	}

	if err := c.validateUI(); err != nil {
		return fmt.Errorf("ui config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if err := validateAbsoluteURL(c.Server.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	sameSite := strings.ToLower(c.Server.CookieSameSite)
	if sameSite != "lax" && sameSite != "strict" && sameSite != "none" {
		return fmt.Errorf("invalid cookie_same_site: %s (must be lax, strict, or none)", c.Server.CookieSameSite)
	}

	if c.Server.SessionTTL < time.Minute {
		return fmt.Errorf("session_ttl must be at least 1 minute")
	}

	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" {
		if c.Cache.Redis == nil {
			return fmt.Errorf("redis config is required when type is redis")
		}
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	if c.OIDC.Services.SyncStorageEnabled() && c.Cache.Type != "redis" {
		return fmt.Errorf("services.sync_storage requires the redis cache")
	}

	return nil
}

func (c *Config) validateOIDC() error {
	if c.OIDC.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	if err := validateAbsoluteURL(c.OIDC.Issuer); err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	if c.OIDC.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	if err := validateAbsoluteURL(c.OIDC.RedirectURI); err != nil {
		return fmt.Errorf("invalid redirect_uri: %w", err)
	}

	if err := validateAbsoluteURL(c.OIDC.PostLogoutRedirectURI); err != nil {
		return fmt.Errorf("invalid post_logout_redirect_uri: %w", err)
	}

	if !slices.Contains(c.OIDC.Scopes, "openid") {
		return fmt.Errorf("'openid' scope is required")
	}

	if c.OIDC.ExpireEarlySeconds < 0 {
		return fmt.Errorf("expire_early_seconds must not be negative")
	}

	return nil
}

func (c *Config) validateUI() error {
	if c.UI.RefreshCountdown < time.Second {
		return fmt.Errorf("refresh_countdown must be at least 1 second")
	}
	if c.UI.IdleThreshold < time.Second {
		return fmt.Errorf("idle_threshold must be at least 1 second")
	}
	if c.UI.SessionCheckInterval <= 0 {
		return fmt.Errorf("session_check_interval must be positive")
	}
	if c.UI.ActivityThrottle <= 0 {
		return fmt.Errorf("activity_throttle must be positive")
	}
	if c.UI.DebugLogLines < 1 {
		return fmt.Errorf("debug_log_lines must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
