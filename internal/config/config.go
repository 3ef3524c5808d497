package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	OIDC    OIDCConfig    `yaml:"oidc"`
	Logging LoggingConfig `yaml:"logging"`
	UI      UIConfig      `yaml:"ui"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`
	CookieName     string        `yaml:"cookie_name"`
	CookieDomain   string        `yaml:"cookie_domain"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	CookieHTTPOnly bool          `yaml:"cookie_http_only"`
	CookieSameSite string        `yaml:"cookie_same_site"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
}

type CacheConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// OIDCConfig is the static client configuration handed to the auth client.
type OIDCConfig struct {
	Issuer                 string         `yaml:"issuer"`
	ClientID               string         `yaml:"client_id"`
	ClientSecret           string         `yaml:"client_secret"`
	RedirectURI            string         `yaml:"redirect_uri"`
	PostLogoutRedirectURI  string         `yaml:"post_logout_redirect_uri"`
	Scopes                 []string       `yaml:"scopes"`
	UseInteractionCodeFlow bool           `yaml:"use_interaction_code_flow"`
	ExpireEarlySeconds     int            `yaml:"expire_early_seconds"`
	Services               ServicesConfig `yaml:"services"`
}

type ServicesConfig struct {
	AutoRenew   *bool `yaml:"auto_renew"`
	AutoRemove  *bool `yaml:"auto_remove"`
	SyncStorage *bool `yaml:"sync_storage"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type UIConfig struct {
	Title                string        `yaml:"title"`
	RefreshCountdown     time.Duration `yaml:"refresh_countdown"`
	IdleThreshold        time.Duration `yaml:"idle_threshold"`
	SessionCheckInterval time.Duration `yaml:"session_check_interval"`
	ActivityThrottle     time.Duration `yaml:"activity_throttle"`
	DebugLogLines        int           `yaml:"debug_log_lines"`
	GradientStart        string        `yaml:"gradient_start"`
	GradientEnd          string        `yaml:"gradient_end"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document and applies defaults and environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := cfg.loadSecretsFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = "session-demo"
	}
	if !c.Server.CookieHTTPOnly {
		c.Server.CookieHTTPOnly = true
	}
	if c.Server.CookieSameSite == "" {
		c.Server.CookieSameSite = "lax"
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = 24 * time.Hour
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = 10
		}
		if c.Cache.Redis.MaxRetries == 0 {
			c.Cache.Redis.MaxRetries = 3
		}
	}

	if c.OIDC.RedirectURI == "" {
		c.OIDC.RedirectURI = c.Server.BaseURL + "/"
	}
	if c.OIDC.PostLogoutRedirectURI == "" {
		c.OIDC.PostLogoutRedirectURI = c.Server.BaseURL + "/"
	}
	if len(c.OIDC.Scopes) == 0 {
		c.OIDC.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if c.OIDC.ExpireEarlySeconds == 0 {
		c.OIDC.ExpireEarlySeconds = 30
	}
	setBool(&c.OIDC.Services.AutoRenew, true)
	setBool(&c.OIDC.Services.AutoRemove, true)
	setBool(&c.OIDC.Services.SyncStorage, c.Cache.Type == "redis")

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.UI.Title == "" {
		c.UI.Title = "OIDC Session Demo"
	}
	if c.UI.RefreshCountdown == 0 {
		c.UI.RefreshCountdown = 5 * time.Minute
	}
	if c.UI.IdleThreshold == 0 {
		c.UI.IdleThreshold = 2 * time.Minute
	}
	if c.UI.SessionCheckInterval == 0 {
		c.UI.SessionCheckInterval = 5 * time.Minute
	}
	if c.UI.ActivityThrottle == 0 {
		c.UI.ActivityThrottle = 500 * time.Millisecond
	}
	if c.UI.DebugLogLines == 0 {
		c.UI.DebugLogLines = 500
	}
	if c.UI.GradientStart == "" {
		c.UI.GradientStart = "#667eea"
	}
	if c.UI.GradientEnd == "" {
		c.UI.GradientEnd = "#764ba2"
	}

	return nil
}

func setBool(field **bool, def bool) {
	if *field == nil {
		v := def
		*field = &v
	}
}

func (c *Config) loadSecretsFromEnv() error {
	if envClientID := os.Getenv("OIDC_CLIENT_ID"); envClientID != "" {
		c.OIDC.ClientID = envClientID
	}
	if envClientSecret := os.Getenv("OIDC_CLIENT_SECRET"); envClientSecret != "" {
		c.OIDC.ClientSecret = envClientSecret
	}

	if c.Cache.Type == "redis" && c.Cache.Redis != nil {
		if envPassword := os.Getenv("REDIS_PASSWORD"); envPassword != "" {
			c.Cache.Redis.Password = envPassword
		}
	}

	return nil
}

func (s ServicesConfig) AutoRenewEnabled() bool   { return s.AutoRenew != nil && *s.AutoRenew }
func (s ServicesConfig) AutoRemoveEnabled() bool  { return s.AutoRemove != nil && *s.AutoRemove }
func (s ServicesConfig) SyncStorageEnabled() bool { return s.SyncStorage != nil && *s.SyncStorage }

// ExpireEarly is the window before a token's expiry in which it is treated as expired.
func (o OIDCConfig) ExpireEarly() time.Duration {
	return time.Duration(o.ExpireEarlySeconds) * time.Second
}
