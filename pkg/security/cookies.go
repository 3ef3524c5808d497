package security

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/marcogenualdo/session-demo/internal/config"
)

// NewSessionID returns a fresh browser session id.
func NewSessionID() string {
	return uuid.NewString()
}

func sameSiteMode(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// CreateSessionCookie binds the browser to sessionID for cfg.SessionTTL.
func CreateSessionCookie(cfg config.ServerConfig, sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
		SameSite: sameSiteMode(cfg.CookieSameSite),
	}
}

func ClearSessionCookie(cfg config.ServerConfig) *http.Cookie {
	cookie := CreateSessionCookie(cfg, "")
	cookie.MaxAge = -1
	return cookie
}

// SessionID reads the session cookie. Values that are not ids we issued are
// ignored so a client cannot pick its own cache keys.
func SessionID(req *http.Request, cookieName string) (string, bool) {
	cookie, err := req.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
