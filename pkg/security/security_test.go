package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCookie(t *testing.T) {
	cfg := config.ServerConfig{
		CookieName:     "session-demo",
		CookieHTTPOnly: true,
		CookieSameSite: "Strict",
		SessionTTL:     time.Hour,
	}

	id := NewSessionID()
	cookie := CreateSessionCookie(cfg, id)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	got, ok := SessionID(req, "session-demo")
	require.True(t, ok)
	assert.Equal(t, id, got)

	assert.Equal(t, -1, ClearSessionCookie(cfg).MaxAge)
}

func TestSessionID_RejectsForeignValues(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "session-demo", Value: "../../etc"})
	_, ok := SessionID(req, "session-demo")
	assert.False(t, ok)

	_, ok = SessionID(httptest.NewRequest("GET", "/", nil), "session-demo")
	assert.False(t, ok)
}

func TestCSRFTokens(t *testing.T) {
	a, err := GenerateCSRFToken()
	require.NoError(t, err)
	b, err := GenerateCSRFToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.True(t, TokensEqual(a, a))
	assert.False(t, TokensEqual(a, b))
}
