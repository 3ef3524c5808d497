package oidc_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "demo-client"
	testKeyID    = "test-key"
	goodCode     = "good-code"
)

// fakeIssuer is a minimal OpenID Connect provider served from httptest.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu           sync.Mutex
	challenge    string
	refreshCount int
	revoked      map[string]bool
	noIntrospect bool
	noEndSession bool
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{t: t, key: key, revoked: make(map[string]bool)}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/keys", f.keys)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/introspect", f.introspect)
	mux.HandleFunc("/revoke", f.revoke)
	mux.HandleFunc("/userinfo", f.userinfo)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) URL() string { return f.server.URL }

func (f *fakeIssuer) expectChallenge(challenge string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenge = challenge
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"issuer":                                f.URL(),
		"authorization_endpoint":                f.URL() + "/authorize",
		"token_endpoint":                        f.URL() + "/token",
		"jwks_uri":                              f.URL() + "/keys",
		"userinfo_endpoint":                     f.URL() + "/userinfo",
		"revocation_endpoint":                   f.URL() + "/revoke",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	if !f.noIntrospect {
		doc["introspection_endpoint"] = f.URL() + "/introspect"
	}
	if !f.noEndSession {
		doc["end_session_endpoint"] = f.URL() + "/logout"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (f *fakeIssuer) keys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &f.key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: "RS256",
		Use:       "sig",
	}}})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	defer f.mu.Unlock()

	switch grant := r.PostForm.Get("grant_type"); grant {
	case "authorization_code", "interaction_code":
		code := r.PostForm.Get("code")
		if grant == "interaction_code" {
			code = r.PostForm.Get("interaction_code")
		}
		if code != goodCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != f.challenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "PKCE mismatch"})
			return
		}
		f.issue(w, "rt-1")
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		if f.revoked[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "refresh token revoked"})
			return
		}
		f.refreshCount++
		f.issue(w, "")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

// issue must be called with mu held.
func (f *fakeIssuer) issue(w http.ResponseWriter, refreshToken string) {
	now := time.Now()
	access := f.sign(jwt.MapClaims{
		"iss": f.URL(),
		"sub": "user-1",
		"aud": "api://default",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"jti": fmt.Sprintf("at-%d", f.refreshCount),
	})
	id := f.sign(jwt.MapClaims{
		"iss":   f.URL(),
		"sub":   "user-1",
		"aud":   testClientID,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"name":  "Ada Lovelace",
		"email": "ada@example.com",
	})

	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     id,
		"scope":        "openid profile email offline_access",
	}
	if refreshToken != "" {
		resp["refresh_token"] = refreshToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeIssuer) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(f.key)
	require.NoError(f.t, err)
	return signed
}

func (f *fakeIssuer) introspect(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.revoked[r.PostForm.Get("token")] {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"active": true,
		"sub":    "user-1",
		"iat":    now.Add(-time.Minute).Unix(),
		"exp":    now.Add(2 * time.Hour).Unix(),
	})
}

func (f *fakeIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	f.mu.Lock()
	defer f.mu.Unlock()

	f.revoked[r.PostForm.Get("token")] = true
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIssuer) userinfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":   "user-1",
		"name":  "Ada Lovelace",
		"email": "ada@example.com",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
