package oidc

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"golang.org/x/oauth2"
)

// accessToken wraps the access token. Claims are decoded without
// verification and only when the issuer hands out JWT access tokens; they
// are for display, never for authorization.
func accessToken(token *oauth2.Token, scopes []string) *auth.Token {
	t := &auth.Token{
		Value:     token.AccessToken,
		TokenType: token.Type(),
		ExpiresAt: token.Expiry,
		Scopes:    scopes,
	}

	claims, ok := unverifiedClaims(token.AccessToken)
	if !ok {
		return t
	}
	t.Claims = claims

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t.IssuedAt = iat.Time
	}
	if t.ExpiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			t.ExpiresAt = exp.Time
		}
	}
	return t
}

func unverifiedClaims(raw string) (jwt.MapClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func unixTime(v any) time.Time {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0)
	case int64:
		return time.Unix(n, 0)
	}
	return time.Time{}
}
