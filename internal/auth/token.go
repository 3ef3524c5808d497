package auth

import (
	"slices"
	"time"
)

type TokenKey string

const (
	AccessTokenKey  TokenKey = "accessToken"
	IDTokenKey      TokenKey = "idToken"
	RefreshTokenKey TokenKey = "refreshToken"
)

// TokenKeys lists keys in display order.
var TokenKeys = []TokenKey{AccessTokenKey, IDTokenKey, RefreshTokenKey}

type Token struct {
	Value     string         `json:"value"`
	TokenType string         `json:"tokenType,omitempty"`
	ExpiresAt time.Time      `json:"expiresAt,omitempty"`
	IssuedAt  time.Time      `json:"issuedAt,omitempty"`
	Scopes    []string       `json:"scopes,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
}

// Expired reports whether t is inside the early-expiry window at now.
// Tokens without an expiry never expire.
func (t *Token) Expired(now time.Time, early time.Duration) bool {
	if t == nil {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt.Add(-early))
}

// Claim returns a string claim or "".
func (t *Token) Claim(name string) string {
	if t == nil {
		return ""
	}
	s, _ := t.Claims[name].(string)
	return s
}

type TokenSet struct {
	AccessToken  *Token `json:"accessToken,omitempty"`
	IDToken      *Token `json:"idToken,omitempty"`
	RefreshToken *Token `json:"refreshToken,omitempty"`
}

func (ts *TokenSet) Get(key TokenKey) *Token {
	if ts == nil {
		return nil
	}
	switch key {
	case AccessTokenKey:
		return ts.AccessToken
	case IDTokenKey:
		return ts.IDToken
	case RefreshTokenKey:
		return ts.RefreshToken
	}
	return nil
}

func (ts *TokenSet) Set(key TokenKey, token *Token) {
	switch key {
	case AccessTokenKey:
		ts.AccessToken = token
	case IDTokenKey:
		ts.IDToken = token
	case RefreshTokenKey:
		ts.RefreshToken = token
	}
}

// Keys returns the keys holding a token, in display order.
func (ts *TokenSet) Keys() []TokenKey {
	var keys []TokenKey
	for _, k := range TokenKeys {
		if ts.Get(k) != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

func (ts *TokenSet) Empty() bool {
	return len(ts.Keys()) == 0
}

func (t *Token) HasScope(scope string) bool {
	return t != nil && slices.Contains(t.Scopes, scope)
}
