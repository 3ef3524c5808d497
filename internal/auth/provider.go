package auth

import (
	"context"
	"net/http"
)

// Client is the surface of the identity provider used by the UI controller.
type Client interface {
	Issuer() string

	IsLoginRedirect(req *http.Request) bool
	AuthorizeRedirect(ctx context.Context, scopes []string) (*AuthRedirect, error)
	HandleRedirect(ctx context.Context, req *http.Request) (*TokenSet, error)

	Renew(ctx context.Context, refreshToken string) (*TokenSet, error)

	GetSession(ctx context.Context, tokens *TokenSet) (*SessionInfo, error)
	CloseSession(ctx context.Context, tokens *TokenSet) error

	SignOutURL(idToken *Token, postLogoutRedirectURI string) (string, error)
}
