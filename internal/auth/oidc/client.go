package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/marcogenualdo/session-demo/internal/auth"
	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/config"
	"golang.org/x/oauth2"
)

const loginStateTTL = 5 * time.Minute

// endpoints are discovery fields go-oidc does not expose directly.
type endpoints struct {
	Introspection string `json:"introspection_endpoint"`
	Revocation    string `json:"revocation_endpoint"`
	EndSession    string `json:"end_session_endpoint"`
	UserInfo      string `json:"userinfo_endpoint"`
}

// Client talks to a single OpenID Connect issuer on behalf of the demo app.
type Client struct {
	cfg          config.OIDCConfig
	cache        cache.Cache
	httpClient   *http.Client
	redirectPath string

	provider     *oidc.Provider
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
	endpoints    endpoints
}

type Option func(*Client)

// WithHTTPClient sets the client used for every call to the issuer.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(ctx context.Context, cfg config.OIDCConfig, c cache.Cache, opts ...Option) (*Client, error) {
	client := &Client{
		cfg:        cfg,
		cache:      c,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}

	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	client.redirectPath = redirect.Path
	if client.redirectPath == "" {
		client.redirectPath = "/"
	}

	provider, err := oidc.NewProvider(client.clientContext(ctx), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	if err := provider.Claims(&client.endpoints); err != nil {
		return nil, fmt.Errorf("failed to read discovery document: %w", err)
	}

	client.provider = provider
	client.oauth2Config = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	}
	client.verifier = provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	return client, nil
}

func (c *Client) Issuer() string {
	return c.cfg.Issuer
}

// clientContext makes go-oidc and oauth2 use the configured HTTP client.
func (c *Client) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.httpClient)
}

func (c *Client) IsLoginRedirect(req *http.Request) bool {
	if req.URL.Path != c.redirectPath {
		return false
	}
	q := req.URL.Query()
	if !q.Has("state") {
		return false
	}
	return q.Has("code") || q.Has("interaction_code") || q.Has("error")
}

func (c *Client) AuthorizeRedirect(ctx context.Context, scopes []string) (*auth.AuthRedirect, error) {
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.New().String()

	conf := c.oauth2Config
	conf.Scopes = scopes

	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	return &auth.AuthRedirect{
		URL:      authURL,
		CacheKey: auth.LoginStateKey(state),
		CacheData: &auth.LoginState{
			State:        state,
			CodeVerifier: verifier,
			RedirectURL:  conf.RedirectURL,
			Scopes:       scopes,
			CreatedAt:    time.Now(),
		},
		CacheTTL: loginStateTTL,
	}, nil
}

func (c *Client) HandleRedirect(ctx context.Context, req *http.Request) (*auth.TokenSet, error) {
	if !c.IsLoginRedirect(req) {
		return nil, auth.ErrNotLoginRedirect
	}

	q := req.URL.Query()
	state := q.Get("state")

	var loginState auth.LoginState
	if err := cache.GetJSON(ctx, c.cache, auth.LoginStateKey(state), &loginState); err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidState, err)
	}
	c.cache.Delete(ctx, auth.LoginStateKey(state))

	if errCode := q.Get("error"); errCode != "" {
		return nil, &auth.OAuthError{Code: errCode, Description: q.Get("error_description")}
	}

	code := q.Get("code")
	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(loginState.CodeVerifier)}
	if code == "" && q.Has("interaction_code") {
		if !c.cfg.UseInteractionCodeFlow {
			return nil, fmt.Errorf("interaction code redirect: %w", auth.ErrNotSupported)
		}
		code = q.Get("interaction_code")
		opts = append(opts,
			oauth2.SetAuthURLParam("grant_type", "interaction_code"),
			oauth2.SetAuthURLParam("interaction_code", code),
		)
	}
	if code == "" {
		return nil, fmt.Errorf("missing code parameter")
	}

	conf := c.oauth2Config
	conf.RedirectURL = loginState.RedirectURL
	conf.Scopes = loginState.Scopes

	token, err := conf.Exchange(c.clientContext(ctx), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", translateError(err))
	}

	return c.tokenSet(ctx, token, loginState.Scopes, true)
}

func (c *Client) Renew(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	if refreshToken == "" {
		return nil, auth.ErrNoRefreshToken
	}

	tokenSource := c.oauth2Config.TokenSource(c.clientContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
	})

	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", translateError(err))
	}

	if newToken.RefreshToken == "" {
		newToken.RefreshToken = refreshToken
	}

	return c.tokenSet(ctx, newToken, c.cfg.Scopes, false)
}

// tokenSet converts an oauth2 token response, verifying any ID token in it.
func (c *Client) tokenSet(ctx context.Context, token *oauth2.Token, scopes []string, requireIDToken bool) (*auth.TokenSet, error) {
	if granted, ok := token.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}

	set := &auth.TokenSet{
		AccessToken: accessToken(token, scopes),
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	switch {
	case ok && rawIDToken != "":
		idToken, err := c.verifier.Verify(c.clientContext(ctx), rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("failed to verify ID token: %w", err)
		}

		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to parse claims: %w", err)
		}

		set.IDToken = &auth.Token{
			Value:     rawIDToken,
			ExpiresAt: idToken.Expiry,
			IssuedAt:  idToken.IssuedAt,
			Scopes:    scopes,
			Claims:    claims,
		}
	case requireIDToken:
		return nil, fmt.Errorf("no id_token in token response")
	}

	if token.RefreshToken != "" {
		set.RefreshToken = &auth.Token{
			Value:  token.RefreshToken,
			Scopes: scopes,
		}
	}

	return set, nil
}

func translateError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
		return &auth.OAuthError{
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
	}
	return err
}
