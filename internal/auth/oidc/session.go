package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marcogenualdo/session-demo/internal/auth"
	"golang.org/x/oauth2"
)

// GetSession reports whether the issuer still considers the login session
// alive. With an introspection endpoint the refresh token (or the access
// token when there is none) is introspected; otherwise a successful userinfo
// call counts as an active session lasting until the access token expires.
func (c *Client) GetSession(ctx context.Context, tokens *auth.TokenSet) (*auth.SessionInfo, error) {
	inactive := &auth.SessionInfo{Status: auth.SessionInactive}
	if tokens == nil || (tokens.AccessToken == nil && tokens.RefreshToken == nil) {
		return inactive, nil
	}

	if c.endpoints.Introspection != "" {
		return c.introspect(ctx, tokens)
	}

	if c.endpoints.UserInfo == "" || tokens.AccessToken == nil {
		return nil, auth.ErrSessionUnavailable
	}

	if tokens.AccessToken.Expired(time.Now(), 0) {
		return inactive, nil
	}

	info, err := c.provider.UserInfo(c.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: tokens.AccessToken.Value,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}

	var fields map[string]any
	if err := info.Claims(&fields); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo: %w", err)
	}

	return &auth.SessionInfo{
		Status:    auth.SessionActive,
		ExpiresAt: tokens.AccessToken.ExpiresAt,
		Subject:   info.Subject,
		Fields:    fields,
	}, nil
}

func (c *Client) introspect(ctx context.Context, tokens *auth.TokenSet) (*auth.SessionInfo, error) {
	token, hint := tokens.RefreshToken, "refresh_token"
	if token == nil {
		token, hint = tokens.AccessToken, "access_token"
	}

	body, err := c.postForm(ctx, c.endpoints.Introspection, url.Values{
		"token":           {token.Value},
		"token_type_hint": {hint},
	})
	if err != nil {
		return nil, fmt.Errorf("introspection failed: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse introspection response: %w", err)
	}

	if active, _ := fields["active"].(bool); !active {
		return &auth.SessionInfo{Status: auth.SessionInactive, Fields: fields}, nil
	}

	sub, _ := fields["sub"].(string)
	return &auth.SessionInfo{
		Status:    auth.SessionActive,
		CreatedAt: unixTime(fields["iat"]),
		ExpiresAt: unixTime(fields["exp"]),
		Subject:   sub,
		Fields:    fields,
	}, nil
}

// CloseSession revokes the refresh and access tokens so the issuer drops the
// grant behind the session.
func (c *Client) CloseSession(ctx context.Context, tokens *auth.TokenSet) error {
	if c.endpoints.Revocation == "" {
		return fmt.Errorf("token revocation: %w", auth.ErrNotSupported)
	}
	if tokens == nil || tokens.Empty() {
		return auth.ErrNoToken
	}

	revoke := []struct {
		token *auth.Token
		hint  string
	}{
		{tokens.RefreshToken, "refresh_token"},
		{tokens.AccessToken, "access_token"},
	}
	for _, r := range revoke {
		if r.token == nil {
			continue
		}
		if _, err := c.postForm(ctx, c.endpoints.Revocation, url.Values{
			"token":           {r.token.Value},
			"token_type_hint": {r.hint},
		}); err != nil {
			return fmt.Errorf("failed to revoke %s: %w", r.hint, err)
		}
	}
	return nil
}

// SignOutURL builds the RP-initiated logout URL. Issuers without an
// end_session_endpoint get a local sign-out only.
func (c *Client) SignOutURL(idToken *auth.Token, postLogoutRedirectURI string) (string, error) {
	if c.endpoints.EndSession == "" {
		return postLogoutRedirectURI, nil
	}

	u, err := url.Parse(c.endpoints.EndSession)
	if err != nil {
		return "", fmt.Errorf("invalid end_session_endpoint: %w", err)
	}

	q := u.Query()
	q.Set("client_id", c.cfg.ClientID)
	if idToken != nil {
		q.Set("id_token_hint", idToken.Value)
	}
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// postForm sends an authenticated client request to an issuer endpoint.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	if c.cfg.ClientSecret == "" {
		form.Set("client_id", c.cfg.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.cfg.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			return nil, &auth.OAuthError{Code: oauthErr.Error, Description: oauthErr.ErrorDescription}
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return body, nil
}
