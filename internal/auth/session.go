package auth

import "time"

type SessionStatus string

const (
	SessionActive   SessionStatus = "ACTIVE"
	SessionInactive SessionStatus = "INACTIVE"
)

// SessionInfo mirrors the issuer's login session, which outlives and is
// distinct from the locally held tokens.
type SessionInfo struct {
	Status    SessionStatus  `json:"status"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
	ExpiresAt time.Time      `json:"expiresAt,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (s *SessionInfo) Active() bool {
	return s != nil && s.Status == SessionActive
}

// AuthState is published by the auth-state manager on every update.
type AuthState struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	AccessToken     *Token `json:"accessToken,omitempty"`
	IDToken         *Token `json:"idToken,omitempty"`
}

// LoginState is kept between the authorize redirect and the callback.
type LoginState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURL  string    `json:"redirect_url"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuthRedirect struct {
	URL       string
	CacheKey  string
	CacheData any
	CacheTTL  time.Duration
}

// LoginStateKey is the cache key holding the LoginState for state.
func LoginStateKey(state string) string {
	return "oidc:state:" + state
}
