package auth

import "errors"

var (
	ErrNoToken            = errors.New("token not found")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrNotLoginRedirect   = errors.New("request is not a login redirect")
	ErrInvalidState       = errors.New("invalid or expired state")
	ErrSessionUnavailable = errors.New("session endpoint unavailable")
	ErrNotSupported       = errors.New("not supported by issuer")
)

// OAuthError is an error returned by the issuer on the redirect or token endpoint.
type OAuthError struct {
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return "oauth error: " + e.Code
	}
	return "oauth error: " + e.Code + ": " + e.Description
}
