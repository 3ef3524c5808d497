package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/pkg/security"
)

// CSRFMiddleware keeps one token per browser session. Tokens are reused for
// the life of the session since the page posts activity events repeatedly.
type CSRFMiddleware struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCSRFMiddleware(cache cache.Cache, ttl time.Duration, logger *slog.Logger) *CSRFMiddleware {
	return &CSRFMiddleware{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func csrfKey(sessionID string) string {
	return "csrf:" + sessionID
}

func (cm *CSRFMiddleware) ValidateCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" || r.Method == "DELETE" {
			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				token = r.FormValue("csrf_token")
			}

			if token == "" {
				cm.logger.Warn("missing CSRF token", "path", r.URL.Path)
				http.Error(w, "Missing CSRF token", http.StatusForbidden)
				return
			}

			sessionID, ok := GetSessionID(r.Context())
			if !ok {
				http.Error(w, "Invalid or expired CSRF token", http.StatusForbidden)
				return
			}

			expected, err := cm.cache.Get(r.Context(), csrfKey(sessionID))
			if err != nil && !errors.Is(err, cache.ErrNotFound) {
				cm.logger.Error("failed to check CSRF token", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if err != nil || !security.TokensEqual(token, string(expected)) {
				cm.logger.Warn("invalid CSRF token", "path", r.URL.Path)
				http.Error(w, "Invalid or expired CSRF token", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// Token returns the session's token, minting one if needed, and extends its
// lifetime.
func (cm *CSRFMiddleware) Token(ctx context.Context, sessionID string) (string, error) {
	existing, err := cm.cache.Get(ctx, csrfKey(sessionID))
	switch {
	case err == nil:
		token := string(existing)
		if err := cm.cache.Set(ctx, csrfKey(sessionID), existing, cm.ttl); err != nil {
			return "", err
		}
		return token, nil
	case !errors.Is(err, cache.ErrNotFound):
		return "", err
	}

	token, err := security.GenerateCSRFToken()
	if err != nil {
		return "", err
	}

	if err := cm.cache.Set(ctx, csrfKey(sessionID), []byte(token), cm.ttl); err != nil {
		return "", err
	}

	return token, nil
}
