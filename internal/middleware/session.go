package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/marcogenualdo/session-demo/internal/controller"
	"github.com/marcogenualdo/session-demo/pkg/security"
)

type contextKey string

const (
	SessionIDContextKey  contextKey = "session_id"
	ControllerContextKey contextKey = "controller"
)

// SessionMiddleware gives every browser a session cookie and attaches that
// session's controller to the request context.
type SessionMiddleware struct {
	cfg      config.ServerConfig
	registry *controller.Registry
	logger   *slog.Logger
}

func NewSessionMiddleware(cfg config.ServerConfig, registry *controller.Registry, logger *slog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
	}
}

func (sm *SessionMiddleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := security.SessionID(r, sm.cfg.CookieName)
		if !ok {
			sessionID = security.NewSessionID()
			http.SetCookie(w, security.CreateSessionCookie(sm.cfg, sessionID))
			sm.logger.Debug("new browser session", "path", r.URL.Path)
		}

		c := sm.registry.Get(r.Context(), sessionID)

		ctx := context.WithValue(r.Context(), SessionIDContextKey, sessionID)
		ctx = context.WithValue(ctx, ControllerContextKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionIDContextKey).(string)
	return id, ok
}

func GetController(ctx context.Context) (*controller.Controller, bool) {
	c, ok := ctx.Value(ControllerContextKey).(*controller.Controller)
	return c, ok
}
