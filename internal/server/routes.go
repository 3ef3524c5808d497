package server

import (
	"net/http"
	"net/url"

	"github.com/marcogenualdo/session-demo/internal/handlers"
	"github.com/marcogenualdo/session-demo/internal/middleware"
)

const landing = "/"

func (s *Server) setupRoutes() (http.Handler, error) {
	mux := http.NewServeMux()

	csrfMiddleware := middleware.NewCSRFMiddleware(s.cache, s.cfg.Server.SessionTTL, s.logger)
	sessionMiddleware := middleware.NewSessionMiddleware(s.cfg.Server, s.registry, s.logger)

	pageHandler, err := handlers.NewPageHandler(s.cfg, csrfMiddleware, s.logger)
	if err != nil {
		return nil, err
	}

	loginHandler := handlers.NewLoginHandler(landing, s.logger)
	logoutHandler := handlers.NewLogoutHandler(s.logger)
	eventHandler := handlers.NewEventHandler()
	stateHandler := handlers.NewStateHandler(s.logger)
	healthHandler := handlers.NewHealthHandler(s.cfg, s.cache, s.registry, s.httpClient, s.logger)

	protected := func(h http.Handler) http.Handler {
		return sessionMiddleware.Attach(csrfMiddleware.ValidateCSRF(h))
	}

	mux.Handle("GET /{$}", sessionMiddleware.Attach(pageHandler))
	if path := redirectPath(s.cfg.OIDC.RedirectURI); path != landing {
		mux.Handle("GET "+path, sessionMiddleware.Attach(handlers.NewCallbackHandler(landing, s.logger)))
	}

	mux.Handle("GET /login", sessionMiddleware.Attach(loginHandler))
	mux.Handle("POST /actions/signin", protected(loginHandler))
	mux.Handle("POST /actions/signout", protected(logoutHandler))
	for name, action := range handlers.Actions() {
		mux.Handle("POST /actions/"+name, protected(handlers.NewActionHandler(name, action, landing, s.logger)))
	}

	mux.Handle("POST /events/activity", protected(http.HandlerFunc(eventHandler.Activity)))
	mux.Handle("POST /events/visibility", protected(http.HandlerFunc(eventHandler.Visibility)))
	mux.Handle("POST /events/pageshow", protected(http.HandlerFunc(eventHandler.PageShow)))
	mux.Handle("POST /events/pagehide", protected(http.HandlerFunc(eventHandler.PageHide)))

	mux.Handle("GET /api/state", sessionMiddleware.Attach(stateHandler))

	mux.Handle("GET /health", healthHandler)

	handler := middleware.Recovery(s.logger)(
		middleware.Logging(s.logger)(
			middleware.SecurityHeaders(mux),
		),
	)

	return handler, nil
}

// redirectPath is the path part of the configured redirect URI.
func redirectPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" {
		return landing
	}
	return u.Path
}
