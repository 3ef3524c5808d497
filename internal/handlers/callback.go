package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-demo/internal/middleware"
)

// CallbackHandler serves a redirect URI that is not the page itself. Both
// outcomes land on the page, where a failure shows in the error box.
type CallbackHandler struct {
	landing string
	logger  *slog.Logger
}

func NewCallbackHandler(landing string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		landing: landing,
		logger:  logger,
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if c.Load(r.Context(), r) {
		h.logger.Info("authentication successful", "session", c.ID())
	} else {
		h.logger.Warn("login redirect did not complete", "session", c.ID())
	}

	http.Redirect(w, r, h.landing, http.StatusFound)
}

// LoginHandler starts sign-in straight from a link.
type LoginHandler struct {
	landing string
	logger  *slog.Logger
}

func NewLoginHandler(landing string, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		landing: landing,
		logger:  logger,
	}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	target, err := c.SignIn(r.Context())
	if err != nil {
		h.logger.Error("failed to initiate auth", "error", err)
		http.Redirect(w, r, h.landing, http.StatusFound)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}
