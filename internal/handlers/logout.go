package handlers

import (
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-demo/internal/middleware"
)

// LogoutHandler clears the session's tokens and hands the browser to the
// issuer's logout endpoint. The browser keeps its session cookie so the
// debug log survives the round trip.
type LogoutHandler struct {
	logger *slog.Logger
}

func NewLogoutHandler(logger *slog.Logger) *LogoutHandler {
	return &LogoutHandler{logger: logger}
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	target := c.SignOut(r.Context())

	h.logger.Info("user logged out", "session", c.ID())

	http.Redirect(w, r, target, http.StatusSeeOther)
}
