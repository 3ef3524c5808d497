package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-demo/internal/middleware"
)

// StateHandler serves the session's view as JSON for the page script.
type StateHandler struct {
	logger *slog.Logger
}

func NewStateHandler(logger *slog.Logger) *StateHandler {
	return &StateHandler{logger: logger}
}

func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.View()); err != nil {
		h.logger.Error("failed to encode state", "error", err)
	}
}
