package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-demo/internal/controller"
	"github.com/marcogenualdo/session-demo/internal/middleware"
)

// Action is one button on the page.
type Action func(ctx context.Context, c *controller.Controller) error

// ActionHandler runs an action and redirects back to the page. Failures are
// already on the page's error box, so they only change the log level here.
type ActionHandler struct {
	name    string
	action  Action
	landing string
	logger  *slog.Logger
}

func NewActionHandler(name string, action Action, landing string, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{
		name:    name,
		action:  action,
		landing: landing,
		logger:  logger,
	}
}

func (h *ActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.action(r.Context(), c); err != nil {
		h.logger.Warn("action failed", "action", h.name, "session", c.ID(), "error", err)
	}

	http.Redirect(w, r, h.landing, http.StatusSeeOther)
}

// Actions lists every page button that stays on the page, keyed by path
// suffix under /actions/.
func Actions() map[string]Action {
	return map[string]Action{
		"refresh": func(ctx context.Context, c *controller.Controller) error {
			return c.RefreshTokens(ctx)
		},
		"clear": func(ctx context.Context, c *controller.Controller) error {
			return c.ClearTokens(ctx)
		},
		"session/close": func(ctx context.Context, c *controller.Controller) error {
			return c.CloseSession(ctx)
		},
		"tokens/show": func(ctx context.Context, c *controller.Controller) error {
			return c.ShowTokens(ctx)
		},
		"tokens/hide": func(ctx context.Context, c *controller.Controller) error {
			c.HideTokens()
			return nil
		},
		"log/show": func(ctx context.Context, c *controller.Controller) error {
			c.ShowLog(ctx)
			return nil
		},
		"log/hide": func(ctx context.Context, c *controller.Controller) error {
			c.HideLog()
			return nil
		},
		"error/dismiss": func(ctx context.Context, c *controller.Controller) error {
			c.DismissError()
			return nil
		},
	}
}
