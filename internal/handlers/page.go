package handlers

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/marcogenualdo/session-demo/internal/config"
	"github.com/marcogenualdo/session-demo/internal/controller"
	"github.com/marcogenualdo/session-demo/internal/middleware"
)

//go:embed templates/*
var templatesFS embed.FS

type PageHandler struct {
	cfg      *config.Config
	csrf     *middleware.CSRFMiddleware
	logger   *slog.Logger
	template *template.Template
}

type actionButton struct {
	Name      string
	Label     string
	CSRFToken string
}

func NewPageHandler(cfg *config.Config, csrf *middleware.CSRFMiddleware, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"action": func(name, label, csrfToken string) actionButton {
			return actionButton{Name: name, Label: label, CSRFToken: csrfToken}
		},
	}).ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		cfg:      cfg,
		csrf:     csrf,
		logger:   logger,
		template: tmpl,
	}, nil
}

type PageData struct {
	View                   controller.View
	CSRFToken              string
	ActivityThrottleMillis int64
}

// ServeHTTP loads the page. A request carrying a login redirect is completed
// and sent back to the same path without its query.
func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if c.Load(r.Context(), r) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
		return
	}

	h.render(w, r, c)
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, c *controller.Controller) {
	sessionID, _ := middleware.GetSessionID(r.Context())
	csrfToken, err := h.csrf.Token(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := PageData{
		View:                   c.View(),
		CSRFToken:              csrfToken,
		ActivityThrottleMillis: h.cfg.UI.ActivityThrottle.Milliseconds(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, data); err != nil {
		h.logger.Error("failed to render template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
