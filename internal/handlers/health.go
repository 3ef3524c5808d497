package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marcogenualdo/session-demo/internal/cache"
	"github.com/marcogenualdo/session-demo/internal/config"
)

// SessionCounter reports how many browser sessions have a live controller.
type SessionCounter interface {
	Len() int
}

type HealthHandler struct {
	cfg        *config.Config
	cache      cache.Cache
	sessions   SessionCounter
	httpClient *http.Client
	logger     *slog.Logger
	startTime  time.Time
}

func NewHealthHandler(cfg *config.Config, cache cache.Cache, sessions SessionCounter, httpClient *http.Client, logger *slog.Logger) *HealthHandler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HealthHandler{
		cfg:        cfg,
		cache:      cache,
		sessions:   sessions,
		httpClient: httpClient,
		logger:     logger,
		startTime:  time.Now(),
	}
}

type HealthResponse struct {
	Status   string       `json:"status"`
	Uptime   string       `json:"uptime"`
	Cache    CacheHealth  `json:"cache"`
	Issuer   IssuerHealth `json:"issuer"`
	Sessions int          `json:"sessions"`
}

type CacheHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type IssuerHealth struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:   "healthy",
		Uptime:   time.Since(h.startTime).String(),
		Sessions: h.sessions.Len(),
	}

	response.Cache.Type = h.cfg.Cache.Type
	if err := h.cache.Set(ctx, "health:check", []byte("ok"), 1*time.Minute); err != nil {
		response.Cache.Status = "error: " + err.Error()
		response.Status = "degraded"
	} else {
		response.Cache.Status = "connected"
		h.cache.Delete(ctx, "health:check")
	}

	response.Issuer.URL = h.cfg.OIDC.Issuer
	if err := h.probeIssuer(ctx); err != nil {
		h.logger.Warn("issuer unreachable", "error", err)
		response.Issuer.Status = "unreachable"
		response.Status = "degraded"
	} else {
		response.Issuer.Status = "reachable"
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) probeIssuer(ctx context.Context) error {
	discovery := strings.TrimSuffix(h.cfg.OIDC.Issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discovery, nil)
	if err != nil {
		return err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}
	return nil
}
