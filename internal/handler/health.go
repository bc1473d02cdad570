package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"restaurant-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	routes := make([]string, 0, len(h.cfg.Routes))
	for _, r := range h.cfg.Routes {
		routes = append(routes, r.Name)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      string(h.version),
		"environment":  h.cfg.App.Environment,
		"upstream_url": h.cfg.Upstream.BaseURL + h.cfg.Upstream.PathPrefix,
		"routes":       routes,
	})
}
