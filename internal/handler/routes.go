// Package handler provides the gateway's echo handlers.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"restaurant-gateway/internal/config"
	"restaurant-gateway/internal/metrics"
)

const (
	healthzPath = "/healthz"
	statusPath  = "/gateway/status"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Gateway routes accept any method so that disallowed ones get the
// gateway's 405 envelope rather than echo's.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, gw *GatewayHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET(healthzPath, health.Healthz)
	e.GET(statusPath, health.Status)

	for _, rt := range cfg.Routes {
		e.Any(rt.Path, gw.For(rt))
	}

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}

// RoutePatterns lists every pattern RegisterRoutes serves, for metrics labels.
func RoutePatterns(cfg *config.Config) []string {
	out := []string{healthzPath, statusPath}
	for _, rt := range cfg.Routes {
		out = append(out, rt.Path)
	}
	if cfg.Metrics.Enabled {
		out = append(out, cfg.Metrics.Path)
	}
	return out
}
