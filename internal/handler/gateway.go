package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"restaurant-gateway/internal/config"
	"restaurant-gateway/internal/model"
	"restaurant-gateway/internal/route"
	"restaurant-gateway/internal/service"
)

// GatewayHandler serves every configured route through the gateway service.
type GatewayHandler struct {
	service *service.GatewayService
	cfg     *config.Config
	logger  *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(svc *service.GatewayService, cfg *config.Config, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		service: svc,
		cfg:     cfg,
		logger:  logger.With("component", "gateway_handler"),
	}
}

// For returns the echo handler for rt.
func (h *GatewayHandler) For(rt route.Route) echo.HandlerFunc {
	if rt.Kind == route.KindAuthStatus {
		return h.authStatus(rt)
	}
	return h.proxy(rt)
}

// proxy forwards the request upstream and streams the response back.
func (h *GatewayHandler) proxy(rt route.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		pr, err := h.service.Prepare(&rt, req, pathParams(c))
		if err != nil {
			return h.mapError(c, &rt, err)
		}

		switch out := h.service.Forward(req.Context(), pr).(type) {
		case *model.Success:
			return h.relay(c, out.Response)
		case *model.UpstreamError:
			h.logger.Warn("upstream error response",
				"route", rt.Name,
				"status", out.Response.StatusCode,
			)
			return h.relay(c, out.Response)
		case *model.TransportError:
			return h.mapError(c, &rt, out)
		default:
			return h.mapError(c, &rt, errors.New("unexpected upstream outcome"))
		}
	}
}

// authStatus answers with the session status; it never fails.
func (h *GatewayHandler) authStatus(rt route.Route) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if !rt.Allows(req.Method) {
			return h.mapError(c, &rt, service.ErrMethodNotAllowed)
		}

		st := h.service.SessionStatus(req.Context(), &rt, req)
		c.Response().Header().Set("Cache-Control", "no-store")
		return c.JSON(http.StatusOK, st)
	}
}

func (h *GatewayHandler) relay(c echo.Context, resp *model.UpstreamResponse) error {
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a failed copy leaves the client with a
	// truncated body, so all we can do is log it.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}

	return nil
}

func (h *GatewayHandler) mapError(c echo.Context, rt *route.Route, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		// e.g. body limit exceeded while reading; the central handler renders it.
		return he
	}

	var ve *service.ValidationError
	switch {
	case errors.Is(err, service.ErrMethodNotAllowed):
		c.Response().Header().Set(echo.HeaderAllow, strings.Join(rt.Methods, ", "))
		return writeError(c, h.cfg.Production(), http.StatusMethodNotAllowed,
			model.ErrorEnvelope{Error: "Method not allowed"}, nil)

	case errors.Is(err, service.ErrUnauthorized):
		return writeError(c, h.cfg.Production(), http.StatusUnauthorized,
			model.ErrorEnvelope{Error: "Authentication required"}, nil)

	case errors.As(err, &ve):
		return writeError(c, h.cfg.Production(), http.StatusBadRequest,
			model.ErrorEnvelope{
				Error:  "Invalid parameter: " + ve.Field,
				Detail: ve.Field + " " + ve.Reason,
				Field:  ve.Field,
			}, nil)
	}

	h.logger.Error("gateway error",
		"route", rt.Name,
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	env := model.ErrorEnvelope{Error: "Internal server error"}
	var te *model.TransportError
	if errors.As(err, &te) {
		env.Detail = "backend unavailable"
		if te.Timeout {
			env.Detail = "upstream request timed out"
		}
	}
	return writeError(c, h.cfg.Production(), http.StatusInternalServerError, env, err)
}

// pathParams collects echo's path parameters, unescaped.
func pathParams(c echo.Context) map[string]string {
	names := c.ParamNames()
	values := c.ParamValues()
	out := make(map[string]string, len(names))
	for i, name := range names {
		if i >= len(values) {
			break
		}
		v := values[i]
		if u, err := url.PathUnescape(v); err == nil {
			v = u
		}
		out[name] = v
	}
	return out
}
