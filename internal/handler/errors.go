package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"restaurant-gateway/internal/auth"
	"restaurant-gateway/internal/config"
	"restaurant-gateway/internal/model"
)

// writeError renders env with status. Outside production the cause and a
// stack trace are attached.
func writeError(c echo.Context, production bool, status int, env model.ErrorEnvelope, cause error) error {
	env.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	if !production && cause != nil {
		env.Cause = sanitizeError(cause)
		env.Stack = string(debug.Stack())
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, env)
}

// sanitizeError redacts bearer tokens from error messages.
func sanitizeError(err error) string {
	return auth.Redact(err.Error())
}

// NewErrorHandler renders errors raised by echo itself (unknown route, body
// limit, rate limit, recovered panics) in the gateway's error envelope.
func NewErrorHandler(cfg *config.Config, logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "Internal server error"
		var cause error

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
			if he.Internal != nil {
				cause = he.Internal
			}
		} else {
			cause = err
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"err", sanitizeError(err),
				"path", c.Request().URL.Path,
			)
		}

		if werr := writeError(c, cfg.Production(), status, model.ErrorEnvelope{Error: msg}, cause); werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
