package server

import (
	"errors"
	"net/http"

	"github.com/Kizito2001/defi-swap-supply/internal/swapsupply"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// jsonErrorHandler renders errors returned by handlers and middleware (404s,
// key auth, rate limits, panics) in the ErrorResponse shape.
func jsonErrorHandler(logger *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = http.StatusText(code)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			}
		}
		if code >= http.StatusInternalServerError {
			logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		}
		_ = c.JSON(code, ErrorResponse{Error: msg, Code: code})
	}
}

// engineStatus maps an engine error to an HTTP status and a client message.
// Anything unrecognised is treated as an upstream (chain) failure.
func engineStatus(err error) (int, string) {
	switch {
	case errors.Is(err, swapsupply.ErrInvalidIntent):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, swapsupply.ErrRiskRejected):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, swapsupply.ErrExecutionDisabled):
		return http.StatusForbidden, "execution is disabled"
	case errors.Is(err, swapsupply.ErrNoQuoter):
		return http.StatusNotImplemented, "quoter is not configured"
	default:
		return http.StatusBadGateway, ""
	}
}

// engineErr writes the response for a failed engine call. fallback names the
// operation when the error is an upstream failure.
func (h *Handlers) engineErr(c echo.Context, fallback string, err error) error {
	code, msg := engineStatus(err)
	if msg == "" {
		msg = fallback
	}
	switch code {
	case http.StatusUnprocessableEntity:
		return c.JSON(code, ErrorResponse{Error: msg, Code: code})
	case http.StatusBadRequest:
		return c.JSON(code, ErrorResponse{Error: msg, Code: code, Details: map[string]any{"err": err.Error()}})
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}
