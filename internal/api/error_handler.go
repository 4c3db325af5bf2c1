package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
)

// errorResponse is the canonical error envelope for all portal errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that maps domain and
// upstream errors to status codes and renders {"error": "<message>"}.
// Unexpected errors are logged and answered with a generic message.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	switch {
	case errors.Is(err, domain.ErrCommitInFlight):
		return http.StatusConflict, domain.ErrCommitInFlight.Error()
	case errors.Is(err, domain.ErrStepMismatch):
		return http.StatusConflict, domain.ErrStepMismatch.Error()
	case errors.Is(err, domain.ErrIncompletePayload):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrOnboardingUnavailable):
		return http.StatusConflict, domain.ErrOnboardingUnavailable.Error()
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized, domain.ErrNotAuthenticated.Error()
	case errors.Is(err, domain.ErrUnknownRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "the request took too long, please try again"
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return resolveAPIError(apiErr, err, log, c)
	}

	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")
	return http.StatusInternalServerError, "internal server error"
}

// resolveAPIError passes upstream rejections through with the server's own
// message and hides server faults behind a generic one.
func resolveAPIError(apiErr *domain.APIError, err error, log zerolog.Logger, c echo.Context) (int, string) {
	switch apiErr.Kind {
	case domain.KindAuth:
		return http.StatusUnauthorized, apiErr.UserMessage()
	case domain.KindValidation:
		code := apiErr.Status
		if code < 400 || code > 499 {
			code = http.StatusBadRequest
		}
		return code, apiErr.UserMessage()
	case domain.KindNetwork:
		log.Warn().Err(err).Str("path", c.Path()).Msg("marketplace api unreachable")
		return http.StatusBadGateway, apiErr.UserMessage()
	default:
		log.Error().Err(err).Str("path", c.Path()).Int("upstream_status", apiErr.Status).Msg("marketplace api error")
		return http.StatusBadGateway, apiErr.UserMessage()
	}
}
