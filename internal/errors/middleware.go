package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPErrorsTotal counts failed requests by error type.
var HTTPErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "Total HTTP errors by error type",
	},
	[]string{"type"},
)

// Middleware converts handler errors into classified JSON responses.
// Errors raised by echo itself (routing 404s, method mismatches) are
// counted but passed through to echo's own handler, which already
// renders the right status.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return respond(c, err)
			}
			return nil
		}
	}
}

func respond(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		HTTPErrorsTotal.WithLabelValues(string(WrapHTTPError(httpErr).Type)).Inc()
		return err
	}

	structured := AsStructuredError(err)
	HTTPErrorsTotal.WithLabelValues(string(structured.Type)).Inc()
	logFailure(c, structured)

	if err := c.JSON(structured.HTTPStatus(), structured.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logFailure(c echo.Context, err *Error) {
	attrs := []any{
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"status", err.HTTPStatus(),
		"error_type", err.Type,
		"message", err.Message,
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	// Handlers resolve the user before validating the rest, so failed
	// requests still log who sent them.
	if fid := c.Get("fid"); fid != nil {
		attrs = append(attrs, "fid", fid)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound:
		slog.Info("Request rejected", attrs...)
	case TypeConflict:
		slog.Warn("Request conflict", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("Request failed", attrs...)
	}
}

// typeByStatus is the reverse of statusByType, widened for statuses
// echo raises on its own. Anything unlisted classifies as internal.
var typeByStatus = map[int]ErrorType{
	http.StatusBadRequest:         TypeValidation,
	http.StatusNotFound:           TypeNotFound,
	http.StatusConflict:           TypeConflict,
	http.StatusBadGateway:         TypeExternal,
	http.StatusServiceUnavailable: TypeExternal,
}

// WrapHTTPError classifies an error produced by echo or its built-in
// middleware by status code.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	errType, ok := typeByStatus[httpErr.Code]
	if !ok {
		errType = TypeInternal
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   httpErr.Internal,
	}
}
