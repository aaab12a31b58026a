package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callMiddleware(t *testing.T, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/vote", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	return rec, Middleware()(handler)(c)
}

func TestMiddleware_Success(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, err := callMiddleware(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Zero(t, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestMiddleware_StructuredError(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, err := callMiddleware(t, func(c echo.Context) error {
		return ValidationError("fid must be a positive integer").WithField("fid", -1)
	})

	require.NoError(t, err, "middleware writes the response instead of returning the error")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{
		"error": "fid must be a positive integer",
		"type": "validation",
		"context": {"fid": -1}
	}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("validation")))
}

func TestMiddleware_PlainErrorHidesDetail(t *testing.T) {
	HTTPErrorsTotal.Reset()

	rec, err := callMiddleware(t, func(c echo.Context) error {
		return fmt.Errorf("pq: password authentication failed")
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "internal server error", "type": "internal"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("internal")))
}

func TestMiddleware_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantStatus int
	}{
		{"validation", ValidationError("invalid"), http.StatusBadRequest},
		{"not_found", &Error{Type: TypeNotFound, Message: "missing"}, http.StatusNotFound},
		{"conflict", &Error{Type: TypeConflict, Message: "duplicate"}, http.StatusConflict},
		{"internal", InternalError("failed", fmt.Errorf("cause")), http.StatusInternalServerError},
		{"external", &Error{Type: TypeExternal, Message: "relay down"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			HTTPErrorsTotal.Reset()

			rec, err := callMiddleware(t, func(c echo.Context) error {
				return tt.err
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues(tt.name)))
		})
	}
}

// Routing errors raised by echo itself keep echo's rendering; the
// middleware only counts them.
func TestMiddleware_EchoErrorPassesThrough(t *testing.T) {
	HTTPErrorsTotal.Reset()

	httpErr := echo.NewHTTPError(http.StatusNotFound, "route not found")
	_, err := callMiddleware(t, func(c echo.Context) error {
		return httpErr
	})

	require.Error(t, err)
	assert.Equal(t, httpErr, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPErrorsTotal.WithLabelValues("not_found")))
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		httpErr  *echo.HTTPError
		wantType ErrorType
	}{
		{"bad request", echo.NewHTTPError(http.StatusBadRequest, "bad request"), TypeValidation},
		{"not found", echo.NewHTTPError(http.StatusNotFound, "not found"), TypeNotFound},
		{"conflict", echo.NewHTTPError(http.StatusConflict, "conflict"), TypeConflict},
		{"bad gateway", echo.NewHTTPError(http.StatusBadGateway, "bad gateway"), TypeExternal},
		{"service unavailable", echo.NewHTTPError(http.StatusServiceUnavailable, "unavailable"), TypeExternal},
		{"internal", echo.NewHTTPError(http.StatusInternalServerError, "boom"), TypeInternal},
		{"unmapped status", echo.NewHTTPError(http.StatusTeapot, "teapot"), TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapHTTPError(tt.httpErr)
			assert.Equal(t, tt.wantType, err.Type)
		})
	}
}

func TestWrapHTTPError_Cause(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	httpErr := echo.NewHTTPError(http.StatusInternalServerError, "wrapped")
	httpErr.Internal = cause

	err := WrapHTTPError(httpErr)
	assert.Equal(t, cause, err.Cause)
}

func TestWrapHTTPError_NonStringMessage(t *testing.T) {
	tests := []struct {
		name    string
		message any
	}{
		{"integer message", 12345},
		{"nil message", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapHTTPError(&echo.HTTPError{Code: http.StatusBadRequest, Message: tt.message})

			assert.Equal(t, "internal server error", err.Message)
			assert.Equal(t, TypeValidation, err.Type)
		})
	}
}
