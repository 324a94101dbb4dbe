package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
)

func TestRenderError(t *testing.T) {
	status, body := renderError(apperr.Conflict("seats are no longer available", "A1"), true)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, echo.Map{"error": "seats are no longer available", "unavailable": []string{"A1"}}, body)

	status, body = renderError(errors.New("dial tcp: refused"), true)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, echo.Map{"error": "internal error"}, body)

	_, body = renderError(errors.New("dial tcp: refused"), false)
	assert.Equal(t, "internal error: dial tcp: refused", body["error"])

	status, body = renderError(apperr.Upstream("gateway timeout", errors.New("deadline")), true)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "gateway timeout", body["error"])

	status, body = renderError(echo.ErrNotFound, true)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", body["error"])
}
