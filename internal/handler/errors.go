package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
)

// ErrorHandler renders every error returned by a handler as
// {"error": msg}.  Conflicts list the contested items under
// "unavailable" and validation failures list offending items under
// "invalid".  With hideInternal set, causes of internal errors are
// never written to the client.
func ErrorHandler(hideInternal bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := renderError(err, hideInternal)
		if status >= http.StatusInternalServerError {
			logrus.WithContext(c.Request().Context()).WithError(err).WithField("path", c.Path()).Error("request error")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logrus.WithError(err).Warn("write error response")
		}
	}
}

func renderError(err error, hideInternal bool) (int, echo.Map) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, echo.Map{"error": msg}
	}

	ae := apperr.From(err)
	body := echo.Map{"error": ae.Message}
	switch ae.Kind {
	case apperr.KindConflict:
		if len(ae.Details) > 0 {
			body["unavailable"] = ae.Details
		}
	case apperr.KindValidation:
		if len(ae.Details) > 0 {
			body["invalid"] = ae.Details
		}
	case apperr.KindInternal:
		if !hideInternal && ae.Err != nil {
			body["error"] = ae.Message + ": " + ae.Err.Error()
		}
	}
	return ae.HTTPStatus(), body
}
