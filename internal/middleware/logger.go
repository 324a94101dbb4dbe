package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger assigns a request id (reusing X-Request-ID when the
// caller sent one) and logs every request once it completes.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := logrus.Fields{
				"request_id": rid,
				"method":     req.Method,
				"path":       c.Path(),
				"status":     c.Response().Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"user_id":    userKey(c),
			}
			entry := logrus.WithContext(req.Context()).WithFields(fields)
			switch {
			case err != nil:
				entry.WithError(err).Error("request failed")
			case c.Response().Status >= 500:
				entry.Error("request")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}
