// Package router registers the HTTP routes of the booking API.
package router

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/handler"
)

// RegisterRoutes registers the unauthenticated probes.  ready may be nil.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterTickets serves rendered ticket images from dir under prefix.
// A rendered ticket never changes, so cache may front it; it may be nil.
func RegisterTickets(e *echo.Echo, prefix, dir string, cache echo.MiddlewareFunc) {
	g := e.Group(strings.TrimSuffix(prefix, "/"))
	if cache != nil {
		g.Use(cache)
	}
	g.Static("/", dir)
}
