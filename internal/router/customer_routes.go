package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
)

// Guards are the middlewares applied to the authenticated groups.
type Guards struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc // may be nil
}

func (g Guards) group(e *echo.Echo, prefix string, roles ...string) *echo.Group {
	grp := e.Group(prefix, middleware.JWTAuth(g.JWTSecret), middleware.RequireRole(roles...))
	if g.RateLimit != nil {
		grp.Use(g.RateLimit)
	}
	return grp
}

// RegisterCustomer registers the booking flow under /v1.  Every route
// requires a valid JWT with the CUSTOMER role.  Availability is never
// cached: each read sweeps expired holds and must see the caller's own
// lock or release.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, g Guards) {
	v1 := g.group(e, "/v1", middleware.RoleCustomer)

	v1.GET("/shows/:id/availability", h.Availability)
	v1.POST("/shows/:id/quote", h.Quote)
	v1.POST("/shows/:id/lock", h.Lock)
	v1.DELETE("/shows/:id/lock", h.Release)

	v1.POST("/orders", h.CreateOrder)
	v1.POST("/orders/verify", h.VerifyPayment)

	v1.GET("/bookings", h.ListBookings)
	v1.GET("/bookings/:id", h.GetBooking)
}
