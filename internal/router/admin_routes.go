package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
)

// RegisterAdmin registers operator routes under /v1/admin for the OWNER
// role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, g Guards) {
	admin := g.group(e, "/v1/admin", middleware.RoleOwner)
	admin.POST("/bookings/cancel-stale", h.CancelStale)
	admin.POST("/transactions/:order_ref/fail", h.FailTransaction)
}
