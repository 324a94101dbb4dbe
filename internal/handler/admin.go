package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Settlement interface {
	CancelStale(ctx context.Context) (int64, error)
	FailTransaction(ctx context.Context, orderID, reason string) error
}

// AdminHandler exposes operator actions on the settlement pipeline.
type AdminHandler struct {
	Settlement Settlement
}

func NewAdminHandler(s Settlement) *AdminHandler {
	if s == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Settlement: s}
}

// CancelStale handles POST /v1/admin/bookings/cancel-stale.
func (h *AdminHandler) CancelStale(c echo.Context) error {
	n, err := h.Settlement.CancelStale(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": n})
}

type failRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// FailTransaction handles POST /v1/admin/transactions/:order_ref/fail.
// The transaction is marked failed and its pending booking cancelled.
func (h *AdminHandler) FailTransaction(c echo.Context) error {
	var body failRequest
	if err := bindValid(c, &body); err != nil {
		return err
	}
	if err := h.Settlement.FailTransaction(c.Request().Context(), c.Param("order_ref"), body.Reason); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"gateway_order_id": c.Param("order_ref"), "status": "failed"})
}
