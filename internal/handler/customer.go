package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/inventory"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/order"
	"github.com/iliyamo/cinema-ticketing/internal/reservation"
)

type Inventory interface {
	Availability(ctx context.Context, showID, requester uint64) (inventory.Availability, error)
}

type Holds interface {
	Lock(ctx context.Context, showID, requester uint64, sel model.Selection) (reservation.LockResult, error)
	Release(ctx context.Context, showID, requester uint64, sel model.Selection) ([]string, error)
}

type Orders interface {
	Quote(ctx context.Context, requester uint64, req order.Request) (model.PriceBreakdown, error)
	CreateOrder(ctx context.Context, requester uint64, req order.Request) (order.OrderResult, error)
	VerifyPayment(ctx context.Context, requester uint64, req order.VerifyRequest) (model.Booking, error)
	GetBooking(ctx context.Context, requester, id uint64) (model.Booking, error)
	ListBookings(ctx context.Context, requester uint64, limit, offset int) ([]model.Booking, error)
}

// CustomerHandler serves the booking flow of an authenticated customer:
// availability, holds, quotes, orders, payment verification and the
// customer's own bookings.
type CustomerHandler struct {
	Inventory Inventory
	Holds     Holds
	Orders    Orders
}

// NewCustomerHandler panics when a dependency is missing.
func NewCustomerHandler(inv Inventory, holds Holds, orders Orders) *CustomerHandler {
	if inv == nil || holds == nil || orders == nil {
		panic("nil dependency passed to NewCustomerHandler")
	}
	return &CustomerHandler{Inventory: inv, Holds: holds, Orders: orders}
}

type selectionRequest struct {
	Seats   []string           `json:"seats" validate:"omitempty,max=20,dive,required,max=16"`
	Tickets []model.TicketLine `json:"tickets" validate:"omitempty,max=10,dive"`
}

func (r selectionRequest) selection() model.Selection {
	return model.Selection{Seats: r.Seats, Tickets: r.Tickets}
}

// orderBody is shared by quotes and orders.  Quotes take the show from
// the path; orders carry it in show_id.
type orderBody struct {
	ShowID       uint64             `json:"show_id"`
	Seats        []string           `json:"seats" validate:"omitempty,max=20,dive,required,max=16"`
	Tickets      []model.TicketLine `json:"tickets" validate:"omitempty,max=10,dive"`
	AddOns       []model.AddOnLine  `json:"add_ons" validate:"omitempty,max=10,dive"`
	DiscountCode string             `json:"discount_code" validate:"omitempty,max=32,alphanum"`
	UseLoyalty   bool               `json:"use_loyalty"`
}

func (r orderBody) order(showID uint64) order.Request {
	return order.Request{
		ShowID:       showID,
		Selection:    model.Selection{Seats: r.Seats, Tickets: r.Tickets},
		AddOns:       r.AddOns,
		DiscountCode: r.DiscountCode,
		UseLoyalty:   r.UseLoyalty,
	}
}

type verifyRequest struct {
	OrderID   string `json:"gateway_order_id" validate:"required,max=64"`
	PaymentID string `json:"gateway_payment_id" validate:"required,max=64"`
	Signature string `json:"signature" validate:"required,max=256"`
}

// Availability handles GET /v1/shows/:id/availability.
func (h *CustomerHandler) Availability(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	showID, err := pathID(c, "id", "show")
	if err != nil {
		return err
	}
	av, err := h.Inventory.Availability(c.Request().Context(), showID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}

// Lock handles POST /v1/shows/:id/lock.  Locking again renews the
// caller's existing holds.
func (h *CustomerHandler) Lock(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	showID, err := pathID(c, "id", "show")
	if err != nil {
		return err
	}
	var body selectionRequest
	if err := bindValid(c, &body); err != nil {
		return err
	}
	res, err := h.Holds.Lock(c.Request().Context(), showID, userID, body.selection())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Release handles DELETE /v1/shows/:id/lock.  Without a body every hold
// of the caller on the show is released.
func (h *CustomerHandler) Release(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	showID, err := pathID(c, "id", "show")
	if err != nil {
		return err
	}
	var body selectionRequest
	if err := bindValid(c, &body); err != nil {
		return err
	}
	released, err := h.Holds.Release(c.Request().Context(), showID, userID, body.selection())
	if err != nil {
		return err
	}
	if released == nil {
		released = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Quote handles POST /v1/shows/:id/quote.  Nothing is held or written.
func (h *CustomerHandler) Quote(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	showID, err := pathID(c, "id", "show")
	if err != nil {
		return err
	}
	var body orderBody
	if err := bindValid(c, &body); err != nil {
		return err
	}
	bd, err := h.Orders.Quote(c.Request().Context(), userID, body.order(showID))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bd)
}

// CreateOrder handles POST /v1/orders and answers 201 with the gateway
// order the client completes payment against.
func (h *CustomerHandler) CreateOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	var body orderBody
	if err := bindValid(c, &body); err != nil {
		return err
	}
	if body.ShowID == 0 {
		return apperr.Validation("show_id: required")
	}
	res, err := h.Orders.CreateOrder(c.Request().Context(), userID, body.order(body.ShowID))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// VerifyPayment handles POST /v1/orders/verify.
func (h *CustomerHandler) VerifyPayment(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	var body verifyRequest
	if err := bindValid(c, &body); err != nil {
		return err
	}
	b, err := h.Orders.VerifyPayment(c.Request().Context(), userID, order.VerifyRequest{
		OrderID:   body.OrderID,
		PaymentID: body.PaymentID,
		Signature: body.Signature,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /v1/bookings?limit=&offset=.
func (h *CustomerHandler) ListBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	list, err := h.Orders.ListBookings(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	if list == nil {
		list = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// GetBooking handles GET /v1/bookings/:id.  Bookings of other customers
// are reported as not found.
func (h *CustomerHandler) GetBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id", "booking")
	if err != nil {
		return err
	}
	b, err := h.Orders.GetBooking(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}
