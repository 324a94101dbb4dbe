// Package order runs the settlement pipeline: quote, order creation
// against the payment gateway, signature-verified confirmation and the
// cancellation of bookings whose payment never arrived.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/clock"
	"github.com/iliyamo/cinema-ticketing/internal/inventory"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/payment"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
	"github.com/iliyamo/cinema-ticketing/internal/reservation"
)

type CatalogStore interface {
	RateTable(ctx context.Context, showID uint64) (model.RateTable, error)
	AddOnsByIDs(ctx context.Context, ids []uint64) (map[uint64]model.AddOn, error)
}

type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
	GetForUser(ctx context.Context, id, userID uint64) (model.Booking, error)
	LockByID(ctx context.Context, id uint64) (model.Booking, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error)
	MarkConfirmed(ctx context.Context, id uint64, info model.PaymentInfo, now time.Time) error
	StalePending(ctx context.Context, cutoff time.Time) ([]uint64, error)
	CancelPending(ctx context.Context, ids []uint64, now time.Time) (int64, error)
	SetTicketURL(ctx context.Context, id uint64, url string) error
}

type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	LockByOrderForUser(ctx context.Context, orderID string, userID uint64) (model.Transaction, error)
	LockByOrder(ctx context.Context, orderID string) (model.Transaction, error)
	GetByBooking(ctx context.Context, bookingID uint64) (model.Transaction, error)
	MarkSuccess(ctx context.Context, id uint64, paymentID, signature string, now time.Time) error
	MarkFailed(ctx context.Context, orderID, reason string, now time.Time) (bool, error)
	LockByBookings(ctx context.Context, bookingIDs []uint64) error
	FailByBookings(ctx context.Context, bookingIDs []uint64, reason string, now time.Time) (int64, error)
}

type DiscountStore interface {
	GetByCode(ctx context.Context, code string) (model.DiscountCode, error)
	LockByID(ctx context.Context, id uint64) (model.DiscountCode, error)
	CountByUser(ctx context.Context, discountID, userID uint64) (int, error)
	Redeem(ctx context.Context, discountID, userID, bookingID uint64, amount decimal.Decimal, now time.Time) error
}

type LoyaltyStore interface {
	Balance(ctx context.Context, userID uint64) (decimal.Decimal, error)
	Debit(ctx context.Context, userID uint64, amount decimal.Decimal, now time.Time) error
}

// Numberer issues booking numbers.
type Numberer interface {
	Next(ctx context.Context) (string, error)
}

// ConfirmationHook runs after a payment has been committed.  Failures are
// logged and never undo the confirmation.
type ConfirmationHook interface {
	BookingConfirmed(ctx context.Context, b model.Booking, snap model.TransactionSnapshot) error
}

// HookFunc adapts a function to ConfirmationHook.
type HookFunc func(ctx context.Context, b model.Booking, snap model.TransactionSnapshot) error

func (f HookFunc) BookingConfirmed(ctx context.Context, b model.Booking, snap model.TransactionSnapshot) error {
	return f(ctx, b, snap)
}

// Deps wires a Workflow.
type Deps struct {
	Tx           reservation.Transactor
	Shows        inventory.ShowReader
	Catalog      CatalogStore
	Bookings     BookingStore
	Transactions TransactionStore
	Discounts    DiscountStore
	Loyalty      LoyaltyStore
	Ledger       *inventory.Ledger
	Reservations *reservation.Manager
	Pricing      pricing.Engine
	Gateway      payment.Gateway
	Verifier     payment.Verifier
	Numbers      Numberer
	Clock        clock.Clock
	// StaleAfter is the age at which an unpaid booking is cancelled.
	// Defaults to the hold TTL.
	StaleAfter time.Duration
	Hooks      []ConfirmationHook
}

type Workflow struct {
	Deps
}

func New(d Deps) *Workflow {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.StaleAfter <= 0 {
		d.StaleAfter = d.Reservations.TTL()
	}
	return &Workflow{Deps: d}
}

// AddHook registers a post-confirmation hook.
func (w *Workflow) AddHook(h ConfirmationHook) { w.Hooks = append(w.Hooks, h) }

// Request is a priced selection on one show.
type Request struct {
	ShowID       uint64
	Selection    model.Selection
	AddOns       []model.AddOnLine
	DiscountCode string
	UseLoyalty   bool
}

func (w *Workflow) bookableShow(ctx context.Context, id uint64) (model.Show, inventory.Strategy, error) {
	show, err := w.Shows.GetByID(ctx, id)
	if errors.Is(err, repository.ErrShowNotFound) || (err == nil && show.DeletedAt != nil) {
		return model.Show{}, nil, apperr.NotFound("show not found")
	}
	if err != nil {
		return model.Show{}, nil, apperr.Internal(err)
	}
	if !show.Bookable() {
		return model.Show{}, nil, apperr.Validation("show is not open for booking")
	}
	strat, err := w.Ledger.For(show.Kind)
	if err != nil {
		return model.Show{}, nil, err
	}
	return show, strat, nil
}

// price re-reads rates, add-ons, discount and loyalty state and runs the
// engine.  Client supplied prices are never consulted.
func (w *Workflow) price(ctx context.Context, show model.Show, strat inventory.Strategy, requester uint64, req Request) (model.PriceBreakdown, error) {
	lines, err := strat.Resolve(ctx, show, req.Selection)
	if err != nil {
		return model.PriceBreakdown{}, apperr.From(err)
	}
	rates, err := w.Catalog.RateTable(ctx, show.ID)
	if err != nil {
		return model.PriceBreakdown{}, apperr.Internal(err)
	}
	in := pricing.Input{
		ShowDate:   show.StartsAt,
		VenueID:    show.VenueID,
		Lines:      lines,
		Rates:      rates,
		AddOns:     req.AddOns,
		UseLoyalty: req.UseLoyalty,
		Now:        w.Clock.Now(),
	}
	if len(req.AddOns) > 0 {
		ids := make([]uint64, 0, len(req.AddOns))
		for _, a := range req.AddOns {
			ids = append(ids, a.AddOnID)
		}
		if in.AddOnCatalog, err = w.Catalog.AddOnsByIDs(ctx, ids); err != nil {
			return model.PriceBreakdown{}, apperr.Internal(err)
		}
	}
	if req.DiscountCode != "" {
		d, err := w.Discounts.GetByCode(ctx, req.DiscountCode)
		if errors.Is(err, repository.ErrDiscountNotFound) {
			return model.PriceBreakdown{}, apperr.Validation("discount code is not valid")
		}
		if err != nil {
			return model.PriceBreakdown{}, apperr.Internal(err)
		}
		if in.DiscountUsesByUser, err = w.Discounts.CountByUser(ctx, d.ID, requester); err != nil {
			return model.PriceBreakdown{}, apperr.Internal(err)
		}
		in.Discount = &d
	}
	if req.UseLoyalty {
		if in.LoyaltyBalance, err = w.Loyalty.Balance(ctx, requester); err != nil {
			return model.PriceBreakdown{}, apperr.Internal(err)
		}
	}

	b, err := w.Pricing.Quote(in)
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, pricing.ErrDiscountInvalid):
		return model.PriceBreakdown{}, apperr.Validation("discount code is not valid")
	case errors.Is(err, pricing.ErrDiscountExhausted):
		return model.PriceBreakdown{}, apperr.Validation("discount code usage limit reached")
	case errors.Is(err, pricing.ErrNoItems):
		return model.PriceBreakdown{}, apperr.Validation("no seats or tickets selected")
	default:
		return model.PriceBreakdown{}, apperr.Internal(err)
	}
}

// Quote prices a selection without touching holds, bookings or balances.
func (w *Workflow) Quote(ctx context.Context, requester uint64, req Request) (model.PriceBreakdown, error) {
	req.Selection = req.Selection.Normalize()
	if req.Selection.Empty() {
		return model.PriceBreakdown{}, apperr.Validation("no seats or tickets selected")
	}
	show, strat, err := w.bookableShow(ctx, req.ShowID)
	if err != nil {
		return model.PriceBreakdown{}, err
	}
	return w.price(ctx, show, strat, requester, req)
}

// GetBooking returns one of the requester's bookings.
func (w *Workflow) GetBooking(ctx context.Context, requester, id uint64) (model.Booking, error) {
	b, err := w.Bookings.GetForUser(ctx, id, requester)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return model.Booking{}, apperr.NotFound("booking not found")
	}
	if err != nil {
		return model.Booking{}, apperr.Internal(err)
	}
	return b, nil
}

// ListBookings pages through the requester's bookings, newest first.
func (w *Workflow) ListBookings(ctx context.Context, requester uint64, limit, offset int) ([]model.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	out, err := w.Bookings.ListByUser(ctx, requester, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// ConfirmedBooking loads a confirmed booking with its order snapshot.
func (w *Workflow) ConfirmedBooking(ctx context.Context, bookingID uint64) (model.Booking, model.TransactionSnapshot, error) {
	b, err := w.Bookings.GetByID(ctx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return model.Booking{}, model.TransactionSnapshot{}, apperr.NotFound("booking not found")
	}
	if err != nil {
		return model.Booking{}, model.TransactionSnapshot{}, apperr.Internal(err)
	}
	if b.Status != model.BookingConfirmed {
		return model.Booking{}, model.TransactionSnapshot{}, apperr.Conflict("booking is not confirmed")
	}
	t, err := w.Transactions.GetByBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, model.TransactionSnapshot{}, apperr.Internal(err)
	}
	return b, t.Snapshot, nil
}

// AttachTicket records the rendered ticket URL of a booking.
func (w *Workflow) AttachTicket(ctx context.Context, bookingID uint64, url string) error {
	if err := w.Bookings.SetTicketURL(ctx, bookingID, url); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func logger(ctx context.Context) *logrus.Entry { return logrus.WithContext(ctx) }
