package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// OrderResult is returned to the client to continue checkout with the
// gateway.
type OrderResult struct {
	BookingID      uint64               `json:"booking_id"`
	BookingNumber  string               `json:"booking_number"`
	Status         model.BookingStatus  `json:"status"`
	Gateway        string               `json:"gateway"`
	GatewayOrderID string               `json:"gateway_order_id"`
	Receipt        string               `json:"receipt"`
	Amount         decimal.Decimal      `json:"amount"`
	AmountMinor    int64                `json:"amount_minor"`
	Currency       string               `json:"currency"`
	HoldExpiresAt  time.Time            `json:"hold_expires_at"`
	Breakdown      model.PriceBreakdown `json:"breakdown"`
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// CreateOrder holds the selection, prices it, opens a gateway order and
// persists a pending booking with its payment transaction.
//
// Nothing is persisted when the gateway call fails.  When the gateway
// succeeds but persistence fails the gateway order is left orphaned; its
// receipt is logged for reconciliation.
func (w *Workflow) CreateOrder(ctx context.Context, requester uint64, req Request) (OrderResult, error) {
	req.Selection = req.Selection.Normalize()
	if req.Selection.Empty() {
		return OrderResult{}, apperr.Validation("no seats or tickets selected")
	}
	show, strat, err := w.bookableShow(ctx, req.ShowID)
	if err != nil {
		return OrderResult{}, err
	}

	// Re-check even when the client already locked: holds may have lapsed.
	if _, err := w.Reservations.Lock(ctx, show.ID, requester, req.Selection); err != nil {
		return OrderResult{}, err
	}

	breakdown, err := w.price(ctx, show, strat, requester, req)
	if err != nil {
		return OrderResult{}, err
	}
	if !breakdown.Total.IsPositive() {
		return OrderResult{}, apperr.Validation("order total must be greater than zero")
	}

	receipt := newReceipt()
	log := logger(ctx).WithFields(logrus.Fields{"user_id": requester, "show_id": show.ID, "receipt": receipt})
	gwOrder, err := w.Gateway.CreateOrder(ctx, breakdown.MinorUnits(), receipt, map[string]string{
		"show_id": strconv.FormatUint(show.ID, 10),
		"user_id": strconv.FormatUint(requester, 10),
	})
	if err != nil {
		log.WithError(err).Warn("gateway order creation failed")
		return OrderResult{}, apperr.Upstream(err.Error(), err)
	}
	log = log.WithField("gateway_order_id", gwOrder.ID)

	number, err := w.Numbers.Next(ctx)
	if err != nil {
		log.WithError(err).Error("orphaned gateway order: booking number unavailable")
		return OrderResult{}, apperr.Internal(err)
	}

	items, addOns := snapshotItems(breakdown)
	now := w.Clock.Now()
	booking := model.Booking{
		BookingNumber: number,
		UserID:        requester,
		ShowID:        show.ID,
		Kind:          show.Kind,
		Status:        model.BookingPending,
		Items:         items,
		AddOns:        addOns,
		TotalAmount:   breakdown.Total,
		Currency:      breakdown.Currency,
		PaymentInfo: model.PaymentInfo{
			Gateway:         w.Gateway.Name(),
			GatewayOrderID:  gwOrder.ID,
			Receipt:         receipt,
			Amount:          breakdown.Total,
			Currency:        breakdown.Currency,
			DiscountCode:    breakdown.DiscountCode,
			Discount:        breakdown.Discount,
			LoyaltyRedeemed: breakdown.LoyaltyRedeemed,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	txn := model.Transaction{
		UserID:         requester,
		GatewayOrderID: gwOrder.ID,
		Receipt:        receipt,
		Amount:         breakdown.Total,
		Currency:       breakdown.Currency,
		Status:         model.TxPending,
		Snapshot: model.TransactionSnapshot{
			ShowID:    show.ID,
			Kind:      show.Kind,
			Title:     show.Title,
			StartsAt:  show.StartsAt,
			Selection: req.Selection,
			Items:     items,
			AddOns:    addOns,
			Breakdown: breakdown,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var expiresAt time.Time
	err = w.Tx.WithTx(ctx, func(ctx context.Context) error {
		show, strat, err := w.Reservations.LockShow(ctx, show.ID)
		if err != nil {
			return err
		}
		if _, err := strat.Sweep(ctx, show.ID, now); err != nil {
			return err
		}
		expiresAt = now.Add(w.Reservations.TTL())
		if _, err := strat.Claim(ctx, show, req.Selection, requester, now, expiresAt); err != nil {
			return err
		}
		if err := w.Bookings.Create(ctx, &booking); err != nil {
			return err
		}
		if err := strat.Consume(ctx, show, requester, req.Selection); err != nil {
			return err
		}
		txn.BookingID = booking.ID
		return w.Transactions.Create(ctx, &txn)
	})
	if err != nil {
		log.WithError(err).Error("orphaned gateway order: booking was not persisted")
		return OrderResult{}, apperr.From(err)
	}

	log.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"booking_number": booking.BookingNumber,
		"total":          breakdown.Total.StringFixed(2),
	}).Info("order created")

	return OrderResult{
		BookingID:      booking.ID,
		BookingNumber:  booking.BookingNumber,
		Status:         booking.Status,
		Gateway:        w.Gateway.Name(),
		GatewayOrderID: gwOrder.ID,
		Receipt:        receipt,
		Amount:         breakdown.Total,
		AmountMinor:    breakdown.MinorUnits(),
		Currency:       breakdown.Currency,
		HoldExpiresAt:  expiresAt,
		Breakdown:      breakdown,
	}, nil
}

func snapshotItems(b model.PriceBreakdown) (model.BookingItems, model.BookedAddOns) {
	items := make(model.BookingItems, 0, len(b.Lines))
	for _, l := range b.Lines {
		items = append(items, model.BookingItem{
			ID:        l.Ref,
			Category:  l.Category,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	addOns := make(model.BookedAddOns, 0, len(b.AddOns))
	for _, a := range b.AddOns {
		addOns = append(addOns, model.BookedAddOn{ID: a.ID, Name: a.Name, UnitPrice: a.UnitPrice, Quantity: a.Quantity})
	}
	return items, addOns
}
