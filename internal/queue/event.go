// Package queue publishes and consumes booking domain events over
// RabbitMQ.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// BookingConfirmedEvent is published when a payment has been verified.
// It carries enough of the order snapshot for downstream consumers to log,
// notify or run analytics without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID       uint64         `json:"booking_id"`
	BookingNumber   string         `json:"booking_number"`
	UserID          uint64         `json:"user_id"`
	ShowID          uint64         `json:"show_id"`
	Kind            model.ShowKind `json:"kind"`
	Title           string         `json:"title"`
	StartsAt        string         `json:"starts_at"`
	Items           []string       `json:"items"`
	AmountMinor     int64          `json:"amount_minor"`
	Currency        string         `json:"currency"`
	Discount        string         `json:"discount"`
	LoyaltyRedeemed string         `json:"loyalty_redeemed"`
	ConfirmedAt     string         `json:"confirmed_at"`
}

func NewBookingConfirmedEvent(b model.Booking, snap model.TransactionSnapshot) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:       b.ID,
		BookingNumber:   b.BookingNumber,
		UserID:          b.UserID,
		ShowID:          b.ShowID,
		Kind:            b.Kind,
		Title:           snap.Title,
		StartsAt:        snap.StartsAt.UTC().Format(time.RFC3339),
		Items:           b.Items.Labels(),
		AmountMinor:     snap.Breakdown.MinorUnits(),
		Currency:        b.Currency,
		Discount:        snap.Breakdown.Discount.StringFixed(2),
		LoyaltyRedeemed: snap.Breakdown.LoyaltyRedeemed.StringFixed(2),
	}
	if b.ConfirmedAt != nil {
		ev.ConfirmedAt = b.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	return ev
}
