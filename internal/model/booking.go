package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is persisted as a small integer.
type BookingStatus int8

const (
	BookingPending   BookingStatus = 0
	BookingConfirmed BookingStatus = 1
	BookingCancelled BookingStatus = 2
	// BookingCompleted is set by post-show housekeeping.
	BookingCompleted BookingStatus = 3
)

func (s BookingStatus) String() string {
	switch s {
	case BookingPending:
		return "pending"
	case BookingConfirmed:
		return "confirmed"
	case BookingCancelled:
		return "cancelled"
	case BookingCompleted:
		return "completed"
	}
	return "unknown"
}

func (s BookingStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *BookingStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = BookingPending
	case "confirmed":
		*s = BookingConfirmed
	case "cancelled":
		*s = BookingCancelled
	case "completed":
		*s = BookingCompleted
	default:
		return fmt.Errorf("unknown booking status %q", b)
	}
	return nil
}

// Booking records a purchase attempt and its outcome.  Items and AddOns are
// snapshots taken at order time; they do not follow later catalog or rate
// changes.
//
// Fields:
//
//	BookingNumber – BK + YYYYMMDD + daily sequence.
//	Status        – pending → confirmed | cancelled.
//	PaymentInfo   – gateway references and redemption metadata.
//	TicketURL     – rendered ticket artifact, set after confirmation.
type Booking struct {
	ID            uint64          `json:"id"`             // bookings.id
	BookingNumber string          `json:"booking_number"` // bookings.booking_number
	UserID        uint64          `json:"user_id"`        // bookings.user_id
	ShowID        uint64          `json:"show_id"`        // bookings.show_id
	Kind          ShowKind        `json:"kind"`           // bookings.kind
	Status        BookingStatus   `json:"status"`         // bookings.status
	Items         BookingItems    `json:"items"`          // bookings.items (JSON)
	AddOns        BookedAddOns    `json:"add_ons"`        // bookings.addons (JSON)
	TotalAmount   decimal.Decimal `json:"total_amount"`   // bookings.total_amount
	Currency      string          `json:"currency"`       // bookings.currency
	PaymentInfo   PaymentInfo     `json:"payment_info"`   // bookings.payment_info (JSON)
	TicketURL     *string         `json:"ticket_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	DeletedAt     *time.Time      `json:"-"`
}

// BookingItem is the snapshot of one seat or ticket line.
type BookingItem struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type BookingItems []BookingItem

func (b BookingItems) Value() (driver.Value, error) { return jsonValue(b) }
func (b *BookingItems) Scan(src any) error          { return jsonScan(src, b) }

// Labels lists the display label of each item.
func (b BookingItems) Labels() []string {
	out := make([]string, 0, len(b))
	for _, it := range b {
		if it.Name != "" {
			out = append(out, it.Name)
			continue
		}
		out = append(out, it.ID)
	}
	return out
}

// BookedAddOn is the snapshot of one add-on line.
type BookedAddOn struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type BookedAddOns []BookedAddOn

func (b BookedAddOns) Value() (driver.Value, error) { return jsonValue(b) }
func (b *BookedAddOns) Scan(src any) error          { return jsonScan(src, b) }

// PaymentInfo is the payment blob nested in a booking.
type PaymentInfo struct {
	Gateway          string          `json:"gateway"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	Receipt          string          `json:"receipt"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	DiscountCode     string          `json:"discount_code,omitempty"`
	Discount         decimal.Decimal `json:"discount"`
	LoyaltyRedeemed  decimal.Decimal `json:"loyalty_redeemed"`
	VerifiedAt       *time.Time      `json:"verified_at,omitempty"`
}

func (p PaymentInfo) Value() (driver.Value, error) { return jsonValue(p) }
func (p *PaymentInfo) Scan(src any) error          { return jsonScan(src, p) }
