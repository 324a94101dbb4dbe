package model

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TxCreated TransactionStatus = "created"
	TxPending TransactionStatus = "pending"
	TxSuccess TransactionStatus = "success"
	TxFailed  TransactionStatus = "failed"
)

// Transaction is one gateway charge intent, linked 1:1 to a booking.
type Transaction struct {
	ID               uint64              `json:"id"`
	BookingID        uint64              `json:"booking_id"`
	UserID           uint64              `json:"user_id"`
	GatewayOrderID   string              `json:"gateway_order_id"`
	GatewayPaymentID *string             `json:"gateway_payment_id,omitempty"`
	GatewaySignature *string             `json:"-"`
	Receipt          string              `json:"receipt"`
	Amount           decimal.Decimal     `json:"amount"`
	Currency         string              `json:"currency"`
	Status           TransactionStatus   `json:"status"`
	Snapshot         TransactionSnapshot `json:"snapshot"`
	FailureReason    *string             `json:"failure_reason,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// TransactionSnapshot is the source of truth read back at verification:
// the full breakdown plus the item snapshot, captured at order time.
type TransactionSnapshot struct {
	ShowID    uint64         `json:"show_id"`
	Kind      ShowKind       `json:"kind"`
	Title     string         `json:"title"`
	StartsAt  time.Time      `json:"starts_at"`
	Selection Selection      `json:"selection"`
	Items     BookingItems   `json:"items"`
	AddOns    BookedAddOns   `json:"add_ons"`
	Breakdown PriceBreakdown `json:"breakdown"`
}

func (s TransactionSnapshot) Value() (driver.Value, error) { return jsonValue(s) }
func (s *TransactionSnapshot) Scan(src any) error          { return jsonScan(src, s) }
