package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoyaltyBalance is a customer's redeemable point balance.  One point is
// worth one currency unit.  It is only ever debited inside the unit of work
// that confirms a payment.
type LoyaltyBalance struct {
	UserID    uint64          // loyalty_balances.user_id
	Balance   decimal.Decimal // loyalty_balances.balance
	UpdatedAt time.Time       // loyalty_balances.updated_at
}
