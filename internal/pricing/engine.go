// Package pricing computes reproducible price breakdowns.  The engine is a
// pure function of its input: it performs no I/O and mutates nothing.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

var (
	ErrNoItems           = errors.New("pricing: no seats or tickets selected")
	ErrNoRate            = errors.New("pricing: no rate for category")
	ErrDiscountInvalid   = errors.New("pricing: discount code is inactive or outside its validity window")
	ErrDiscountExhausted = errors.New("pricing: discount code usage limit reached")
)

// Note recorded when a discount code is ignored for a small order.
const NoteBelowMinimum = "order below minimum value for discount"

var hundred = decimal.NewFromInt(100)

// LineItem is a seat or ticket line resolved against the catalog.
type LineItem struct {
	Ref      string
	Name     string
	Category string
	Quantity int
}

// Input is everything a quote depends on.
type Input struct {
	ShowDate time.Time
	VenueID  uint64
	Lines    []LineItem
	Rates    model.RateTable

	AddOnCatalog map[uint64]model.AddOn
	AddOns       []model.AddOnLine

	Discount *model.DiscountCode
	// DiscountUsesByUser counts the requester's confirmed redemptions of Discount.
	DiscountUsesByUser int

	UseLoyalty     bool
	LoyaltyBalance decimal.Decimal

	// Now is the instant discount validity is evaluated at.
	Now time.Time
}

// Engine holds the configuration constants of the pricing rules.
type Engine struct {
	PlatformFee decimal.Decimal
	TaxRate     decimal.Decimal
	Currency    string
	Calendar    Calendar
}

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Quote prices the input.  Intermediate sums keep full precision; the
// discount, tax and total are rounded to two decimals.
func (e Engine) Quote(in Input) (model.PriceBreakdown, error) {
	if len(in.Lines) == 0 {
		return model.PriceBreakdown{}, ErrNoItems
	}
	day := e.Calendar.Classify(in.ShowDate)
	b := model.PriceBreakdown{
		Currency:        e.Currency,
		DayType:         day,
		Lines:           make([]model.PricedLine, 0, len(in.Lines)),
		AddOns:          []model.PricedAddOn{},
		TicketSubtotal:  decimal.Zero,
		AddOnSubtotal:   decimal.Zero,
		PlatformFee:     e.PlatformFee,
		Discount:        decimal.Zero,
		LoyaltyRedeemed: decimal.Zero,
		TaxRate:         e.TaxRate,
	}

	for _, li := range in.Lines {
		rate, ok := in.Rates[li.Category]
		if !ok {
			return model.PriceBreakdown{}, fmt.Errorf("%w %q", ErrNoRate, li.Category)
		}
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		unit := rate.PriceFor(day)
		amount := unit.Mul(decimal.NewFromInt(int64(qty)))
		b.Lines = append(b.Lines, model.PricedLine{
			Ref:       li.Ref,
			Name:      li.Name,
			Category:  li.Category,
			Quantity:  qty,
			UnitPrice: unit,
			Amount:    amount,
		})
		b.TicketSubtotal = b.TicketSubtotal.Add(amount)
	}

	for _, req := range in.AddOns {
		a, ok := in.AddOnCatalog[req.AddOnID]
		if !ok || !a.Active || a.VenueID != in.VenueID || req.Quantity <= 0 {
			b.RejectedAddOns = append(b.RejectedAddOns, req.AddOnID)
			continue
		}
		amount := a.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
		b.AddOns = append(b.AddOns, model.PricedAddOn{
			ID:        a.ID,
			Name:      a.Name,
			Quantity:  req.Quantity,
			UnitPrice: a.UnitPrice,
			Amount:    amount,
		})
		b.AddOnSubtotal = b.AddOnSubtotal.Add(amount)
	}

	b.Subtotal = b.TicketSubtotal.Add(b.AddOnSubtotal).Add(b.PlatformFee)

	if d := in.Discount; d != nil {
		if !d.ValidAt(in.Now) {
			return model.PriceBreakdown{}, ErrDiscountInvalid
		}
		if d.Exhausted(in.DiscountUsesByUser) {
			return model.PriceBreakdown{}, ErrDiscountExhausted
		}
		b.DiscountID = d.ID
		b.DiscountCode = d.Code
		if d.MinOrderValue.Valid && b.Subtotal.LessThan(d.MinOrderValue.Decimal) {
			b.DiscountNote = NoteBelowMinimum
		} else {
			b.Discount = round2(discountAmount(*d, b.Subtotal))
		}
	}

	remaining := b.Subtotal.Sub(b.Discount)
	if in.UseLoyalty && in.LoyaltyBalance.IsPositive() {
		b.LoyaltyRedeemed = decimal.Min(in.LoyaltyBalance, remaining)
	}

	b.Taxable = remaining.Sub(b.LoyaltyRedeemed)
	b.Tax = round2(b.Taxable.Mul(e.TaxRate))
	b.Total = round2(b.Taxable.Add(b.Tax))
	return b, nil
}

// discountAmount never exceeds the subtotal it applies to.
func discountAmount(d model.DiscountCode, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case model.DiscountPercent:
		amount = subtotal.Mul(d.Value).Div(hundred)
		if d.MaxDiscount.Valid && amount.GreaterThan(d.MaxDiscount.Decimal) {
			amount = d.MaxDiscount.Decimal
		}
	case model.DiscountFlat:
		amount = d.Value
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal)
}
