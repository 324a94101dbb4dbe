package model

import "github.com/shopspring/decimal"

// PricedLine is one seat or ticket line of a breakdown.
type PricedLine struct {
	Ref       string          `json:"ref"`
	Name      string          `json:"name,omitempty"`
	Category  string          `json:"category"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// PricedAddOn is one add-on line of a breakdown.
type PricedAddOn struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

// PriceBreakdown is the auditable result of pricing a selection.  It is
// stored verbatim in the payment transaction snapshot and never
// re-derived during verification.
type PriceBreakdown struct {
	Currency        string          `json:"currency"`
	DayType         DayType         `json:"day_type"`
	Lines           []PricedLine    `json:"lines"`
	AddOns          []PricedAddOn   `json:"add_ons"`
	RejectedAddOns  []uint64        `json:"rejected_add_ons,omitempty"`
	TicketSubtotal  decimal.Decimal `json:"ticket_subtotal"`
	AddOnSubtotal   decimal.Decimal `json:"add_on_subtotal"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountID      uint64          `json:"discount_id,omitempty"`
	DiscountCode    string          `json:"discount_code,omitempty"`
	DiscountNote    string          `json:"discount_note,omitempty"`
	Discount        decimal.Decimal `json:"discount"`
	LoyaltyRedeemed decimal.Decimal `json:"loyalty_redeemed"`
	Taxable         decimal.Decimal `json:"taxable"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
}

// MinorUnits returns the total in the currency's minor unit (paise, cents).
func (b PriceBreakdown) MinorUnits() int64 {
	return b.Total.Shift(2).Round(0).IntPart()
}
