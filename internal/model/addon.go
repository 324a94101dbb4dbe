package model

import "github.com/shopspring/decimal"

// AddOn is an optional item (snack combo, parking, merchandise) sold with a
// booking.  Add-ons belong to a venue and can only be attached to shows at
// that venue.
//
// Fields:
//
//	ID        – primary key identifier.
//	VenueID   – venue that sells the add-on.
//	Name      – display name.
//	UnitPrice – price per unit.
//	Active    – inactive add-ons are not sold.
type AddOn struct {
	ID        uint64          // addons.id
	VenueID   uint64          // addons.venue_id
	Name      string          // addons.name
	UnitPrice decimal.Decimal // addons.unit_price
	Active    bool            // addons.is_active
}

// AddOnLine is a requested add-on with its quantity.
type AddOnLine struct {
	AddOnID  uint64 `json:"add_on_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1,max=50"`
}
