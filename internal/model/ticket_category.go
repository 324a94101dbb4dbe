package model

import "strconv"

// TicketCategory is a finite ticket allotment of an event.  Availability
// is a remaining count rather than per-seat identity.
//
// Fields:
//
//	ID            – primary key identifier.
//	ShowID        – owning event.
//	Name          – display name ("Floor", "Balcony").
//	Category      – price category tag looked up in the rate table.
//	TotalQuantity – tickets in the allotment.
type TicketCategory struct {
	ID            uint64 // ticket_categories.id
	ShowID        uint64 // ticket_categories.show_id
	Name          string // ticket_categories.name
	Category      string // ticket_categories.category
	TotalQuantity int    // ticket_categories.total_quantity
}

// Key returns the inventory identifier used in holds and booking items.
func (c TicketCategory) Key() string { return CategoryKey(c.ID) }

// CategoryKey formats a ticket category id as an inventory key.
func CategoryKey(id uint64) string { return strconv.FormatUint(id, 10) }
