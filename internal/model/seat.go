package model

// SeatEntry is a physical seat in the catalog of a seated show.
//
// Fields:
//
//	ShowID      – owning show.
//	SeatKey     – seat label such as "A1", unique per show.
//	Category    – price category tag looked up in the rate table.
//	OnlineQuota – whether the seat is sold online; bookings made before
//	              the flag was cleared still count against inventory.
type SeatEntry struct {
	ShowID      uint64 // show_seats.show_id
	SeatKey     string // show_seats.seat_key
	Category    string // show_seats.category
	OnlineQuota bool   // show_seats.online_quota
}
