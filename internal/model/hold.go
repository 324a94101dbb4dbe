package model

import "time"

// Hold is a time-boxed claim on inventory pending payment.  For seated
// shows ItemKey is the seat label and Quantity is 1; for events ItemKey is
// the ticket category key and Quantity the number of tickets held.
//
// Fields:
//
//	ShowID    – show the hold belongs to.
//	ItemKey   – seat label or ticket category key.
//	HolderID  – requester owning the hold.
//	Quantity  – units held.
//	Token     – opaque correlation token.
//	CreatedAt – when the hold was first taken.
//	ExpiresAt – when the hold stops being live.
type Hold struct {
	ShowID    uint64
	ItemKey   string
	HolderID  uint64
	Quantity  int
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the hold is still in force at now.
func (h Hold) Live(now time.Time) bool { return h.ExpiresAt.After(now) }
