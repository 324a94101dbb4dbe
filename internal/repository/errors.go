// Package repository implements MySQL persistence for the booking core.
// Sentinel errors let services distinguish failure scenarios; they are
// translated into the application error taxonomy above this layer.
package repository

import "errors"

// ErrConflict is returned when an update cannot be applied because of
// the current state of the row, such as verifying a transaction that
// already succeeded.
var ErrConflict = errors.New("conflict")

var (
	ErrShowNotFound        = errors.New("show not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDiscountNotFound    = errors.New("discount code not found")
	// ErrInsufficientBalance is returned when a loyalty debit exceeds the
	// customer's balance.
	ErrInsufficientBalance = errors.New("insufficient loyalty balance")
)
