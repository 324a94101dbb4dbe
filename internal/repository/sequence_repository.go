package repository

import (
	"context"
	"database/sql"
)

// BookingSequenceRepo hands out per-day booking sequence numbers from
// MySQL.  The upsert and LAST_INSERT_ID run as one statement, so
// concurrent callers never receive the same value.
type BookingSequenceRepo struct {
	db *sql.DB
}

func NewBookingSequenceRepo(db *sql.DB) *BookingSequenceRepo { return &BookingSequenceRepo{db: db} }

// Next increments and returns the counter of day (YYYYMMDD).
func (r *BookingSequenceRepo) Next(ctx context.Context, day string) (int64, error) {
	const q = `INSERT INTO booking_sequences (day, last_value) VALUES (?, LAST_INSERT_ID(1))
	           ON DUPLICATE KEY UPDATE last_value = LAST_INSERT_ID(last_value + 1)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, day)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
