package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// BookingRepo persists bookings and their item rows.  The JSON item
// snapshot on the booking is what customers see; booking_items mirrors it
// in relational form so inventory queries can find booked seats and
// quantities per show.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, booking_number, user_id, show_id, kind, status, items, addons, total_amount,
	currency, payment_info, ticket_url, created_at, updated_at, confirmed_at, cancelled_at, deleted_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b                               model.Booking
		ticketURL                       sql.NullString
		confirmed, cancelled, deletedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.BookingNumber, &b.UserID, &b.ShowID, &b.Kind, &b.Status, &b.Items, &b.AddOns,
		&b.TotalAmount, &b.Currency, &b.PaymentInfo, &ticketURL, &b.CreatedAt, &b.UpdatedAt,
		&confirmed, &cancelled, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	if ticketURL.Valid {
		u := ticketURL.String
		b.TicketURL = &u
	}
	b.ConfirmedAt = timePtr(confirmed)
	b.CancelledAt = timePtr(cancelled)
	b.DeletedAt = timePtr(deletedAt)
	return b, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Create inserts a booking and its item rows and populates b.ID.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	c := conn(ctx, r.db)
	const q = `INSERT INTO bookings (booking_number, user_id, show_id, kind, status, items, addons, total_amount,
	           currency, payment_info, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := c.ExecContext(ctx, q, b.BookingNumber, b.UserID, b.ShowID, b.Kind, b.Status, b.Items, b.AddOns,
		b.TotalAmount, b.Currency, b.PaymentInfo, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	if len(b.Items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_items (booking_id, show_id, item_key, category, unit_price, quantity) VALUES `)
	args := make([]any, 0, len(b.Items)*6)
	for i, it := range b.Items {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, b.ID, b.ShowID, it.ID, it.Category, it.UnitPrice, it.Quantity)
	}
	_, err = c.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, id))
}

// GetForUser returns a booking owned by userID.  Bookings of other users
// are reported as not found.
func (r *BookingRepo) GetForUser(ctx context.Context, id, userID uint64) (model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND user_id = ? AND deleted_at IS NULL`
	return scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, id, userID))
}

// LockByID reads the booking FOR UPDATE inside the caller's transaction.
func (r *BookingRepo) LockByID(ctx context.Context, id uint64) (model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	return scanBooking(conn(ctx, r.db).QueryRowContext(ctx, q, id))
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? AND deleted_at IS NULL
	      ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BookedSeats lists the seat keys referenced by pending or confirmed
// bookings of a show.  Seats later removed from the online quota still
// count.
func (r *BookingRepo) BookedSeats(ctx context.Context, showID uint64) ([]string, error) {
	const q = `SELECT bi.item_key FROM booking_items bi
	           JOIN bookings b ON b.id = bi.booking_id
	           WHERE bi.show_id = ? AND b.status IN (?, ?)`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, showID, model.BookingPending, model.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	return scanKeys(rows)
}

// BookedQuantities sums ticket quantities of pending or confirmed
// bookings per category key.
func (r *BookingRepo) BookedQuantities(ctx context.Context, showID uint64) (map[string]int, error) {
	const q = `SELECT bi.item_key, SUM(bi.quantity) FROM booking_items bi
	           JOIN bookings b ON b.id = bi.booking_id
	           WHERE bi.show_id = ? AND b.status IN (?, ?)
	           GROUP BY bi.item_key`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, showID, model.BookingPending, model.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			qty int
		)
		if err := rows.Scan(&key, &qty); err != nil {
			return nil, err
		}
		out[key] = qty
	}
	return out, rows.Err()
}

// MarkConfirmed flips a pending booking to confirmed.  It returns
// ErrConflict when the booking is no longer pending.
func (r *BookingRepo) MarkConfirmed(ctx context.Context, id uint64, info model.PaymentInfo, now time.Time) error {
	const q = `UPDATE bookings SET status = ?, payment_info = ?, confirmed_at = ?, updated_at = ?
	           WHERE id = ? AND status = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, model.BookingConfirmed, info, now.UTC(), now.UTC(), id, model.BookingPending)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// StalePending returns the ids of pending bookings created at or before
// cutoff.  It takes no row locks; CancelPending re-checks the status.
func (r *BookingRepo) StalePending(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	const q = `SELECT id FROM bookings WHERE status = ? AND created_at <= ? ORDER BY id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, model.BookingPending, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CancelPending flips the given bookings to cancelled when still pending
// and returns how many changed.
func (r *BookingRepo) CancelPending(ctx context.Context, ids []uint64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{model.BookingCancelled, now.UTC(), now.UTC(), model.BookingPending}
	for _, id := range ids {
		args = append(args, id)
	}
	q := `UPDATE bookings SET status = ?, cancelled_at = ?, updated_at = ?
	      WHERE status = ? AND id IN (` + placeholders(len(ids)) + `)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetTicketURL records the rendered ticket artifact of a booking.
func (r *BookingRepo) SetTicketURL(ctx context.Context, id uint64, url string) error {
	const q = `UPDATE bookings SET ticket_url = ? WHERE id = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, url, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBookingNotFound
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}
