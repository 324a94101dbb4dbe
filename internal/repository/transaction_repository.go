package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// TransactionRepo persists gateway charge intents.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, booking_id, user_id, gateway_order_id, gateway_payment_id, gateway_signature,
	receipt, amount, currency, status, snapshot, failure_reason, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (model.Transaction, error) {
	var (
		t                          model.Transaction
		paymentID, signature, fail sql.NullString
	)
	err := row.Scan(&t.ID, &t.BookingID, &t.UserID, &t.GatewayOrderID, &paymentID, &signature,
		&t.Receipt, &t.Amount, &t.Currency, &t.Status, &t.Snapshot, &fail, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return model.Transaction{}, err
	}
	t.GatewayPaymentID = strPtr(paymentID)
	t.GatewaySignature = strPtr(signature)
	t.FailureReason = strPtr(fail)
	return t, nil
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Create inserts t and populates its ID.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	const q = `INSERT INTO payment_transactions (booking_id, user_id, gateway_order_id, receipt, amount, currency,
	           status, snapshot, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, t.BookingID, t.UserID, t.GatewayOrderID, t.Receipt, t.Amount,
		t.Currency, t.Status, t.Snapshot, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// LockByOrderForUser reads the transaction of a gateway order FOR UPDATE.
// Orders created by other users are reported as not found.
func (r *TransactionRepo) LockByOrderForUser(ctx context.Context, orderID string, userID uint64) (model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions
	      WHERE gateway_order_id = ? AND user_id = ? FOR UPDATE`
	return scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, q, orderID, userID))
}

func (r *TransactionRepo) LockByOrder(ctx context.Context, orderID string) (model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE gateway_order_id = ? FOR UPDATE`
	return scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, q, orderID))
}

func (r *TransactionRepo) GetByBooking(ctx context.Context, bookingID uint64) (model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE booking_id = ?`
	return scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, q, bookingID))
}

// MarkSuccess records the verified gateway payment.  A transaction that
// already succeeded yields ErrConflict.
func (r *TransactionRepo) MarkSuccess(ctx context.Context, id uint64, paymentID, signature string, now time.Time) error {
	const q = `UPDATE payment_transactions
	           SET status = ?, gateway_payment_id = ?, gateway_signature = ?, failure_reason = NULL, updated_at = ?
	           WHERE id = ? AND status <> ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, model.TxSuccess, paymentID, signature, now.UTC(), id, model.TxSuccess)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// MarkFailed records a failure reason on a gateway order unless it already
// succeeded.  It reports whether a row changed.
func (r *TransactionRepo) MarkFailed(ctx context.Context, orderID, reason string, now time.Time) (bool, error) {
	const q = `UPDATE payment_transactions SET status = ?, failure_reason = ?, updated_at = ?
	           WHERE gateway_order_id = ? AND status <> ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, model.TxFailed, reason, now.UTC(), orderID, model.TxSuccess)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LockByBookings takes row locks on the transactions of the given
// bookings.  Callers that go on to touch the bookings lock these first,
// the same order VerifyPayment uses.
func (r *TransactionRepo) LockByBookings(ctx context.Context, bookingIDs []uint64) error {
	if len(bookingIDs) == 0 {
		return nil
	}
	args := make([]any, 0, len(bookingIDs))
	for _, id := range bookingIDs {
		args = append(args, id)
	}
	q := `SELECT id FROM payment_transactions WHERE booking_id IN (` + placeholders(len(bookingIDs)) + `) ORDER BY id FOR UPDATE`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FailByBookings marks the unsettled transactions of the given bookings
// as failed.
func (r *TransactionRepo) FailByBookings(ctx context.Context, bookingIDs []uint64, reason string, now time.Time) (int64, error) {
	if len(bookingIDs) == 0 {
		return 0, nil
	}
	args := []any{model.TxFailed, reason, now.UTC(), model.TxSuccess}
	for _, id := range bookingIDs {
		args = append(args, id)
	}
	q := `UPDATE payment_transactions SET status = ?, failure_reason = ?, updated_at = ?
	      WHERE status <> ? AND booking_id IN (` + placeholders(len(bookingIDs)) + `)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
