package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LoyaltyRepo reads and debits loyalty point balances.
type LoyaltyRepo struct {
	db *sql.DB
}

func NewLoyaltyRepo(db *sql.DB) *LoyaltyRepo { return &LoyaltyRepo{db: db} }

// Balance returns the user's balance, zero when no row exists.
func (r *LoyaltyRepo) Balance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	const q = `SELECT balance FROM loyalty_balances WHERE user_id = ?`
	var bal decimal.Decimal
	err := conn(ctx, r.db).QueryRowContext(ctx, q, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	return bal, err
}

// Debit subtracts amount when the balance covers it.  The conditional
// update keeps the balance from going negative under concurrent debits.
func (r *LoyaltyRepo) Debit(ctx context.Context, userID uint64, amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return nil
	}
	const q = `UPDATE loyalty_balances SET balance = balance - ?, updated_at = ?
	           WHERE user_id = ? AND balance >= ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, amount, now.UTC(), userID, amount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
