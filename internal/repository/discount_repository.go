package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// DiscountRepo reads discount codes and records confirmed redemptions.
type DiscountRepo struct {
	db *sql.DB
}

func NewDiscountRepo(db *sql.DB) *DiscountRepo { return &DiscountRepo{db: db} }

const discountColumns = `id, code, discount_type, discount_value, max_discount, min_order_value,
	valid_from, valid_to, is_active, total_usage_limit, limit_per_user, used_count`

func scanDiscount(row interface{ Scan(...any) error }) (model.DiscountCode, error) {
	var (
		d             model.DiscountCode
		total, byUser sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.Code, &d.Type, &d.Value, &d.MaxDiscount, &d.MinOrderValue,
		&d.ValidFrom, &d.ValidTo, &d.Active, &total, &byUser, &d.UsedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DiscountCode{}, ErrDiscountNotFound
	}
	if err != nil {
		return model.DiscountCode{}, err
	}
	if total.Valid {
		v := int(total.Int64)
		d.TotalUsageLimit = &v
	}
	if byUser.Valid {
		v := int(byUser.Int64)
		d.LimitPerUser = &v
	}
	return d, nil
}

// GetByCode looks a code up case-insensitively.
func (r *DiscountRepo) GetByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	q := `SELECT ` + discountColumns + ` FROM discount_codes WHERE code = ?`
	return scanDiscount(conn(ctx, r.db).QueryRowContext(ctx, q, strings.ToUpper(strings.TrimSpace(code))))
}

func (r *DiscountRepo) LockByID(ctx context.Context, id uint64) (model.DiscountCode, error) {
	q := `SELECT ` + discountColumns + ` FROM discount_codes WHERE id = ? FOR UPDATE`
	return scanDiscount(conn(ctx, r.db).QueryRowContext(ctx, q, id))
}

// CountByUser returns the confirmed redemptions of a code by one user.
func (r *DiscountRepo) CountByUser(ctx context.Context, discountID, userID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM discount_redemptions WHERE discount_id = ? AND user_id = ?`
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, q, discountID, userID).Scan(&n)
	return n, err
}

// Redeem records one confirmed use of a code for a booking.  A booking is
// redeemed at most once; a repeat is reported as ErrConflict.
func (r *DiscountRepo) Redeem(ctx context.Context, discountID, userID, bookingID uint64, amount decimal.Decimal, now time.Time) error {
	c := conn(ctx, r.db)
	const ins = `INSERT IGNORE INTO discount_redemptions (discount_id, user_id, booking_id, amount, created_at)
	             VALUES (?, ?, ?, ?, ?)`
	res, err := c.ExecContext(ctx, ins, discountID, userID, bookingID, amount, now.UTC())
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return err
	}
	const upd = `UPDATE discount_codes SET used_count = used_count + 1 WHERE id = ?`
	_, err = c.ExecContext(ctx, upd, discountID)
	return err
}
