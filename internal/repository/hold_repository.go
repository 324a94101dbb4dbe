package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// HoldRepo provides data access to a hold table.  Seat holds live in
// seat_holds with a uniqueness constraint on (show_id, seat_key); ticket
// holds live in ticket_holds, one row per (show_id, category_id, user_id)
// carrying a quantity.  All comparisons use the caller's clock in UTC.
type HoldRepo struct {
	db     *sql.DB
	table  string
	keyCol string
	qtyCol string // "1" for seat holds
}

func NewSeatHoldRepo(db *sql.DB) *HoldRepo {
	return &HoldRepo{db: db, table: "seat_holds", keyCol: "seat_key", qtyCol: "1"}
}

func NewTicketHoldRepo(db *sql.DB) *HoldRepo {
	return &HoldRepo{db: db, table: "ticket_holds", keyCol: "category_id", qtyCol: "quantity"}
}

// Expire removes the expired holds of a show and returns their keys.
// When there are no expired holds it returns an empty slice.
func (r *HoldRepo) Expire(ctx context.Context, showID uint64, now time.Time) ([]string, error) {
	c := conn(ctx, r.db)
	rows, err := c.QueryContext(ctx,
		`SELECT `+r.keyCol+` FROM `+r.table+` WHERE show_id = ? AND expires_at <= ?`,
		showID, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	keys, err := scanKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	if _, err := c.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE show_id = ? AND expires_at <= ?`,
		showID, now.UTC(),
	); err != nil {
		return nil, err
	}
	return keys, nil
}

// ExpireAll removes every expired hold regardless of show.
func (r *HoldRepo) ExpireAll(ctx context.Context, now time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM `+r.table+` WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Live lists the holds of a show that have not expired at now.
func (r *HoldRepo) Live(ctx context.Context, showID uint64, now time.Time) ([]model.Hold, error) {
	q := `SELECT show_id, ` + r.keyCol + `, user_id, ` + r.qtyCol + `, hold_token, created_at, expires_at
	      FROM ` + r.table + ` WHERE show_id = ? AND expires_at > ? ORDER BY ` + r.keyCol
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, showID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holds []model.Hold
	for rows.Next() {
		var h model.Hold
		if err := rows.Scan(&h.ShowID, &h.ItemKey, &h.HolderID, &h.Quantity, &h.Token, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

// Upsert inserts holds or extends the caller's existing ones.  Callers
// hold the show row lock and have already verified that no other holder
// has a live hold on the same key, so an existing row always belongs to
// the same holder.  Passing an empty slice has no effect.
func (r *HoldRepo) Upsert(ctx context.Context, holds []model.Hold) error {
	if len(holds) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	if r.qtyCol == "1" {
		sb.WriteString(`INSERT INTO ` + r.table + ` (show_id, seat_key, user_id, hold_token, created_at, expires_at) VALUES `)
		for i, h := range holds {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?)")
			args = append(args, h.ShowID, h.ItemKey, h.HolderID, holdToken(h), h.CreatedAt.UTC(), h.ExpiresAt.UTC())
		}
		sb.WriteString(` ON DUPLICATE KEY UPDATE user_id = VALUES(user_id), expires_at = VALUES(expires_at)`)
	} else {
		sb.WriteString(`INSERT INTO ` + r.table + ` (show_id, category_id, user_id, quantity, hold_token, created_at, expires_at) VALUES `)
		for i, h := range holds {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, h.ShowID, h.ItemKey, h.HolderID, h.Quantity, holdToken(h), h.CreatedAt.UTC(), h.ExpiresAt.UTC())
		}
		sb.WriteString(` ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), expires_at = VALUES(expires_at)`)
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, sb.String(), args...)
	return err
}

// Delete removes the holder's holds on a show, restricted to keys when
// given, and returns the released keys.  Other holders' rows are never
// touched.
func (r *HoldRepo) Delete(ctx context.Context, showID, holderID uint64, keys []string) ([]string, error) {
	c := conn(ctx, r.db)
	where := ` WHERE show_id = ? AND user_id = ?`
	args := []any{showID, holderID}
	if len(keys) > 0 {
		where += ` AND ` + r.keyCol + ` IN (` + placeholders(len(keys)) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}
	rows, err := c.QueryContext(ctx, `SELECT `+r.keyCol+` FROM `+r.table+where, args...)
	if err != nil {
		return nil, err
	}
	released, err := scanKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(released) == 0 {
		return []string{}, nil
	}
	if _, err := c.ExecContext(ctx, `DELETE FROM `+r.table+where, args...); err != nil {
		return nil, err
	}
	return released, nil
}

func holdToken(h model.Hold) string {
	if h.Token != "" {
		return h.Token
	}
	return uuid.NewString()
}

func scanKeys(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
