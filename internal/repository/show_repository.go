package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// ShowRepo manages persistence for shows.
type ShowRepo struct {
	db *sql.DB
}

func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

const showColumns = `id, venue_id, kind, title, starts_at, status, deleted_at, created_at, updated_at`

func scanShow(row interface{ Scan(...any) error }) (model.Show, error) {
	var (
		s       model.Show
		deleted sql.NullTime
	)
	err := row.Scan(&s.ID, &s.VenueID, &s.Kind, &s.Title, &s.StartsAt, &s.Status, &deleted, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Show{}, ErrShowNotFound
	}
	if err != nil {
		return model.Show{}, err
	}
	if deleted.Valid {
		t := deleted.Time
		s.DeletedAt = &t
	}
	return s, nil
}

// GetByID returns the show, including soft-deleted ones; callers decide
// whether a deleted show is bookable.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (model.Show, error) {
	q := `SELECT ` + showColumns + ` FROM shows WHERE id = ?`
	return scanShow(conn(ctx, r.db).QueryRowContext(ctx, q, id))
}

// LockByID reads the show row FOR UPDATE.  Hold and order transactions
// lock the show first so that competing claims on its inventory run one
// after another.  It must be called inside a transaction.
func (r *ShowRepo) LockByID(ctx context.Context, id uint64) (model.Show, error) {
	q := `SELECT ` + showColumns + ` FROM shows WHERE id = ? FOR UPDATE`
	return scanShow(conn(ctx, r.db).QueryRowContext(ctx, q, id))
}
