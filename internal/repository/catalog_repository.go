package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// CatalogRepo reads the immutable catalog of a show: seats, ticket
// categories, its rate table and the add-ons of its venue.
type CatalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// Seats lists the seats of a seated show ordered by label.
func (r *CatalogRepo) Seats(ctx context.Context, showID uint64) ([]model.SeatEntry, error) {
	const q = `SELECT show_id, seat_key, category, online_quota FROM show_seats WHERE show_id = ? ORDER BY seat_key`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.SeatEntry
	for rows.Next() {
		var s model.SeatEntry
		if err := rows.Scan(&s.ShowID, &s.SeatKey, &s.Category, &s.OnlineQuota); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// TicketCategories lists the ticket allotments of an event.
func (r *CatalogRepo) TicketCategories(ctx context.Context, showID uint64) ([]model.TicketCategory, error) {
	const q = `SELECT id, show_id, name, category, total_quantity FROM ticket_categories WHERE show_id = ? ORDER BY id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []model.TicketCategory
	for rows.Next() {
		var c model.TicketCategory
		if err := rows.Scan(&c.ID, &c.ShowID, &c.Name, &c.Category, &c.TotalQuantity); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// RateTable loads the per-category prices of a show.
func (r *CatalogRepo) RateTable(ctx context.Context, showID uint64) (model.RateTable, error) {
	const q = `SELECT show_id, category, base_price, weekend_price, holiday_price FROM rate_cards WHERE show_id = ?`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	table := model.RateTable{}
	for rows.Next() {
		var rt model.Rate
		if err := rows.Scan(&rt.ShowID, &rt.Category, &rt.BasePrice, &rt.WeekendPrice, &rt.HolidayPrice); err != nil {
			return nil, err
		}
		table[rt.Category] = rt
	}
	return table, rows.Err()
}

// AddOnsByIDs returns the requested add-ons keyed by id.  Unknown ids are
// simply absent from the result.
func (r *CatalogRepo) AddOnsByIDs(ctx context.Context, ids []uint64) (map[uint64]model.AddOn, error) {
	out := make(map[uint64]model.AddOn, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, venue_id, name, unit_price, is_active FROM addons WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.AddOn
		if err := rows.Scan(&a.ID, &a.VenueID, &a.Name, &a.UnitPrice, &a.Active); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}
