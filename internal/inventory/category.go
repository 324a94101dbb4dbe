package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
)

// CategoryStrategy tracks event tickets as a remaining count per
// category:
//
//	remaining = total − Σ pending/confirmed booked − Σ live holds of others
//
// Holds carry a quantity, one row per (show, category, holder).
type CategoryStrategy struct {
	catalog  Catalog
	holds    HoldStore
	bookings BookedStore
}

func NewCategoryStrategy(catalog Catalog, holds HoldStore, bookings BookedStore) *CategoryStrategy {
	return &CategoryStrategy{catalog: catalog, holds: holds, bookings: bookings}
}

func (s *CategoryStrategy) Kind() model.ShowKind { return model.ShowKindEvent }

func (s *CategoryStrategy) Sweep(ctx context.Context, showID uint64, now time.Time) (int, error) {
	keys, err := s.holds.Expire(ctx, showID, now)
	return len(keys), err
}

func (s *CategoryStrategy) states(ctx context.Context, showID, requester uint64, now time.Time) ([]CategoryState, []model.Hold, error) {
	cats, err := s.catalog.TicketCategories(ctx, showID)
	if err != nil {
		return nil, nil, err
	}
	booked, err := s.bookings.BookedQuantities(ctx, showID)
	if err != nil {
		return nil, nil, err
	}
	live, err := s.holds.Live(ctx, showID, now)
	if err != nil {
		return nil, nil, err
	}
	mine := map[string]int{}
	others := map[string]int{}
	for _, h := range live {
		if h.HolderID == requester {
			mine[h.ItemKey] += h.Quantity
		} else {
			others[h.ItemKey] += h.Quantity
		}
	}
	out := make([]CategoryState, 0, len(cats))
	for _, c := range cats {
		k := c.Key()
		st := CategoryState{
			CategoryID:   c.ID,
			Name:         c.Name,
			Category:     c.Category,
			Total:        c.TotalQuantity,
			Booked:       booked[k],
			HeldByOthers: others[k],
			HeldByMe:     mine[k],
		}
		st.Remaining = st.Total - st.Booked - st.HeldByOthers
		if st.Remaining < 0 {
			st.Remaining = 0
		}
		out = append(out, st)
	}
	return out, live, nil
}

func (s *CategoryStrategy) Availability(ctx context.Context, show model.Show, requester uint64, now time.Time) (Availability, error) {
	states, _, err := s.states(ctx, show.ID, requester, now)
	if err != nil {
		return Availability{}, err
	}
	out := Availability{ShowID: show.ID, Kind: show.Kind, Categories: []CategoryState{}, AsOf: now}
	for _, st := range states {
		if st.Remaining <= 0 {
			out.SoldOut = append(out.SoldOut, st.CategoryID)
			continue
		}
		out.Categories = append(out.Categories, st)
	}
	return out, nil
}

func (s *CategoryStrategy) Resolve(ctx context.Context, show model.Show, sel model.Selection) ([]pricing.LineItem, error) {
	if len(sel.Tickets) == 0 || len(sel.Seats) > 0 {
		return nil, apperr.Validation("select ticket categories for this event")
	}
	cats, err := s.catalog.TicketCategories(ctx, show.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.TicketCategory, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	lines := make([]pricing.LineItem, 0, len(sel.Tickets))
	var unknown []string
	for _, t := range sel.Tickets {
		c, ok := byID[t.CategoryID]
		if !ok {
			unknown = append(unknown, strconv.FormatUint(t.CategoryID, 10))
			continue
		}
		lines = append(lines, pricing.LineItem{Ref: c.Key(), Name: c.Name, Category: c.Category, Quantity: t.Quantity})
	}
	if len(unknown) > 0 {
		e := apperr.Validation("unknown ticket categories")
		e.Details = unknown
		return nil, e
	}
	return lines, nil
}

func (s *CategoryStrategy) Claim(ctx context.Context, show model.Show, sel model.Selection, requester uint64, now, expiresAt time.Time) ([]model.Hold, error) {
	if _, err := s.Resolve(ctx, show, sel); err != nil {
		return nil, err
	}
	states, live, err := s.states(ctx, show.ID, requester, now)
	if err != nil {
		return nil, err
	}
	remaining := make(map[uint64]int, len(states))
	for _, st := range states {
		remaining[st.CategoryID] = st.Remaining
	}
	var short []string
	for _, t := range sel.Tickets {
		if t.Quantity > remaining[t.CategoryID] {
			short = append(short, model.CategoryKey(t.CategoryID))
		}
	}
	if len(short) > 0 {
		return nil, apperr.Conflict("not enough tickets left", short...)
	}

	prev := map[string]model.Hold{}
	for _, h := range live {
		if h.HolderID == requester {
			prev[h.ItemKey] = h
		}
	}
	holds := make([]model.Hold, 0, len(sel.Tickets))
	for _, t := range sel.Tickets {
		k := model.CategoryKey(t.CategoryID)
		h := model.Hold{ShowID: show.ID, ItemKey: k, HolderID: requester, Quantity: t.Quantity, CreatedAt: now, ExpiresAt: expiresAt}
		if p, ok := prev[k]; ok {
			h.Token, h.CreatedAt = p.Token, p.CreatedAt
		}
		holds = append(holds, h)
	}
	if err := s.holds.Upsert(ctx, holds); err != nil {
		return nil, err
	}
	return holds, nil
}

func (s *CategoryStrategy) Release(ctx context.Context, show model.Show, requester uint64, sel model.Selection) ([]string, error) {
	var keys []string
	for _, t := range sel.Tickets {
		keys = append(keys, model.CategoryKey(t.CategoryID))
	}
	return s.holds.Delete(ctx, show.ID, requester, keys)
}

// Consume drops the requester's quantity holds: the pending booking now
// counts against the category instead.
func (s *CategoryStrategy) Consume(ctx context.Context, show model.Show, requester uint64, sel model.Selection) error {
	_, err := s.Release(ctx, show, requester, sel)
	return err
}
