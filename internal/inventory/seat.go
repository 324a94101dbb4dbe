package inventory

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
)

// SeatStrategy tracks numbered seats.  A seat is booked when any pending
// or confirmed booking references it, held when a live hold exists, and
// available otherwise.
type SeatStrategy struct {
	catalog  Catalog
	holds    HoldStore
	bookings BookedStore
}

func NewSeatStrategy(catalog Catalog, holds HoldStore, bookings BookedStore) *SeatStrategy {
	return &SeatStrategy{catalog: catalog, holds: holds, bookings: bookings}
}

func (s *SeatStrategy) Kind() model.ShowKind { return model.ShowKindSeated }

func (s *SeatStrategy) Sweep(ctx context.Context, showID uint64, now time.Time) (int, error) {
	keys, err := s.holds.Expire(ctx, showID, now)
	return len(keys), err
}

// occupancy returns the booked seat set and live holds keyed by seat.
func (s *SeatStrategy) occupancy(ctx context.Context, showID uint64, now time.Time) (map[string]struct{}, map[string]model.Hold, error) {
	bookedKeys, err := s.bookings.BookedSeats(ctx, showID)
	if err != nil {
		return nil, nil, err
	}
	booked := make(map[string]struct{}, len(bookedKeys))
	for _, k := range bookedKeys {
		booked[k] = struct{}{}
	}
	live, err := s.holds.Live(ctx, showID, now)
	if err != nil {
		return nil, nil, err
	}
	held := make(map[string]model.Hold, len(live))
	for _, h := range live {
		held[h.ItemKey] = h
	}
	return booked, held, nil
}

func (s *SeatStrategy) Availability(ctx context.Context, show model.Show, requester uint64, now time.Time) (Availability, error) {
	seats, err := s.catalog.Seats(ctx, show.ID)
	if err != nil {
		return Availability{}, err
	}
	booked, held, err := s.occupancy(ctx, show.ID, now)
	if err != nil {
		return Availability{}, err
	}

	out := Availability{ShowID: show.ID, Kind: show.Kind, Seats: []SeatState{}, AsOf: now}
	for _, seat := range seats {
		if !seat.OnlineQuota {
			continue
		}
		st := SeatState{Key: seat.SeatKey, Category: seat.Category, Status: StatusAvailable}
		if _, ok := booked[seat.SeatKey]; ok {
			st.Status = StatusBooked
		} else if h, ok := held[seat.SeatKey]; ok {
			st.Status = StatusHeldByOther
			if h.HolderID == requester {
				st.Status = StatusHeldByMe
				exp := h.ExpiresAt
				st.HeldUntil = &exp
			}
		}
		out.Seats = append(out.Seats, st)
	}
	return out, nil
}

// Resolve rejects seats that do not exist or are not sold online.
func (s *SeatStrategy) Resolve(ctx context.Context, show model.Show, sel model.Selection) ([]pricing.LineItem, error) {
	if len(sel.Seats) == 0 || len(sel.Tickets) > 0 {
		return nil, apperr.Validation("select seats for this show")
	}
	seats, err := s.catalog.Seats(ctx, show.ID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.SeatEntry, len(seats))
	for _, seat := range seats {
		byKey[seat.SeatKey] = seat
	}
	lines := make([]pricing.LineItem, 0, len(sel.Seats))
	var unknown []string
	for _, k := range sel.Seats {
		seat, ok := byKey[k]
		if !ok || !seat.OnlineQuota {
			unknown = append(unknown, k)
			continue
		}
		lines = append(lines, pricing.LineItem{Ref: k, Category: seat.Category, Quantity: 1})
	}
	if len(unknown) > 0 {
		e := apperr.Validation("unknown seats")
		e.Details = unknown
		return nil, e
	}
	return lines, nil
}

func (s *SeatStrategy) Claim(ctx context.Context, show model.Show, sel model.Selection, requester uint64, now, expiresAt time.Time) ([]model.Hold, error) {
	if _, err := s.Resolve(ctx, show, sel); err != nil {
		return nil, err
	}
	booked, held, err := s.occupancy(ctx, show.ID, now)
	if err != nil {
		return nil, err
	}
	var taken []string
	for _, k := range sel.Seats {
		if _, ok := booked[k]; ok {
			taken = append(taken, k)
			continue
		}
		if h, ok := held[k]; ok && h.HolderID != requester {
			taken = append(taken, k)
		}
	}
	if len(taken) > 0 {
		return nil, apperr.Conflict("seats are no longer available", taken...)
	}

	holds := make([]model.Hold, 0, len(sel.Seats))
	for _, k := range sel.Seats {
		h := model.Hold{ShowID: show.ID, ItemKey: k, HolderID: requester, Quantity: 1, CreatedAt: now, ExpiresAt: expiresAt}
		if prev, ok := held[k]; ok {
			h.Token, h.CreatedAt = prev.Token, prev.CreatedAt
		}
		holds = append(holds, h)
	}
	if err := s.holds.Upsert(ctx, holds); err != nil {
		return nil, err
	}
	return holds, nil
}

func (s *SeatStrategy) Release(ctx context.Context, show model.Show, requester uint64, sel model.Selection) ([]string, error) {
	return s.holds.Delete(ctx, show.ID, requester, sel.Seats)
}

// Consume keeps seat holds in place: they protect the seats until the
// payment is verified or the hold expires.
func (s *SeatStrategy) Consume(context.Context, model.Show, uint64, model.Selection) error {
	return nil
}
