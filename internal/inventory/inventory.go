// Package inventory answers availability questions and claims inventory
// for a show.  Seated shows track seat identity; events track a remaining
// count per ticket category.  Both are served behind Strategy so the
// reservation and settlement code never branches on the show kind.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/clock"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

// Status of one seat as seen by a requester.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusHeldByMe    Status = "held_by_me"
	StatusHeldByOther Status = "held_by_other"
	StatusBooked      Status = "booked"
)

// SeatState is the availability of one seat.
type SeatState struct {
	Key       string     `json:"id"`
	Category  string     `json:"category"`
	Status    Status     `json:"status"`
	HeldUntil *time.Time `json:"held_until,omitempty"`
}

// CategoryState is the remaining count of one ticket category for a
// requester.  The requester's own hold is not subtracted from Remaining.
type CategoryState struct {
	CategoryID   uint64 `json:"category_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Total        int    `json:"total"`
	Booked       int    `json:"booked"`
	HeldByOthers int    `json:"held_by_others"`
	HeldByMe     int    `json:"held_by_me"`
	Remaining    int    `json:"remaining"`
}

// Availability is the merged booked + held view of a show.  Categories
// only lists purchasable categories; sold-out ones are in SoldOut.
type Availability struct {
	ShowID     uint64          `json:"show_id"`
	Kind       model.ShowKind  `json:"kind"`
	Seats      []SeatState     `json:"seats,omitempty"`
	Categories []CategoryState `json:"categories,omitempty"`
	SoldOut    []uint64        `json:"sold_out,omitempty"`
	AsOf       time.Time       `json:"as_of"`
}

// Strategy is the inventory model of one show kind.  Claim, Release and
// Consume are expected to run inside a transaction that holds the show
// row lock.
type Strategy interface {
	Kind() model.ShowKind
	// Sweep deletes the expired holds of a show.
	Sweep(ctx context.Context, showID uint64, now time.Time) (int, error)
	Availability(ctx context.Context, show model.Show, requester uint64, now time.Time) (Availability, error)
	// Resolve maps a selection to priced catalog lines, rejecting unknown items.
	Resolve(ctx context.Context, show model.Show, sel model.Selection) ([]pricing.LineItem, error)
	// Claim holds every item of sel for requester until expiresAt or
	// fails with a conflict naming the unavailable items.  Nothing is
	// written on failure.
	Claim(ctx context.Context, show model.Show, sel model.Selection, requester uint64, now, expiresAt time.Time) ([]model.Hold, error)
	// Release drops the requester's holds on sel, or on the whole show
	// when sel is empty, and returns the released keys.
	Release(ctx context.Context, show model.Show, requester uint64, sel model.Selection) ([]string, error)
	// Consume is called once a pending booking for sel has been written.
	Consume(ctx context.Context, show model.Show, requester uint64, sel model.Selection) error
}

// Catalog reads the immutable inventory of a show.
type Catalog interface {
	Seats(ctx context.Context, showID uint64) ([]model.SeatEntry, error)
	TicketCategories(ctx context.Context, showID uint64) ([]model.TicketCategory, error)
}

// HoldStore is a hold table.
type HoldStore interface {
	Expire(ctx context.Context, showID uint64, now time.Time) ([]string, error)
	Live(ctx context.Context, showID uint64, now time.Time) ([]model.Hold, error)
	Upsert(ctx context.Context, holds []model.Hold) error
	Delete(ctx context.Context, showID, holderID uint64, keys []string) ([]string, error)
}

// BookedStore reports inventory consumed by pending or confirmed bookings.
type BookedStore interface {
	BookedSeats(ctx context.Context, showID uint64) ([]string, error)
	BookedQuantities(ctx context.Context, showID uint64) (map[string]int, error)
}

// ShowReader loads shows.
type ShowReader interface {
	GetByID(ctx context.Context, id uint64) (model.Show, error)
}

// Ledger dispatches to the strategy of a show's kind.
type Ledger struct {
	shows      ShowReader
	clock      clock.Clock
	strategies map[model.ShowKind]Strategy
}

func NewLedger(shows ShowReader, clk clock.Clock, strategies ...Strategy) *Ledger {
	l := &Ledger{shows: shows, clock: clk, strategies: make(map[model.ShowKind]Strategy, len(strategies))}
	for _, s := range strategies {
		l.strategies[s.Kind()] = s
	}
	return l
}

// For returns the strategy serving kind.
func (l *Ledger) For(kind model.ShowKind) (Strategy, error) {
	s, ok := l.strategies[kind]
	if !ok {
		return nil, apperr.Internal(errors.New("no inventory strategy for show kind " + string(kind)))
	}
	return s, nil
}

// Availability sweeps expired holds of the show and returns its
// availability from the requester's point of view.
func (l *Ledger) Availability(ctx context.Context, showID, requester uint64) (Availability, error) {
	show, err := l.shows.GetByID(ctx, showID)
	if errors.Is(err, repository.ErrShowNotFound) || (err == nil && show.DeletedAt != nil) {
		return Availability{}, apperr.NotFound("show not found")
	}
	if err != nil {
		return Availability{}, apperr.Internal(err)
	}
	s, err := l.For(show.Kind)
	if err != nil {
		return Availability{}, err
	}
	now := l.clock.Now()
	if _, err := s.Sweep(ctx, show.ID, now); err != nil {
		return Availability{}, apperr.Internal(err)
	}
	av, err := s.Availability(ctx, show, requester, now)
	if err != nil {
		return Availability{}, apperr.From(err)
	}
	return av, nil
}
