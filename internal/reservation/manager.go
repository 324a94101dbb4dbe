// Package reservation issues, renews and releases time-boxed holds on
// seats and ticket categories.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/clock"
	"github.com/iliyamo/cinema-ticketing/internal/inventory"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

// DefaultTTL is how long a hold stays live without renewal.
const DefaultTTL = 15 * time.Minute

// Transactor runs fn in one atomic unit of work.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ShowLocker reads a show under a row lock.
type ShowLocker interface {
	LockByID(ctx context.Context, id uint64) (model.Show, error)
}

// Expirer deletes every expired hold of a table.
type Expirer interface {
	ExpireAll(ctx context.Context, now time.Time) (int64, error)
}

// LockResult describes the holds a requester owns after Lock.
type LockResult struct {
	ShowID    uint64         `json:"show_id"`
	Kind      model.ShowKind `json:"kind"`
	Items     []string       `json:"items"`
	Holds     []model.Hold   `json:"-"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Manager owns the hold lifecycle.  Every mutation runs in one
// transaction that first locks the show row, so concurrent lock calls on
// the same show are serialized and see each other's holds.
type Manager struct {
	tx       Transactor
	shows    ShowLocker
	ledger   *inventory.Ledger
	expirers []Expirer
	clock    clock.Clock
	ttl      time.Duration
}

func NewManager(tx Transactor, shows ShowLocker, ledger *inventory.Ledger, clk clock.Clock, ttl time.Duration, expirers ...Expirer) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{tx: tx, shows: shows, ledger: ledger, expirers: expirers, clock: clk, ttl: ttl}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// LockShow loads a show under lock inside the caller's transaction and
// returns it with its strategy.  Shows that are not published or were
// deleted are rejected.
func (m *Manager) LockShow(ctx context.Context, showID uint64) (model.Show, inventory.Strategy, error) {
	show, err := m.shows.LockByID(ctx, showID)
	if errors.Is(err, repository.ErrShowNotFound) {
		return model.Show{}, nil, apperr.NotFound("show not found")
	}
	if err != nil {
		return model.Show{}, nil, apperr.Internal(err)
	}
	if show.DeletedAt != nil {
		return model.Show{}, nil, apperr.NotFound("show not found")
	}
	if !show.Bookable() {
		return model.Show{}, nil, apperr.Validation("show is not open for booking")
	}
	strat, err := m.ledger.For(show.Kind)
	if err != nil {
		return model.Show{}, nil, err
	}
	return show, strat, nil
}

// Lock holds every item of sel for requester, or none of them.  Items
// already held by the requester are renewed.
func (m *Manager) Lock(ctx context.Context, showID, requester uint64, sel model.Selection) (LockResult, error) {
	sel = sel.Normalize()
	if sel.Empty() {
		return LockResult{}, apperr.Validation("no seats or tickets selected")
	}
	var res LockResult
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		show, strat, err := m.LockShow(ctx, showID)
		if err != nil {
			return err
		}
		now := m.clock.Now()
		if _, err := strat.Sweep(ctx, show.ID, now); err != nil {
			return err
		}
		expiresAt := now.Add(m.ttl)
		holds, err := strat.Claim(ctx, show, sel, requester, now, expiresAt)
		if err != nil {
			return err
		}
		res = LockResult{ShowID: show.ID, Kind: show.Kind, Items: sel.Keys(), Holds: holds, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return LockResult{}, apperr.From(err)
	}
	logrus.WithContext(ctx).WithFields(logrus.Fields{
		"show_id":    showID,
		"user_id":    requester,
		"items":      res.Items,
		"expires_at": res.ExpiresAt,
	}).Info("holds acquired")
	return res, nil
}

// Release deletes the requester's holds on sel, or all of the
// requester's holds on the show when sel is empty.
func (m *Manager) Release(ctx context.Context, showID, requester uint64, sel model.Selection) ([]string, error) {
	sel = sel.Normalize()
	var released []string
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		show, err := m.shows.LockByID(ctx, showID)
		if errors.Is(err, repository.ErrShowNotFound) {
			return apperr.NotFound("show not found")
		}
		if err != nil {
			return err
		}
		if !sel.Empty() && !sel.Matches(show.Kind) {
			return apperr.Validation("selection does not match the show type")
		}
		strat, err := m.ledger.For(show.Kind)
		if err != nil {
			return err
		}
		released, err = strat.Release(ctx, show, requester, sel)
		return err
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	return released, nil
}

// Sweep deletes every expired hold across shows.  Read and write paths
// already sweep the show they touch; this catches shows nobody reads.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	now := m.clock.Now()
	var total int64
	for _, e := range m.expirers {
		n, err := e.ExpireAll(ctx, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
