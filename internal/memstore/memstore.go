// Package memstore is an in-memory implementation of the repository
// interfaces used by the inventory, reservation and order packages.
// Transactions are serialized on one mutex and roll back by restoring a
// copy of the mutable state, which makes it suitable for concurrency
// tests of the booking flow.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

type txKey struct{}

type holdKey struct {
	table  string
	show   uint64
	item   string
	holder uint64 // zero for seat holds, which are unique per seat
}

type redemption struct {
	discountID, userID uint64
	amount             decimal.Decimal
}

type state struct {
	shows       map[uint64]model.Show
	holds       map[holdKey]model.Hold
	bookings    map[uint64]model.Booking
	txns        map[uint64]model.Transaction
	discounts   map[uint64]model.DiscountCode
	redemptions map[uint64]redemption // by booking id
	loyalty     map[uint64]decimal.Decimal
	nextBooking uint64
	nextTxn     uint64
}

func (s state) clone() state {
	c := s
	c.shows = cloneMap(s.shows)
	c.holds = cloneMap(s.holds)
	c.bookings = cloneMap(s.bookings)
	c.txns = cloneMap(s.txns)
	c.discounts = cloneMap(s.discounts)
	c.redemptions = cloneMap(s.redemptions)
	c.loyalty = cloneMap(s.loyalty)
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store holds all tables.  Catalog tables sit behind their own lock so
// they can be read inside and outside transactions alike.
type Store struct {
	mu sync.Mutex
	st state

	catMu      sync.RWMutex
	seats      map[uint64][]model.SeatEntry
	categories map[uint64][]model.TicketCategory
	rates      map[uint64]model.RateTable
	addons     map[uint64]model.AddOn

	seqMu sync.Mutex
	seq   map[string]int64
}

func New() *Store {
	return &Store{
		st: state{
			shows:       map[uint64]model.Show{},
			holds:       map[holdKey]model.Hold{},
			bookings:    map[uint64]model.Booking{},
			txns:        map[uint64]model.Transaction{},
			discounts:   map[uint64]model.DiscountCode{},
			redemptions: map[uint64]redemption{},
			loyalty:     map[uint64]decimal.Decimal{},
		},
		seats:      map[uint64][]model.SeatEntry{},
		categories: map[uint64][]model.TicketCategory{},
		rates:      map[uint64]model.RateTable{},
		addons:     map[uint64]model.AddOn{},
		seq:        map[string]int64{},
	}
}

// WithTx runs fn holding the store lock.  A non-nil error restores the
// state as it was before fn ran.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = saved
		return err
	}
	return nil
}

func (s *Store) do(ctx context.Context, fn func()) {
	if ctx.Value(txKey{}) != nil {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Seeding helpers.

func (s *Store) AddShow(sh model.Show) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.shows[sh.ID] = sh
}

func (s *Store) AddSeats(showID uint64, category string, keys ...string) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	for _, k := range keys {
		s.seats[showID] = append(s.seats[showID], model.SeatEntry{ShowID: showID, SeatKey: k, Category: category, OnlineQuota: true})
	}
	sort.Slice(s.seats[showID], func(i, j int) bool { return s.seats[showID][i].SeatKey < s.seats[showID][j].SeatKey })
}

// SetOnlineQuota toggles whether a seat is sold online.
func (s *Store) SetOnlineQuota(showID uint64, key string, online bool) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	for i := range s.seats[showID] {
		if s.seats[showID][i].SeatKey == key {
			s.seats[showID][i].OnlineQuota = online
		}
	}
}

func (s *Store) AddCategory(c model.TicketCategory) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	s.categories[c.ShowID] = append(s.categories[c.ShowID], c)
}

func (s *Store) SetRate(r model.Rate) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	if s.rates[r.ShowID] == nil {
		s.rates[r.ShowID] = model.RateTable{}
	}
	s.rates[r.ShowID][r.Category] = r
}

func (s *Store) AddAddOn(a model.AddOn) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	s.addons[a.ID] = a
}

func (s *Store) AddDiscount(d model.DiscountCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.discounts[d.ID] = d
}

func (s *Store) SetLoyalty(userID uint64, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.loyalty[userID] = balance
}

// Inspection helpers.

func (s *Store) Booking(id uint64) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bookings[id]
	return b, ok
}

func (s *Store) TransactionByOrder(orderID string) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.txns {
		if t.GatewayOrderID == orderID {
			return t, true
		}
	}
	return model.Transaction{}, false
}

func (s *Store) Discount(id uint64) model.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.discounts[id]
}

func (s *Store) LoyaltyBalance(userID uint64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.loyalty[userID]
}

// HoldCount counts stored hold rows of a show, expired or not.
func (s *Store) HoldCount(showID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.st.holds {
		if k.show == showID {
			n++
		}
	}
	return n
}

// Shows.

func (s *Store) GetByID(ctx context.Context, id uint64) (sh model.Show, err error) {
	s.do(ctx, func() {
		var ok bool
		if sh, ok = s.st.shows[id]; !ok {
			err = repository.ErrShowNotFound
		}
	})
	return sh, err
}

func (s *Store) LockByID(ctx context.Context, id uint64) (model.Show, error) {
	return s.GetByID(ctx, id)
}

// Catalog.

func (s *Store) Seats(_ context.Context, showID uint64) ([]model.SeatEntry, error) {
	s.catMu.RLock()
	defer s.catMu.RUnlock()
	return append([]model.SeatEntry(nil), s.seats[showID]...), nil
}

func (s *Store) TicketCategories(_ context.Context, showID uint64) ([]model.TicketCategory, error) {
	s.catMu.RLock()
	defer s.catMu.RUnlock()
	return append([]model.TicketCategory(nil), s.categories[showID]...), nil
}

func (s *Store) RateTable(_ context.Context, showID uint64) (model.RateTable, error) {
	s.catMu.RLock()
	defer s.catMu.RUnlock()
	return cloneMap(s.rates[showID]), nil
}

func (s *Store) AddOnsByIDs(_ context.Context, ids []uint64) (map[uint64]model.AddOn, error) {
	s.catMu.RLock()
	defer s.catMu.RUnlock()
	out := make(map[uint64]model.AddOn, len(ids))
	for _, id := range ids {
		if a, ok := s.addons[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// Holds.

// HoldTable is one hold table of the store.
type HoldTable struct {
	s       *Store
	table   string
	perUser bool
}

// SeatHolds is unique per (show, seat).
func (s *Store) SeatHolds() *HoldTable { return &HoldTable{s: s, table: "seat"} }

// TicketHolds is unique per (show, category, holder).
func (s *Store) TicketHolds() *HoldTable { return &HoldTable{s: s, table: "ticket", perUser: true} }

func (h *HoldTable) key(showID uint64, item string, holder uint64) holdKey {
	k := holdKey{table: h.table, show: showID, item: item}
	if h.perUser {
		k.holder = holder
	}
	return k
}

func (h *HoldTable) Expire(ctx context.Context, showID uint64, now time.Time) (keys []string, err error) {
	keys = []string{}
	h.s.do(ctx, func() {
		for k, v := range h.s.st.holds {
			if k.table == h.table && k.show == showID && !v.ExpiresAt.After(now) {
				keys = append(keys, v.ItemKey)
				delete(h.s.st.holds, k)
			}
		}
	})
	sort.Strings(keys)
	return keys, nil
}

func (h *HoldTable) ExpireAll(ctx context.Context, now time.Time) (n int64, err error) {
	h.s.do(ctx, func() {
		for k, v := range h.s.st.holds {
			if k.table == h.table && !v.ExpiresAt.After(now) {
				delete(h.s.st.holds, k)
				n++
			}
		}
	})
	return n, nil
}

func (h *HoldTable) Live(ctx context.Context, showID uint64, now time.Time) (out []model.Hold, err error) {
	h.s.do(ctx, func() {
		for k, v := range h.s.st.holds {
			if k.table == h.table && k.show == showID && v.Live(now) {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemKey != out[j].ItemKey {
			return out[i].ItemKey < out[j].ItemKey
		}
		return out[i].HolderID < out[j].HolderID
	})
	return out, nil
}

func (h *HoldTable) Upsert(ctx context.Context, holds []model.Hold) error {
	h.s.do(ctx, func() {
		for _, v := range holds {
			k := h.key(v.ShowID, v.ItemKey, v.HolderID)
			if prev, ok := h.s.st.holds[k]; ok {
				prev.HolderID, prev.Quantity, prev.ExpiresAt = v.HolderID, v.Quantity, v.ExpiresAt
				h.s.st.holds[k] = prev
				continue
			}
			if v.Token == "" {
				v.Token = "tok-" + v.ItemKey
			}
			h.s.st.holds[k] = v
		}
	})
	return nil
}

func (h *HoldTable) Delete(ctx context.Context, showID, holderID uint64, keys []string) (released []string, err error) {
	want := map[string]bool{}
	for _, k := range keys {
		want[k] = true
	}
	released = []string{}
	h.s.do(ctx, func() {
		for k, v := range h.s.st.holds {
			if k.table != h.table || k.show != showID || v.HolderID != holderID {
				continue
			}
			if len(want) > 0 && !want[v.ItemKey] {
				continue
			}
			released = append(released, v.ItemKey)
			delete(h.s.st.holds, k)
		}
	})
	sort.Strings(released)
	return released, nil
}

// Bookings.

func active(b model.Booking) bool {
	return b.Status == model.BookingPending || b.Status == model.BookingConfirmed
}

func (s *Store) BookedSeats(ctx context.Context, showID uint64) (keys []string, err error) {
	s.do(ctx, func() {
		for _, b := range s.st.bookings {
			if b.ShowID == showID && active(b) {
				for _, it := range b.Items {
					keys = append(keys, it.ID)
				}
			}
		}
	})
	return keys, nil
}

func (s *Store) BookedQuantities(ctx context.Context, showID uint64) (map[string]int, error) {
	out := map[string]int{}
	s.do(ctx, func() {
		for _, b := range s.st.bookings {
			if b.ShowID == showID && active(b) {
				for _, it := range b.Items {
					out[it.ID] += it.Quantity
				}
			}
		}
	})
	return out, nil
}

func (s *Store) Create(ctx context.Context, b *model.Booking) (err error) {
	s.do(ctx, func() {
		for _, other := range s.st.bookings {
			if other.BookingNumber == b.BookingNumber {
				err = repository.ErrConflict
				return
			}
		}
		s.st.nextBooking++
		b.ID = s.st.nextBooking
		s.st.bookings[b.ID] = *b
	})
	return err
}

func (s *Store) getBooking(id uint64, match func(model.Booking) bool) (b model.Booking, err error) {
	b, ok := s.st.bookings[id]
	if !ok || (match != nil && !match(b)) {
		return model.Booking{}, repository.ErrBookingNotFound
	}
	return b, nil
}

func (s *Store) GetBooking(ctx context.Context, id uint64) (b model.Booking, err error) {
	s.do(ctx, func() { b, err = s.getBooking(id, nil) })
	return b, err
}

func (s *Store) GetForUser(ctx context.Context, id, userID uint64) (b model.Booking, err error) {
	s.do(ctx, func() {
		b, err = s.getBooking(id, func(b model.Booking) bool { return b.UserID == userID && b.DeletedAt == nil })
	})
	return b, err
}

func (s *Store) LockBooking(ctx context.Context, id uint64) (b model.Booking, err error) {
	return s.GetBooking(ctx, id)
}

func (s *Store) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	var all []model.Booking
	s.do(ctx, func() {
		for _, b := range s.st.bookings {
			if b.UserID == userID && b.DeletedAt == nil {
				all = append(all, b)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	out := []model.Booking{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *Store) MarkConfirmed(ctx context.Context, id uint64, info model.PaymentInfo, now time.Time) (err error) {
	s.do(ctx, func() {
		b, ok := s.st.bookings[id]
		if !ok || b.Status != model.BookingPending {
			err = repository.ErrConflict
			return
		}
		b.Status, b.PaymentInfo, b.UpdatedAt = model.BookingConfirmed, info, now
		b.ConfirmedAt = &now
		s.st.bookings[id] = b
	})
	return err
}

func (s *Store) StalePending(ctx context.Context, cutoff time.Time) (ids []uint64, err error) {
	s.do(ctx, func() {
		for id, b := range s.st.bookings {
			if b.Status == model.BookingPending && !b.CreatedAt.After(cutoff) {
				ids = append(ids, id)
			}
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) CancelPending(ctx context.Context, ids []uint64, now time.Time) (n int64, err error) {
	s.do(ctx, func() {
		for _, id := range ids {
			b, ok := s.st.bookings[id]
			if !ok || b.Status != model.BookingPending {
				continue
			}
			b.Status, b.UpdatedAt = model.BookingCancelled, now
			b.CancelledAt = &now
			s.st.bookings[id] = b
			n++
		}
	})
	return n, nil
}

func (s *Store) SetTicketURL(ctx context.Context, id uint64, url string) (err error) {
	s.do(ctx, func() {
		b, ok := s.st.bookings[id]
		if !ok {
			err = repository.ErrBookingNotFound
			return
		}
		b.TicketURL = &url
		s.st.bookings[id] = b
	})
	return err
}

// Transactions.

func (s *Store) CreateTransaction(ctx context.Context, t *model.Transaction) (err error) {
	s.do(ctx, func() {
		for _, other := range s.st.txns {
			if other.GatewayOrderID == t.GatewayOrderID || other.BookingID == t.BookingID {
				err = repository.ErrConflict
				return
			}
		}
		s.st.nextTxn++
		t.ID = s.st.nextTxn
		s.st.txns[t.ID] = *t
	})
	return err
}

func (s *Store) findTxn(match func(model.Transaction) bool) (model.Transaction, error) {
	for _, t := range s.st.txns {
		if match(t) {
			return t, nil
		}
	}
	return model.Transaction{}, repository.ErrTransactionNotFound
}

func (s *Store) LockByOrderForUser(ctx context.Context, orderID string, userID uint64) (t model.Transaction, err error) {
	s.do(ctx, func() {
		t, err = s.findTxn(func(t model.Transaction) bool { return t.GatewayOrderID == orderID && t.UserID == userID })
	})
	return t, err
}

func (s *Store) LockByOrder(ctx context.Context, orderID string) (t model.Transaction, err error) {
	s.do(ctx, func() {
		t, err = s.findTxn(func(t model.Transaction) bool { return t.GatewayOrderID == orderID })
	})
	return t, err
}

func (s *Store) GetByBooking(ctx context.Context, bookingID uint64) (t model.Transaction, err error) {
	s.do(ctx, func() {
		t, err = s.findTxn(func(t model.Transaction) bool { return t.BookingID == bookingID })
	})
	return t, err
}

func (s *Store) MarkSuccess(ctx context.Context, id uint64, paymentID, signature string, now time.Time) (err error) {
	s.do(ctx, func() {
		t, ok := s.st.txns[id]
		if !ok || t.Status == model.TxSuccess {
			err = repository.ErrConflict
			return
		}
		t.Status, t.UpdatedAt, t.FailureReason = model.TxSuccess, now, nil
		t.GatewayPaymentID, t.GatewaySignature = &paymentID, &signature
		s.st.txns[id] = t
	})
	return err
}

func (s *Store) MarkFailed(ctx context.Context, orderID, reason string, now time.Time) (changed bool, err error) {
	s.do(ctx, func() {
		for id, t := range s.st.txns {
			if t.GatewayOrderID == orderID && t.Status != model.TxSuccess {
				t.Status, t.UpdatedAt, t.FailureReason = model.TxFailed, now, &reason
				s.st.txns[id] = t
				changed = true
			}
		}
	})
	return changed, nil
}

// LockByBookings is a no-op; WithTx already serializes every transaction.
func (s *Store) LockByBookings(ctx context.Context, bookingIDs []uint64) error { return nil }

func (s *Store) FailByBookings(ctx context.Context, bookingIDs []uint64, reason string, now time.Time) (n int64, err error) {
	want := map[uint64]bool{}
	for _, id := range bookingIDs {
		want[id] = true
	}
	s.do(ctx, func() {
		for id, t := range s.st.txns {
			if want[t.BookingID] && t.Status != model.TxSuccess {
				t.Status, t.UpdatedAt, t.FailureReason = model.TxFailed, now, &reason
				s.st.txns[id] = t
				n++
			}
		}
	})
	return n, nil
}

// Discounts.

func (s *Store) GetByCode(ctx context.Context, code string) (d model.DiscountCode, err error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	err = repository.ErrDiscountNotFound
	s.do(ctx, func() {
		for _, v := range s.st.discounts {
			if v.Code == code {
				d, err = v, nil
				return
			}
		}
	})
	return d, err
}

func (s *Store) LockDiscount(ctx context.Context, id uint64) (d model.DiscountCode, err error) {
	s.do(ctx, func() {
		var ok bool
		if d, ok = s.st.discounts[id]; !ok {
			err = repository.ErrDiscountNotFound
		}
	})
	return d, err
}

func (s *Store) CountByUser(ctx context.Context, discountID, userID uint64) (n int, err error) {
	s.do(ctx, func() {
		for _, r := range s.st.redemptions {
			if r.discountID == discountID && r.userID == userID {
				n++
			}
		}
	})
	return n, nil
}

func (s *Store) Redeem(ctx context.Context, discountID, userID, bookingID uint64, amount decimal.Decimal, _ time.Time) (err error) {
	s.do(ctx, func() {
		if _, dup := s.st.redemptions[bookingID]; dup {
			err = repository.ErrConflict
			return
		}
		s.st.redemptions[bookingID] = redemption{discountID: discountID, userID: userID, amount: amount}
		d := s.st.discounts[discountID]
		d.UsedCount++
		s.st.discounts[discountID] = d
	})
	return err
}

// Loyalty.

func (s *Store) Balance(ctx context.Context, userID uint64) (bal decimal.Decimal, err error) {
	s.do(ctx, func() { bal = s.st.loyalty[userID] })
	return bal, nil
}

func (s *Store) Debit(ctx context.Context, userID uint64, amount decimal.Decimal, _ time.Time) (err error) {
	if !amount.IsPositive() {
		return nil
	}
	s.do(ctx, func() {
		bal := s.st.loyalty[userID]
		if bal.LessThan(amount) {
			err = repository.ErrInsufficientBalance
			return
		}
		s.st.loyalty[userID] = bal.Sub(amount)
	})
	return err
}

// Next implements a per-day booking sequence counter.
func (s *Store) Next(_ context.Context, day string) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq[day]++
	return s.seq[day], nil
}

// Views expose the store under the method sets of the individual
// repositories where names would otherwise collide.

type BookingView struct{ *Store }

func (s *Store) Bookings() BookingView { return BookingView{s} }

func (v BookingView) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return v.GetBooking(ctx, id)
}

func (v BookingView) LockByID(ctx context.Context, id uint64) (model.Booking, error) {
	return v.LockBooking(ctx, id)
}

type TransactionView struct{ *Store }

func (s *Store) Transactions() TransactionView { return TransactionView{s} }

func (v TransactionView) Create(ctx context.Context, t *model.Transaction) error {
	return v.CreateTransaction(ctx, t)
}

type DiscountView struct{ *Store }

func (s *Store) Discounts() DiscountView { return DiscountView{s} }

func (v DiscountView) LockByID(ctx context.Context, id uint64) (model.DiscountCode, error) {
	return v.LockDiscount(ctx, id)
}
