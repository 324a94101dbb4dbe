package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/clock"
	"github.com/iliyamo/cinema-ticketing/internal/inventory"
	"github.com/iliyamo/cinema-ticketing/internal/memstore"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/payment"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/reservation"
	"github.com/iliyamo/cinema-ticketing/internal/sequence"
)

const secret = "gw-secret"

// 2025-01-15 is a Wednesday; the show is on Friday.
var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu    sync.Mutex
	fail  error
	calls int
	last  int64
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, receipt string, _ map[string]string) (payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return payment.Order{}, g.fail
	}
	g.last = amountMinor
	return payment.Order{ID: "order_" + receipt[5:], Receipt: receipt, AmountMinor: amountMinor, Currency: "INR", Status: "created"}, nil
}

type env struct {
	wf     *Workflow
	store  *memstore.Store
	clk    *clock.Fixed
	gw     *fakeGateway
	ledger *inventory.Ledger
	mu     sync.Mutex
	hooked []model.Booking
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	st.AddShow(model.Show{ID: 10, VenueID: 1, Kind: model.ShowKindSeated, Title: "Heat", StartsAt: t0.Add(48 * time.Hour), Status: model.ShowStatusPublished})
	st.AddSeats(10, "PREMIUM", "A1", "A2", "A3")
	st.SetRate(model.Rate{ShowID: 10, Category: "PREMIUM", BasePrice: decimal.NewFromInt(200),
		WeekendPrice: decimal.NewNullDecimal(decimal.NewFromInt(250))})
	st.AddShow(model.Show{ID: 20, VenueID: 1, Kind: model.ShowKindEvent, Title: "Live", StartsAt: t0.Add(48 * time.Hour), Status: model.ShowStatusPublished})
	st.AddCategory(model.TicketCategory{ID: 7, ShowID: 20, Name: "Floor", Category: "FLOOR", TotalQuantity: 4})
	st.SetRate(model.Rate{ShowID: 20, Category: "FLOOR", BasePrice: decimal.NewFromInt(500)})
	st.AddAddOn(model.AddOn{ID: 1, VenueID: 1, Name: "Popcorn", UnitPrice: decimal.NewFromInt(150), Active: true})

	clk := clock.NewFixed(t0)
	seatHolds, ticketHolds := st.SeatHolds(), st.TicketHolds()
	ledger := inventory.NewLedger(st, clk,
		inventory.NewSeatStrategy(st, seatHolds, st),
		inventory.NewCategoryStrategy(st, ticketHolds, st),
	)
	gw := &fakeGateway{}
	e := &env{store: st, clk: clk, gw: gw, ledger: ledger}
	e.wf = New(Deps{
		Tx:           st,
		Shows:        st,
		Catalog:      st,
		Bookings:     st.Bookings(),
		Transactions: st.Transactions(),
		Discounts:    st.Discounts(),
		Loyalty:      st,
		Ledger:       ledger,
		Reservations: reservation.NewManager(st, st, ledger, clk, reservation.DefaultTTL, seatHolds, ticketHolds),
		Pricing: pricing.Engine{
			PlatformFee: decimal.NewFromInt(18),
			TaxRate:     decimal.RequireFromString("0.18"),
			Currency:    "INR",
			Calendar:    pricing.Calendar{Holidays: pricing.NoHolidays{}},
		},
		Gateway:  gw,
		Verifier: payment.Verifier{Secret: secret},
		Numbers:  sequence.Numberer{Clock: clk, Counter: st},
		Clock:    clk,
	})
	e.wf.AddHook(HookFunc(func(_ context.Context, b model.Booking, _ model.TransactionSnapshot) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.hooked = append(e.hooked, b)
		return errors.New("renderer offline")
	}))
	return e
}

func seats(keys ...string) Request {
	return Request{ShowID: 10, Selection: model.Selection{Seats: keys}}
}

func (e *env) seatStatus(t *testing.T, user uint64, key string) inventory.Status {
	t.Helper()
	av, err := e.ledger.Availability(context.Background(), 10, user)
	require.NoError(t, err)
	for _, s := range av.Seats {
		if s.Key == key {
			return s.Status
		}
	}
	t.Fatalf("seat %s not listed", key)
	return ""
}

func TestCreateOrderPricesAndPersists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.wf.CreateOrder(ctx, 1, seats("A1", "A2"))
	require.NoError(t, err)
	assert.Equal(t, "418", res.Breakdown.Subtotal.String())
	assert.Equal(t, "75.24", res.Breakdown.Tax.String())
	assert.Equal(t, "493.24", res.Amount.String())
	assert.Equal(t, int64(49324), res.AmountMinor)
	assert.Equal(t, int64(49324), e.gw.last)
	assert.Equal(t, "BK20250115001", res.BookingNumber)
	assert.Equal(t, t0.Add(15*time.Minute), res.HoldExpiresAt)

	b, ok := e.store.Booking(res.BookingID)
	require.True(t, ok)
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, []string{"A1", "A2"}, b.Items.Labels())
	assert.Equal(t, res.GatewayOrderID, b.PaymentInfo.GatewayOrderID)

	txn, ok := e.store.TransactionByOrder(res.GatewayOrderID)
	require.True(t, ok)
	assert.Equal(t, model.TxPending, txn.Status)
	assert.True(t, txn.Snapshot.Breakdown.Total.Equal(res.Amount))
	assert.Equal(t, []string{"A1", "A2"}, txn.Snapshot.Selection.Seats)

	assert.Equal(t, inventory.StatusBooked, e.seatStatus(t, 2, "A1"))

	second, err := e.wf.CreateOrder(ctx, 2, seats("A3"))
	require.NoError(t, err)
	assert.Equal(t, "BK20250115002", second.BookingNumber)
}

func TestCreateOrderConflictsOnHeldSeat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.wf.Reservations.Lock(ctx, 10, 1, model.Selection{Seats: []string{"A1"}})
	require.NoError(t, err)

	_, err = e.wf.CreateOrder(ctx, 2, seats("A1", "A2"))
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, []string{"A1"}, ae.Details)
	assert.Zero(t, e.gw.calls)
}

func TestCreateOrderGatewayFailurePersistsNothing(t *testing.T) {
	e := newEnv(t)
	e.gw.fail = errors.New("gateway timeout")

	_, err := e.wf.CreateOrder(context.Background(), 1, seats("A1"))
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindUpstream, ae.Kind)
	assert.Equal(t, "gateway timeout", ae.Message)
	_, ok := e.store.Booking(1)
	assert.False(t, ok)
}

func TestQuoteIsReadOnly(t *testing.T) {
	e := newEnv(t)
	e.store.SetLoyalty(1, decimal.NewFromInt(100))
	req := seats("A1")
	req.UseLoyalty = true
	req.AddOns = []model.AddOnLine{{AddOnID: 1, Quantity: 2}, {AddOnID: 99, Quantity: 1}}

	a, err := e.wf.Quote(context.Background(), 1, req)
	require.NoError(t, err)
	b, err := e.wf.Quote(context.Background(), 1, req)
	require.NoError(t, err)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.Equal(t, string(ja), string(jb))
	assert.Equal(t, "518", a.Subtotal.String())
	assert.Equal(t, "100", a.LoyaltyRedeemed.String())
	assert.Equal(t, []uint64{99}, a.RejectedAddOns)
	assert.Equal(t, "100", e.store.LoyaltyBalance(1).String())
	assert.Zero(t, e.store.HoldCount(10))
}

func TestQuoteRejectsBadDiscount(t *testing.T) {
	e := newEnv(t)
	req := seats("A1")
	req.DiscountCode = "NOPE"
	_, err := e.wf.Quote(context.Background(), 1, req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestVerifyPaymentConfirmsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.SetLoyalty(1, decimal.NewFromInt(50))
	req := seats("A1", "A2")
	req.UseLoyalty = true

	res, err := e.wf.CreateOrder(ctx, 1, req)
	require.NoError(t, err)
	vr := VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: payment.Sign(res.GatewayOrderID, "pay_1", secret)}

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.wf.VerifyPayment(ctx, 1, vr)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.Is(err, apperr.KindConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, conflicts)

	b, _ := e.store.Booking(res.BookingID)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, "pay_1", b.PaymentInfo.GatewayPaymentID)
	assert.NotNil(t, b.ConfirmedAt)
	assert.True(t, e.store.LoyaltyBalance(1).IsZero())

	txn, _ := e.store.TransactionByOrder(res.GatewayOrderID)
	assert.Equal(t, model.TxSuccess, txn.Status)
	require.NotNil(t, txn.GatewayPaymentID)
	assert.Equal(t, "pay_1", *txn.GatewayPaymentID)

	// holds released, seats stay booked; the failing hook did not matter
	assert.Zero(t, e.store.HoldCount(10))
	assert.Equal(t, inventory.StatusBooked, e.seatStatus(t, 2, "A1"))
	assert.Len(t, e.hooked, 1)
}

func TestVerifyPaymentTamperedSignature(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.wf.CreateOrder(ctx, 1, seats("A1"))
	require.NoError(t, err)

	_, err = e.wf.VerifyPayment(ctx, 1, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: "deadbeef"})
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "payment verification failed", ae.Message)

	txn, _ := e.store.TransactionByOrder(res.GatewayOrderID)
	assert.Equal(t, model.TxFailed, txn.Status)
	b, _ := e.store.Booking(res.BookingID)
	assert.Equal(t, model.BookingPending, b.Status)

	// a later valid proof still settles the pending booking
	_, err = e.wf.VerifyPayment(ctx, 1, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: payment.Sign(res.GatewayOrderID, "pay_1", secret)})
	require.NoError(t, err)
}

func TestVerifyPaymentScopedToRequester(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.wf.CreateOrder(ctx, 1, seats("A1"))
	require.NoError(t, err)

	_, err = e.wf.VerifyPayment(ctx, 2, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: payment.Sign(res.GatewayOrderID, "pay_1", secret)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// a bad proof from another account does not fail the owner's order
	_, err = e.wf.VerifyPayment(ctx, 2, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: "bad"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	txn, _ := e.store.TransactionByOrder(res.GatewayOrderID)
	assert.Equal(t, model.TxPending, txn.Status)
}

func TestVerifyPaymentRollsBackOnInsufficientLoyalty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.SetLoyalty(1, decimal.NewFromInt(40))
	req := seats("A1")
	req.UseLoyalty = true
	res, err := e.wf.CreateOrder(ctx, 1, req)
	require.NoError(t, err)

	// balance spent elsewhere between order and payment
	e.store.SetLoyalty(1, decimal.NewFromInt(10))
	_, err = e.wf.VerifyPayment(ctx, 1, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: payment.Sign(res.GatewayOrderID, "pay_1", secret)})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	b, _ := e.store.Booking(res.BookingID)
	assert.Equal(t, model.BookingPending, b.Status)
	txn, _ := e.store.TransactionByOrder(res.GatewayOrderID)
	assert.Equal(t, model.TxPending, txn.Status)
	assert.Equal(t, "10", e.store.LoyaltyBalance(1).String())
}

func TestVerifyPaymentRecordsDiscountRedemption(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	limit := 1
	e.store.AddDiscount(model.DiscountCode{
		ID: 5, Code: "SAVE10", Type: model.DiscountPercent, Value: decimal.NewFromInt(10),
		ValidFrom: t0.Add(-time.Hour), ValidTo: t0.Add(time.Hour), Active: true, LimitPerUser: &limit,
	})
	req := seats("A1")
	req.DiscountCode = "save10"
	res, err := e.wf.CreateOrder(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, "21.8", res.Breakdown.Discount.String())

	_, err = e.wf.VerifyPayment(ctx, 1, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: payment.Sign(res.GatewayOrderID, "pay_1", secret)})
	require.NoError(t, err)
	assert.Equal(t, 1, e.store.Discount(5).UsedCount)

	// the per-user limit is now reached
	_, err = e.wf.Quote(ctx, 1, req)
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "discount code usage limit reached", ae.Message)
}

func TestCancelStaleFreesSeats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.wf.CreateOrder(ctx, 1, seats("A1", "A2"))
	require.NoError(t, err)

	n, err := e.wf.CancelStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clk.Advance(16 * time.Minute)
	n, err = e.wf.CancelStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	b, _ := e.store.Booking(res.BookingID)
	assert.Equal(t, model.BookingCancelled, b.Status)
	assert.NotNil(t, b.CancelledAt)
	txn, _ := e.store.TransactionByOrder(res.GatewayOrderID)
	assert.Equal(t, model.TxFailed, txn.Status)
	assert.Equal(t, inventory.StatusAvailable, e.seatStatus(t, 2, "A1"))
	assert.Equal(t, inventory.StatusAvailable, e.seatStatus(t, 2, "A2"))

	// a late payment cannot revive the cancelled booking
	_, err = e.wf.VerifyPayment(ctx, 1, VerifyRequest{OrderID: res.GatewayOrderID, PaymentID: "pay_1", Signature: payment.Sign(res.GatewayOrderID, "pay_1", secret)})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

type lockOrder struct {
	mu    sync.Mutex
	calls []string
}

func (o *lockOrder) add(call string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call)
}

type orderedBookings struct {
	BookingStore
	log *lockOrder
}

func (b orderedBookings) CancelPending(ctx context.Context, ids []uint64, now time.Time) (int64, error) {
	b.log.add("bookings")
	return b.BookingStore.CancelPending(ctx, ids, now)
}

type orderedTransactions struct {
	TransactionStore
	log *lockOrder
}

func (t orderedTransactions) LockByBookings(ctx context.Context, ids []uint64) error {
	t.log.add("transactions")
	return t.TransactionStore.LockByBookings(ctx, ids)
}

func (t orderedTransactions) LockByOrder(ctx context.Context, orderID string) (model.Transaction, error) {
	t.log.add("transactions")
	return t.TransactionStore.LockByOrder(ctx, orderID)
}

func TestCancelPathsLockTransactionsBeforeBookings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	log := &lockOrder{}
	e.wf.Bookings = orderedBookings{BookingStore: e.wf.Bookings, log: log}
	e.wf.Transactions = orderedTransactions{TransactionStore: e.wf.Transactions, log: log}

	stale, err := e.wf.CreateOrder(ctx, 1, seats("A1"))
	require.NoError(t, err)
	e.clk.Advance(16 * time.Minute)
	n, err := e.wf.CancelStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"transactions", "bookings"}, log.calls)
	txn, _ := e.store.TransactionByOrder(stale.GatewayOrderID)
	assert.Equal(t, model.TxFailed, txn.Status)

	log.calls = nil
	res, err := e.wf.CreateOrder(ctx, 1, seats("A2"))
	require.NoError(t, err)
	require.NoError(t, e.wf.FailTransaction(ctx, res.GatewayOrderID, ""))
	assert.Equal(t, []string{"transactions", "bookings"}, log.calls)
}

func TestFailTransactionCancelsBooking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.wf.CreateOrder(ctx, 1, seats("A1"))
	require.NoError(t, err)

	require.NoError(t, e.wf.FailTransaction(ctx, res.GatewayOrderID, "card declined"))
	b, _ := e.store.Booking(res.BookingID)
	assert.Equal(t, model.BookingCancelled, b.Status)
	txn, _ := e.store.TransactionByOrder(res.GatewayOrderID)
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, "card declined", *txn.FailureReason)

	assert.True(t, apperr.Is(e.wf.FailTransaction(ctx, "order_missing", ""), apperr.KindNotFound))
}

func TestEventOrderConsumesHoldWithoutOverselling(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tickets := func(q int) Request {
		return Request{ShowID: 20, Selection: model.Selection{Tickets: []model.TicketLine{{CategoryID: 7, Quantity: q}}}}
	}
	res, err := e.wf.CreateOrder(ctx, 1, tickets(3))
	require.NoError(t, err)
	assert.Equal(t, "1791.24", res.Amount.String())
	assert.Zero(t, e.store.HoldCount(20))

	_, err = e.wf.CreateOrder(ctx, 2, tickets(2))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = e.wf.CreateOrder(ctx, 2, tickets(1))
	require.NoError(t, err)

	av, err := e.ledger.Availability(ctx, 20, 3)
	require.NoError(t, err)
	assert.Empty(t, av.Categories)
	assert.Equal(t, []uint64{7}, av.SoldOut)
}

func TestBookingsAreScopedToOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.wf.CreateOrder(ctx, 1, seats("A1"))
	require.NoError(t, err)

	_, err = e.wf.GetBooking(ctx, 2, res.BookingID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	b, err := e.wf.GetBooking(ctx, 1, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, res.BookingNumber, b.BookingNumber)

	list, err := e.wf.ListBookings(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = e.wf.ListBookings(ctx, 2, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
