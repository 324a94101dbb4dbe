package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/clock"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/inventory"
	"github.com/iliyamo/cinema-ticketing/internal/memstore"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/order"
	"github.com/iliyamo/cinema-ticketing/internal/payment"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/reservation"
	"github.com/iliyamo/cinema-ticketing/internal/router"
	"github.com/iliyamo/cinema-ticketing/internal/sequence"
)

const (
	jwtSecret = "jwt-secret"
	gwSecret  = "gw-secret"
)

var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

type server struct {
	t       *testing.T
	e       *echo.Echo
	store   *memstore.Store
	clk     *clock.Fixed
	tickets string
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *memCache) SetEx(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func newServer(t *testing.T) *server {
	t.Helper()
	st := memstore.New()
	st.AddShow(model.Show{ID: 10, VenueID: 1, Kind: model.ShowKindSeated, Title: "Heat", StartsAt: t0.Add(48 * time.Hour), Status: model.ShowStatusPublished})
	st.AddSeats(10, "PREMIUM", "A1", "A2", "A3")
	st.SetRate(model.Rate{ShowID: 10, Category: "PREMIUM", BasePrice: decimal.NewFromInt(200)})

	clk := clock.NewFixed(t0)
	seatHolds, ticketHolds := st.SeatHolds(), st.TicketHolds()
	ledger := inventory.NewLedger(st, clk,
		inventory.NewSeatStrategy(st, seatHolds, st),
		inventory.NewCategoryStrategy(st, ticketHolds, st),
	)
	manager := reservation.NewManager(st, st, ledger, clk, reservation.DefaultTTL, seatHolds, ticketHolds)
	wf := order.New(order.Deps{
		Tx:           st,
		Shows:        st,
		Catalog:      st,
		Bookings:     st.Bookings(),
		Transactions: st.Transactions(),
		Discounts:    st.Discounts(),
		Loyalty:      st,
		Ledger:       ledger,
		Reservations: manager,
		Pricing: pricing.Engine{
			PlatformFee: decimal.NewFromInt(18),
			TaxRate:     decimal.RequireFromString("0.18"),
			Currency:    "INR",
			Calendar:    pricing.Calendar{Holidays: pricing.NoHolidays{}},
		},
		Gateway:  payment.SandboxGateway{Currency: "INR"},
		Verifier: payment.Verifier{Secret: gwSecret},
		Numbers:  sequence.Numberer{Clock: clk, Counter: st},
		Clock:    clk,
	})

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(true)
	guards := router.Guards{JWTSecret: jwtSecret}
	tickets := t.TempDir()
	cache := middleware.NewRedisCache(config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, KeyStrategy: "route", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}, &memCache{data: map[string][]byte{}})
	router.RegisterRoutes(e, nil)
	router.RegisterTickets(e, "/tickets", tickets, cache)
	router.RegisterCustomer(e, handler.NewCustomerHandler(ledger, manager, wf), guards)
	router.RegisterAdmin(e, handler.NewAdminHandler(wf), guards)
	return &server{t: t, e: e, store: st, clk: clk, tickets: tickets}
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return tok
}

func (s *server) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAvailabilityRequiresCustomer(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/shows/10/availability", "", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/shows/10/availability", bearer(t, 1, middleware.RoleOwner), "").Code)

	rec := s.do(http.MethodGet, "/v1/shows/10/availability", bearer(t, 1, middleware.RoleCustomer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var av inventory.Availability
	decode(t, rec, &av)
	assert.Len(t, av.Seats, 3)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/shows/abc/availability", bearer(t, 1, middleware.RoleCustomer), "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/shows/99/availability", bearer(t, 1, middleware.RoleCustomer), "").Code)
}

func TestLockConflictListsUnavailableSeats(t *testing.T) {
	s := newServer(t)
	alice, bob := bearer(t, 1, middleware.RoleCustomer), bearer(t, 2, middleware.RoleCustomer)

	rec := s.do(http.MethodPost, "/v1/shows/10/lock", alice, `{"seats":["a1","A2"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lock reservation.LockResult
	decode(t, rec, &lock)
	assert.Equal(t, []string{"A1", "A2"}, lock.Items)
	assert.True(t, lock.ExpiresAt.Equal(t0.Add(reservation.DefaultTTL)))

	rec = s.do(http.MethodPost, "/v1/shows/10/lock", bob, `{"seats":["A2","A3"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error       string   `json:"error"`
		Unavailable []string `json:"unavailable"`
	}
	decode(t, rec, &body)
	assert.Equal(t, []string{"A2"}, body.Unavailable)

	rec = s.do(http.MethodDelete, "/v1/shows/10/lock", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"released":["A1","A2"]}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/shows/10/lock", bob, `{"seats":["A2","A3"]}`).Code)
}

func TestAvailabilityReflectsOwnLockAndRelease(t *testing.T) {
	s := newServer(t)
	alice := bearer(t, 1, middleware.RoleCustomer)
	seat := func() inventory.Status {
		rec := s.do(http.MethodGet, "/v1/shows/10/availability", alice, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
		var av inventory.Availability
		decode(t, rec, &av)
		for _, st := range av.Seats {
			if st.Key == "A1" {
				return st.Status
			}
		}
		t.Fatal("A1 missing from availability")
		return ""
	}

	assert.Equal(t, inventory.StatusAvailable, seat())
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/shows/10/lock", alice, `{"seats":["A1"]}`).Code)
	assert.Equal(t, inventory.StatusHeldByMe, seat())
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/v1/shows/10/lock", alice, "").Code)
	assert.Equal(t, inventory.StatusAvailable, seat())
}

func TestTicketImagesServedThroughCache(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/tickets/BK20250115001.png", "", "").Code)

	require.NoError(t, os.WriteFile(filepath.Join(s.tickets, "BK20250115001.png"), []byte("png-bytes"), 0o644))
	first := s.do(http.MethodGet, "/tickets/BK20250115001.png", "", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := s.do(http.MethodGet, "/tickets/BK20250115001.png", "", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "png-bytes", second.Body.String())
}

func TestReleaseRejectsSelectionOfOtherShowType(t *testing.T) {
	s := newServer(t)
	alice := bearer(t, 1, middleware.RoleCustomer)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/shows/10/lock", alice, `{"seats":["A1","A2"]}`).Code)

	rec := s.do(http.MethodDelete, "/v1/shows/10/lock", alice, `{"tickets":[{"category_id":99,"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = s.do(http.MethodDelete, "/v1/shows/10/lock", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"released":["A1","A2"]}`, rec.Body.String())
}

func TestLockValidation(t *testing.T) {
	s := newServer(t)
	alice := bearer(t, 1, middleware.RoleCustomer)

	cases := map[string]string{
		"empty":          `{}`,
		"malformed":      `{"seats":`,
		"zero quantity":  `{"tickets":[{"category_id":7,"quantity":0}]}`,
		"blank seat":     `{"seats":[""]}`,
		"too many seats": `{"seats":["A1","A2","A3","A4","A5","A6","A7","A8","A9","A10","A11","A12","A13","A14","A15","A16","A17","A18","A19","A20","A21"]}`,
		"unknown seat":   `{"seats":["Z9"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/v1/shows/10/lock", alice, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := s.do(http.MethodPost, "/v1/shows/10/lock", alice, `{"tickets":[{"category_id":7,"quantity":0}]}`)
	assert.Contains(t, rec.Body.String(), "tickets[0].quantity: min")
}

func TestQuoteDoesNotHold(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodPost, "/v1/shows/10/quote", bearer(t, 1, middleware.RoleCustomer), `{"seats":["A1"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bd model.PriceBreakdown
	decode(t, rec, &bd)
	assert.Equal(t, "257.24", bd.Total.StringFixed(2))
	assert.Zero(t, s.store.HoldCount(10))
}

func TestOrderVerifyAndBookings(t *testing.T) {
	s := newServer(t)
	alice, bob := bearer(t, 1, middleware.RoleCustomer), bearer(t, 2, middleware.RoleCustomer)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/orders", alice, `{"seats":["A1"]}`).Code)

	rec := s.do(http.MethodPost, "/v1/orders", alice, `{"show_id":10,"seats":["A1"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res order.OrderResult
	decode(t, rec, &res)
	assert.Equal(t, int64(25724), res.AmountMinor)
	assert.Equal(t, "BK20250115001", res.BookingNumber)
	assert.Equal(t, "sandbox", res.Gateway)

	verify := func(token, sig string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{
			"gateway_order_id":   res.GatewayOrderID,
			"gateway_payment_id": "pay_1",
			"signature":          sig,
		})
		return s.do(http.MethodPost, "/v1/orders/verify", token, string(body))
	}
	assert.Equal(t, http.StatusBadRequest, verify(alice, "deadbeef").Code)
	assert.Equal(t, http.StatusNotFound, verify(bob, payment.Sign(res.GatewayOrderID, "pay_1", gwSecret)).Code)

	rec = verify(alice, payment.Sign(res.GatewayOrderID, "pay_1", gwSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var booking struct {
		ID     uint64 `json:"id"`
		Status string `json:"status"`
	}
	decode(t, rec, &booking)
	assert.Equal(t, "confirmed", booking.Status)

	assert.Equal(t, http.StatusConflict, verify(alice, payment.Sign(res.GatewayOrderID, "pay_1", gwSecret)).Code)

	path := "/v1/bookings/" + strconv.FormatUint(booking.ID, 10)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, alice, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, bob, "").Code)

	rec = s.do(http.MethodGet, "/v1/bookings?limit=5", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Bookings []model.Booking `json:"bookings"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Bookings, 1)

	rec = s.do(http.MethodGet, "/v1/bookings", bob, "")
	assert.JSONEq(t, `{"bookings":[]}`, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/bookings?limit=-1", bob, "").Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	alice, owner := bearer(t, 1, middleware.RoleCustomer), bearer(t, 50, middleware.RoleOwner)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/admin/bookings/cancel-stale", alice, "").Code)

	rec := s.do(http.MethodPost, "/v1/orders", alice, `{"show_id":10,"seats":["A1"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var res order.OrderResult
	decode(t, rec, &res)

	rec = s.do(http.MethodPost, "/v1/admin/transactions/"+res.GatewayOrderID+"/fail", owner, `{"reason":"card declined"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b, ok := s.store.Booking(res.BookingID)
	require.True(t, ok)
	assert.Equal(t, model.BookingCancelled, b.Status)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/admin/transactions/order_missing/fail", owner, "").Code)

	rec = s.do(http.MethodPost, "/v1/admin/bookings/cancel-stale", owner, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":0}`, rec.Body.String())
}
