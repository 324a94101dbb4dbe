package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

func sampleEvent() BookingConfirmedEvent {
	confirmed := time.Date(2025, 1, 15, 10, 5, 0, 0, time.UTC)
	b := model.Booking{
		ID: 11, BookingNumber: "BK20250115001", UserID: 1, ShowID: 10, Kind: model.ShowKindSeated,
		Items:    model.BookingItems{{ID: "A1"}, {ID: "A2"}},
		Currency: "INR", ConfirmedAt: &confirmed,
	}
	snap := model.TransactionSnapshot{
		Title:     "Heat",
		StartsAt:  time.Date(2025, 1, 17, 18, 30, 0, 0, time.UTC),
		Breakdown: model.PriceBreakdown{Total: decimal.RequireFromString("493.24")},
	}
	return NewBookingConfirmedEvent(b, snap)
}

func TestNewBookingConfirmedEvent(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, int64(49324), ev.AmountMinor)
	assert.Equal(t, []string{"A1", "A2"}, ev.Items)
	assert.Equal(t, "2025-01-15T10:05:00Z", ev.ConfirmedAt)
	assert.Equal(t, "0.00", ev.Discount)
}

func TestLedgerAppendsLine(t *testing.T) {
	dir := t.TempDir()
	l := BookingLedger{Dir: dir}
	body, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	require.NoError(t, l.handle(body))
	require.NoError(t, l.handle(body))
	assert.Error(t, l.handle([]byte("{")))

	data, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	require.NoError(t, err)
	want := "[2025-01-15T10:05:00Z] Booking confirmed | booking=BK20250115001 | booking_id=11 | user_id=1 | show_id=10 | title=\"Heat\" | starts_at=2025-01-17T18:30:00Z | total=49324 INR | items=[A1,A2]\n"
	assert.Equal(t, want+want, string(data))
}
