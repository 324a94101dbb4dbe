// Package artifact renders the scannable ticket of a confirmed booking.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// Payload builds the pipe-delimited ticket text:
//
//	bookingNumber|bookingId|title|seatsOrItems|date|time
//
// Dates are rendered in loc (UTC when nil).
func Payload(b model.Booking, snap model.TransactionSnapshot, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	starts := snap.StartsAt.In(loc)
	return strings.Join([]string{
		b.BookingNumber,
		strconv.FormatUint(b.ID, 10),
		clean(snap.Title),
		clean(itemsLabel(b, snap)),
		starts.Format("2006-01-02"),
		starts.Format("15:04"),
	}, "|")
}

// itemsLabel lists seats as "A1,A2" and tickets as "Floor x2".
func itemsLabel(b model.Booking, snap model.TransactionSnapshot) string {
	items := b.Items
	if len(items) == 0 {
		items = snap.Items
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if snap.Kind == model.ShowKindEvent || it.Quantity > 1 {
			label := it.Name
			if label == "" {
				label = it.ID
			}
			parts = append(parts, fmt.Sprintf("%s x%d", label, it.Quantity))
			continue
		}
		parts = append(parts, it.ID)
	}
	return strings.Join(parts, ",")
}

func clean(s string) string { return strings.ReplaceAll(s, "|", "/") }

// AssetResolver turns a stored asset id into a public URL, or "" when
// the asset cannot be addressed.
type AssetResolver interface {
	Resolve(assetID string) string
}

// BaseURL resolves assets below a fixed public prefix.
type BaseURL string

func (u BaseURL) Resolve(assetID string) string {
	if assetID == "" || u == "" {
		return ""
	}
	return strings.TrimRight(string(u), "/") + "/" + strings.TrimLeft(assetID, "/")
}

// QRRenderer writes PNG QR codes of the ticket payload to Dir.
type QRRenderer struct {
	Dir      string
	Size     int
	Level    qrcode.RecoveryLevel
	Assets   AssetResolver
	Location *time.Location
}

func NewQRRenderer(dir string, assets AssetResolver) *QRRenderer {
	return &QRRenderer{Dir: dir, Size: 256, Level: qrcode.Medium, Assets: assets}
}

// Render writes <booking number>.png and returns its URL.
func (r *QRRenderer) Render(_ context.Context, b model.Booking, snap model.TransactionSnapshot) (string, error) {
	if b.BookingNumber == "" {
		return "", errors.New("artifact: booking number is empty")
	}
	png, err := qrcode.Encode(Payload(b, snap, r.Location), r.Level, r.Size)
	if err != nil {
		return "", fmt.Errorf("artifact: encode qr: %w", err)
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", err
	}
	name := b.BookingNumber + ".png"
	if err := os.WriteFile(filepath.Join(r.Dir, name), png, 0o644); err != nil {
		return "", err
	}
	url := r.Assets.Resolve(name)
	if url == "" {
		return "", fmt.Errorf("artifact: no public url for %s", name)
	}
	return url, nil
}

// TicketStore records where a booking's ticket lives.
type TicketStore interface {
	AttachTicket(ctx context.Context, bookingID uint64, url string) error
}

// Hook renders the ticket inline after confirmation.  It is used when no
// background worker is configured.
type Hook struct {
	Renderer *QRRenderer
	Store    TicketStore
}

func (h Hook) BookingConfirmed(ctx context.Context, b model.Booking, snap model.TransactionSnapshot) error {
	url, err := h.Renderer.Render(ctx, b, snap)
	if err != nil {
		return err
	}
	return h.Store.AttachTicket(ctx, b.ID, url)
}
