// Package tasks runs the background work of the booking service on asynq:
// ticket rendering after confirmation and the periodic cancellation of
// unpaid bookings.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

const (
	TypeRenderTicket = "ticket:render"
	TypeCancelStale  = "booking:cancel_stale"
	TypeSweepHolds   = "holds:sweep"
)

type RenderTicketPayload struct {
	BookingID uint64 `json:"booking_id"`
}

func NewRenderTicketTask(bookingID uint64) (*asynq.Task, error) {
	payload, err := json.Marshal(RenderTicketPayload{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRenderTicket, payload, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands ticket rendering to the worker after confirmation.
type Dispatcher struct {
	Client Enqueuer
}

func (d Dispatcher) BookingConfirmed(ctx context.Context, b model.Booking, _ model.TransactionSnapshot) error {
	task, err := NewRenderTicketTask(b.ID)
	if err != nil {
		return err
	}
	info, err := d.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeRenderTicket, err)
	}
	logrus.WithContext(ctx).WithFields(logrus.Fields{"booking_id": b.ID, "task_id": info.ID}).Debug("ticket render queued")
	return nil
}

// Settlement is the part of the order workflow the worker drives.
type Settlement interface {
	ConfirmedBooking(ctx context.Context, bookingID uint64) (model.Booking, model.TransactionSnapshot, error)
	AttachTicket(ctx context.Context, bookingID uint64, url string) error
	CancelStale(ctx context.Context) (int64, error)
}

type Renderer interface {
	Render(ctx context.Context, b model.Booking, snap model.TransactionSnapshot) (string, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type Handlers struct {
	Settlement Settlement
	Renderer   Renderer
	Holds      Sweeper
}

func (h *Handlers) HandleRenderTicket(ctx context.Context, t *asynq.Task) error {
	var p RenderTicketPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	b, snap, err := h.Settlement.ConfirmedBooking(ctx, p.BookingID)
	if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindConflict) {
		return fmt.Errorf("booking %d: %v: %w", p.BookingID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if b.TicketURL != nil {
		return nil
	}
	url, err := h.Renderer.Render(ctx, b, snap)
	if err != nil {
		return err
	}
	if err := h.Settlement.AttachTicket(ctx, b.ID, url); err != nil {
		return err
	}
	logrus.WithContext(ctx).WithFields(logrus.Fields{"booking_id": b.ID, "ticket_url": url}).Info("ticket rendered")
	return nil
}

func (h *Handlers) HandleCancelStale(ctx context.Context, _ *asynq.Task) error {
	_, err := h.Settlement.CancelStale(ctx)
	return err
}

func (h *Handlers) HandleSweepHolds(ctx context.Context, _ *asynq.Task) error {
	n, err := h.Holds.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logrus.WithContext(ctx).WithField("holds", n).Info("expired holds swept")
	}
	return nil
}

// Mux routes task types to their handlers.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRenderTicket, h.HandleRenderTicket)
	mux.HandleFunc(TypeCancelStale, h.HandleCancelStale)
	mux.HandleFunc(TypeSweepHolds, h.HandleSweepHolds)
	return mux
}

// Registrar is satisfied by *asynq.Scheduler.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterPeriodic schedules stale-booking cancellation every minute and
// a global hold sweep every five.
func RegisterPeriodic(s Registrar) error {
	if _, err := s.Register("*/1 * * * *", asynq.NewTask(TypeCancelStale, nil), asynq.Unique(time.Minute)); err != nil {
		return err
	}
	_, err := s.Register("*/5 * * * *", asynq.NewTask(TypeSweepHolds, nil), asynq.Unique(5*time.Minute))
	return err
}

// ServerConfig mirrors the queue weights used by the worker.
func ServerConfig(concurrency int) asynq.Config {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		Logger: logrus.StandardLogger(),
	}
}
