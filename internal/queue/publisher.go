package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// BookingConfirmedQueue is the durable queue confirmed bookings go to.
const BookingConfirmedQueue = "booking.confirmed"

// Publisher sends domain events to RabbitMQ.  It dials per message so a
// broker outage never holds resources between confirmations.
type Publisher struct {
	URL string
}

// BookingConfirmed publishes the confirmation as a persistent message.
func (p Publisher) BookingConfirmed(ctx context.Context, b model.Booking, snap model.TransactionSnapshot) error {
	return p.Publish(ctx, BookingConfirmedQueue, NewBookingConfirmedEvent(b, snap))
}

// Publish declares queue and publishes event on the default exchange.
func (p Publisher) Publish(ctx context.Context, queue string, event any) error {
	log := logrus.WithContext(ctx).WithField("queue", queue)
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}
