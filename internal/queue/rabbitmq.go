package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue booking events are routed to.
const DefaultQueue = "booking.events"

// RabbitPublisher publishes booking events to a durable RabbitMQ queue
// through the default exchange.  Each publish dials its own connection so a
// broker restart never leaves the publisher holding a dead channel.  Errors
// are logged and returned; callers decide whether to ignore them.
type RabbitPublisher struct {
	url   string
	queue string
	log   *slog.Logger
}

// NewRabbitPublisher returns a publisher for url.  An empty queue name
// selects DefaultQueue.
func NewRabbitPublisher(url, queue string, log *slog.Logger) *RabbitPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = slog.Default()
	}
	return &RabbitPublisher{url: url, queue: queue, log: log}
}

// Notify publishes ev as a persistent JSON message.
func (p *RabbitPublisher) Notify(ctx context.Context, ev BookingEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq dial failed", "err", err)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq channel open failed", "err", err)
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		p.log.Warn("rabbitmq queue declare failed", "queue", p.queue, "err", err)
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq publish failed", "queue", p.queue, "booking_id", ev.BookingID, "err", err)
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
