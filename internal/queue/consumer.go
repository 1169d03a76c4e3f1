package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer reads booking events from RabbitMQ and appends one line per
// event to a log file.  It stands in for guest-facing email and SMS
// delivery.
type Consumer struct {
	URL     string
	Queue   string
	LogPath string
	Log     *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
}

// seenWindow bounds how many recent event IDs are remembered.
const seenWindow = 1024

func (c *Consumer) duplicate(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

func (c *Consumer) remember(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]struct{}, seenWindow)
	}
	if len(c.ring) == seenWindow {
		delete(c.seen, c.ring[0])
		c.ring = c.ring[1:]
	}
	c.seen[id] = struct{}{}
	c.ring = append(c.ring, id)
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.  A message that cannot be handled is rejected without
// requeue so a poison message cannot stall the queue.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join("logs", "booking.log")
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("booking consumer dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("booking consumer loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("booking consumer qos failed", "err", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.Log.Info("booking consumer started", "queue", c.Queue, "file", c.LogPath)
	for d := range msgs {
		if err := c.handle(d.Body); err != nil {
			c.Log.Error("booking consumer handle failed", "err", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) handle(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == "" || ev.Type == "" {
		return errors.New("event without booking id or type")
	}
	if ev.EventID != "" && c.duplicate(ev.EventID) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if ev.EventID != "" {
		c.remember(ev.EventID)
	}
	return nil
}

// FormatLine renders ev as a single human-friendly log line.
func FormatLine(ev BookingEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | code=%s | booking_id=%s | owner_id=%s | restaurant=%s | slot=%s %s | party=%d | table=%s | status=%s | guest=%q",
		ev.OccurredAt, summary(ev.Type), ev.ConfirmationCode, ev.BookingID, ev.OwnerID,
		ev.RestaurantID, ev.Date, ev.Time, ev.PartySize, ev.TableType, ev.Status, ev.ContactName)
	if ev.ContactEmail != "" {
		fmt.Fprintf(&b, " | email=%s", ev.ContactEmail)
	}
	if ev.ContactPhone != "" {
		fmt.Fprintf(&b, " | phone=%s", ev.ContactPhone)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, " | reason=%q", ev.Reason)
	}
	b.WriteByte('\n')
	return b.String()
}

func summary(t EventType) string {
	switch t {
	case EventCreated:
		return "Booking received"
	case EventConfirmed:
		return "Booking confirmed"
	case EventCancelled:
		return "Booking cancelled"
	default:
		return string(t)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
