package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// RedisRelay fans booking changes out to every instance through Redis
// pub/sub.  Messages only carry the scope of the change; receivers reload
// from the shared store like any local kick.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	origin  string
	broker  *Broker
	log     *slog.Logger
}

type relayMessage struct {
	Origin       string `json:"origin"`
	BookingID    string `json:"booking_id"`
	OwnerID      string `json:"owner_id"`
	RestaurantID string `json:"restaurant_id"`
	Date         string `json:"date"`
}

// NewRedisRelay attaches a relay to broker.  It returns nil when rdb is
// nil, leaving the broker local-only.
func NewRedisRelay(rdb *redis.Client, channel string, broker *Broker, log *slog.Logger) *RedisRelay {
	if rdb == nil {
		return nil
	}
	if channel == "" {
		channel = "bookings.changed"
	}
	if log == nil {
		log = slog.Default()
	}
	r := &RedisRelay{rdb: rdb, channel: channel, origin: uuid.NewString(), broker: broker, log: log}
	broker.SetRelay(r)
	return r
}

// Send publishes the change asynchronously.
func (r *RedisRelay) Send(b model.Booking) {
	raw, err := json.Marshal(relayMessage{
		Origin:       r.origin,
		BookingID:    b.ID,
		OwnerID:      b.OwnerID,
		RestaurantID: b.RestaurantID,
		Date:         b.Date,
	})
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
			r.log.Warn("subscription relay publish failed", "channel", r.channel, "err", err)
		}
	}()
}

// Run consumes changes from other instances until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("subscription relay listening", "channel", r.channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay channel closed")
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Warn("subscription relay message dropped", "err", err)
				continue
			}
			if m.Origin == r.origin {
				continue
			}
			r.broker.Notify(model.Booking{ID: m.BookingID, OwnerID: m.OwnerID, RestaurantID: m.RestaurantID, Date: m.Date})
		}
	}
}
