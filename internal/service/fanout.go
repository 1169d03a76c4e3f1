package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
)

// fanout runs the side effects of a committed mutation: cache
// invalidation, live-view publication and the fire-and-forget
// notification.  None of them can fail the mutation.
type fanout struct {
	broker   Broker
	notifier Notifier
	cache    *AvailabilityCache
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// eventFor maps a committed status to the notification it triggers.
// Only creation, confirmation and cancellation are announced.
func eventFor(created bool, b model.Booking) (queue.EventType, bool) {
	switch {
	case created:
		return queue.EventCreated, true
	case b.Status == model.StatusConfirmed:
		return queue.EventConfirmed, true
	case b.Status == model.StatusCancelled:
		return queue.EventCancelled, true
	}
	return "", false
}

func (f *fanout) committed(ctx context.Context, b model.Booking, created bool) {
	f.cache.Invalidate(ctx, b.RestaurantID, b.Date)
	if f.broker != nil {
		f.broker.Publish(b)
	}
	t, ok := eventFor(created, b)
	if !ok || f.notifier == nil {
		return
	}
	ev := queue.NewBookingEvent(t, b, f.now())
	// detached from the request so a finished response does not cancel it
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	go func() {
		defer cancel()
		if err := f.notifier.Notify(nctx, ev); err != nil {
			f.log.Warn("booking notification failed", "type", ev.Type, "booking_id", b.ID, "err", err)
		}
	}()
}
