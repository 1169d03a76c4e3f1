package service

import (
	"context"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// BookingStore is the durable booking storage the engine drives.  Both
// repository.BookingRepo and repository.MemoryBookingStore satisfy it.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking, limit int) error
	Get(ctx context.Context, id string) (model.Booking, error)
	GetForOwner(ctx context.Context, id, ownerID string) (model.Booking, error)
	List(ctx context.Context, q model.BookingQuery) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, ch repository.StatusChange) (model.Booking, error)
	UpdateSpecialRequests(ctx context.Context, id, ownerID, text string, at time.Time) (model.Booking, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ActiveCounts(ctx context.Context, restaurantID, date string) (map[model.SlotKey]int, error)
}

// Directory supplies restaurant inventory and service hours.
type Directory interface {
	Restaurant(ctx context.Context, id string) (model.Restaurant, error)
}

// Broker is the live-view side of the engine.  Publish is called after
// every committed mutation; Subscribe registers a viewer.
type Broker interface {
	Publish(b model.Booking)
	Subscribe(q model.BookingQuery, onChange func([]model.Booking)) (unsubscribe func())
}

// Notifier is the outbound notification channel.  It is invoked
// asynchronously and its failures never affect a mutation.
type Notifier interface {
	Notify(ctx context.Context, ev queue.BookingEvent) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, queue.BookingEvent) error { return nil }

// ConfirmGate is consulted before a booking may become confirmed, for
// example to check that a deposit was captured.  A non-nil error blocks
// the confirmation.
type ConfirmGate interface {
	AllowConfirm(ctx context.Context, b model.Booking) error
}

// ConfirmGateFunc adapts a function to ConfirmGate.
type ConfirmGateFunc func(ctx context.Context, b model.Booking) error

// AllowConfirm implements ConfirmGate.
func (f ConfirmGateFunc) AllowConfirm(ctx context.Context, b model.Booking) error { return f(ctx, b) }
