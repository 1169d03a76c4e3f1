// Package subscription delivers live booking lists to viewers.
//
// Every subscriber owns one goroutine and a pending-change counter.  A
// committed mutation bumps the counter of each subscriber whose scope it
// touches; the goroutine then re-reads the complete matching list from the
// store once per pending change and hands it to the callback.  No change
// is swallowed, and every delivered list is a state the store held.
package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Lister reads the current bookings for a query.
type Lister interface {
	List(ctx context.Context, q model.BookingQuery) ([]model.Booking, error)
}

// Relay forwards local changes to other instances.
type Relay interface {
	Send(b model.Booking)
}

const (
	loadTimeout = 5 * time.Second
	retryDelay  = 200 * time.Millisecond
)

type subscriber struct {
	q        model.BookingQuery
	onChange func([]model.Booking)
	wake     chan struct{}
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	pending int

	// deliver is held across the stopped check and the callback.
	deliver sync.Mutex
	stopped bool
}

// poke records one more change to deliver.
func (s *subscriber) poke() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return false
	}
	s.pending--
	return true
}

func (s *subscriber) emit(list []model.Booking) bool {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	if s.stopped {
		return false
	}
	s.onChange(list)
	return true
}

// touches reports whether a change to b can alter the subscriber's list.
// Status filters are deliberately ignored: a booking leaving the filter
// must still refresh the view.
func (s *subscriber) touches(b model.Booking) bool {
	q := s.q
	if q.OwnerID != "" && q.OwnerID != b.OwnerID {
		return false
	}
	if q.RestaurantID != "" && q.RestaurantID != b.RestaurantID {
		return false
	}
	if q.Filter.RestaurantID != "" && q.Filter.RestaurantID != b.RestaurantID {
		return false
	}
	if q.Filter.From != "" && b.Date != "" && b.Date < q.Filter.From {
		return false
	}
	if q.Filter.To != "" && b.Date != "" && b.Date > q.Filter.To {
		return false
	}
	return true
}

// Broker is the in-process subscription hub.
type Broker struct {
	lister Lister
	log    *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	relay  Relay
	closed bool
}

// NewBroker returns a broker reading lists from lister.
func NewBroker(lister Lister, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{lister: lister, log: log, subs: map[*subscriber]struct{}{}}
}

// SetRelay attaches a cross-instance relay.
func (b *Broker) SetRelay(r Relay) {
	b.mu.Lock()
	b.relay = r
	b.mu.Unlock()
}

// Subscribe registers onChange for q.  The current list is delivered
// asynchronously right away.  The returned function stops deliveries: once
// it returns, onChange is not running and will not be called again.
// Calling it again, or after Close, does nothing.  onChange must not call
// it.
func (b *Broker) Subscribe(q model.BookingQuery, onChange func([]model.Booking)) func() {
	s := &subscriber{
		q:        q,
		onChange: onChange,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	s.poke()
	go b.run(s)
	return func() { b.remove(s) }
}

func (b *Broker) remove(s *subscriber) {
	s.once.Do(func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		s.deliver.Lock()
		s.stopped = true
		s.deliver.Unlock()
		close(s.done)
	})
}

func (b *Broker) run(s *subscriber) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for s.take() {
			ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
			list, err := b.lister.List(ctx, s.q)
			cancel()
			if err != nil {
				b.log.Warn("subscription reload failed", "owner_id", s.q.OwnerID, "restaurant_id", s.q.RestaurantID, "err", err)
				time.AfterFunc(retryDelay, s.poke)
				break
			}
			if !s.emit(list) {
				return
			}
		}
	}
}

// Publish announces a committed change locally and to other instances.
func (b *Broker) Publish(bk model.Booking) {
	b.Notify(bk)
	b.mu.Lock()
	relay := b.relay
	b.mu.Unlock()
	if relay != nil {
		relay.Send(bk)
	}
}

// Notify kicks local subscribers whose scope bk touches.
func (b *Broker) Notify(bk model.Booking) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if s.touches(bk) {
			s.poke()
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscription.  Later Subscribe calls return a no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		b.remove(s)
	}
}
