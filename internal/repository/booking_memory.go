package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// MemoryBookingStore keeps bookings in process memory.  It offers the same
// semantics as BookingRepo: the active count per slot is checked and
// bumped under one lock, status changes are compare-and-set, and callers
// always receive copies so no reader can observe a half-applied write.
type MemoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[string]model.Booking
	codes    map[string]struct{}
	active   map[model.SlotKey]int
}

// NewMemoryBookingStore returns an empty store.
func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{
		bookings: map[string]model.Booking{},
		codes:    map[string]struct{}{},
		active:   map[model.SlotKey]int{},
	}
}

func clone(b model.Booking) model.Booking {
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		b.CancelledAt = &t
	}
	return b
}

// Create inserts b if fewer than limit active bookings hold its slot.
func (s *MemoryBookingStore) Create(ctx context.Context, b *model.Booking, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.codes[b.ConfirmationCode]; dup {
		return ErrDuplicateCode
	}
	key := b.Slot()
	if b.Status.Active() && s.active[key] >= limit {
		return ErrSlotFull
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.bookings[b.ID] = clone(*b)
	s.codes[b.ConfirmationCode] = struct{}{}
	if b.Status.Active() {
		s.active[key]++
	}
	return nil
}

// Get returns a booking by id or ErrNotFound.
func (s *MemoryBookingStore) Get(ctx context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return clone(b), nil
}

// GetForOwner returns the booking if ownerID owns it.
func (s *MemoryBookingStore) GetForOwner(ctx context.Context, id, ownerID string) (model.Booking, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.OwnerID != ownerID {
		return model.Booking{}, ErrForbidden
	}
	return b, nil
}

// List returns the matching bookings sorted the same way BookingRepo does.
func (s *MemoryBookingStore) List(ctx context.Context, q model.BookingQuery) ([]model.Booking, error) {
	s.mu.RLock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		if q.Matches(b) {
			out = append(out, clone(b))
		}
	}
	s.mu.RUnlock()
	SortBookings(out, q.Filter.Ascending)
	return out, nil
}

// SortBookings orders bookings by date, time, creation time and id,
// descending unless asc is set.
func SortBookings(bs []model.Booking, asc bool) {
	sort.SliceStable(bs, func(i, j int) bool {
		c := compareBookings(bs[i], bs[j])
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareBookings(a, b model.Booking) int {
	switch {
	case a.Date != b.Date:
		return strings.Compare(a.Date, b.Date)
	case a.Time != b.Time:
		return strings.Compare(a.Time, b.Time)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return strings.Compare(a.ID, b.ID)
}

// UpdateStatus applies a status compare-and-set.
func (s *MemoryBookingStore) UpdateStatus(ctx context.Context, ch StatusChange) (model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return model.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[ch.BookingID]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	if ch.OwnerID != "" && b.OwnerID != ch.OwnerID {
		return model.Booking{}, ErrForbidden
	}
	if b.Status != ch.From {
		return model.Booking{}, ErrStatusChanged
	}
	b.Status = ch.To
	b.UpdatedAt = ch.At
	if ch.To == model.StatusCancelled {
		at := ch.At
		b.CancelledAt = &at
		b.CancellationReason = ch.Reason
	}
	if ch.From.Active() && !ch.To.Active() {
		key := b.Slot()
		if s.active[key] > 0 {
			s.active[key]--
		}
	}
	s.bookings[b.ID] = b
	return clone(b), nil
}

// UpdateSpecialRequests replaces the requests text of a non-terminal
// booking owned by ownerID.
func (s *MemoryBookingStore) UpdateSpecialRequests(ctx context.Context, id, ownerID, text string, at time.Time) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	if b.OwnerID != ownerID {
		return model.Booking{}, ErrForbidden
	}
	if b.Status.Terminal() {
		return model.Booking{}, ErrConflict
	}
	b.SpecialRequests = text
	b.UpdatedAt = at
	s.bookings[id] = b
	return clone(b), nil
}

// CodeExists reports whether code was ever assigned.
func (s *MemoryBookingStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

// ActiveCounts returns active bookings per slot at a restaurant on a date.
func (s *MemoryBookingStore) ActiveCounts(ctx context.Context, restaurantID, date string) (map[model.SlotKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[model.SlotKey]int{}
	for k, n := range s.active {
		if k.RestaurantID == restaurantID && k.Date == date && n > 0 {
			out[k] = n
		}
	}
	return out, nil
}
