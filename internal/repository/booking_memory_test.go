package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

func newBooking(owner, date, hhmm, code string) *model.Booking {
	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	return &model.Booking{
		OwnerID:          owner,
		RestaurantID:     "r1",
		Date:             date,
		Time:             hhmm,
		PartySize:        2,
		TableType:        model.TableStandard,
		Status:           model.StatusPending,
		Contact:          model.ContactInfo{Name: "Ann", Email: "ann@example.com"},
		ConfirmationCode: code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestMemoryCreateRespectsLimit(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newBooking("a", "2024-12-01", "19:00", "C1"), 2))
	require.NoError(t, s.Create(ctx, newBooking("b", "2024-12-01", "19:00", "C2"), 2))
	err := s.Create(ctx, newBooking("c", "2024-12-01", "19:00", "C3"), 2)
	assert.ErrorIs(t, err, ErrSlotFull)

	counts, err := s.ActiveCounts(ctx, "r1", "2024-12-01")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.SlotKey{RestaurantID: "r1", Date: "2024-12-01", Time: "19:00", TableType: model.TableStandard}])
}

func TestMemoryCreateConcurrentNeverOverbooks(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	const limit = 3

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Create(ctx, newBooking(fmt.Sprintf("o%d", i), "2024-12-01", "19:00", fmt.Sprintf("C%d", i)), limit); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, limit, ok)
}

func TestMemoryDuplicateCode(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newBooking("a", "2024-12-01", "19:00", "SAME"), 5))
	err := s.Create(ctx, newBooking("b", "2024-12-02", "19:00", "SAME"), 5)
	assert.ErrorIs(t, err, ErrDuplicateCode)

	exists, err := s.CodeExists(ctx, "SAME")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryUpdateStatusCompareAndSet(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	b := newBooking("a", "2024-12-01", "19:00", "C1")
	require.NoError(t, s.Create(ctx, b, 1))

	at := time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC)
	_, err := s.UpdateStatus(ctx, StatusChange{BookingID: b.ID, OwnerID: "intruder", From: model.StatusPending, To: model.StatusCancelled, At: at})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := s.UpdateStatus(ctx, StatusChange{BookingID: b.ID, OwnerID: "a", From: model.StatusPending, To: model.StatusCancelled, Reason: "change of plans", At: at})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, at, *got.CancelledAt)
	assert.Equal(t, "change of plans", got.CancellationReason)

	// second writer expected the old status
	_, err = s.UpdateStatus(ctx, StatusChange{BookingID: b.ID, From: model.StatusPending, To: model.StatusConfirmed, At: at})
	assert.ErrorIs(t, err, ErrStatusChanged)

	// the table was released
	require.NoError(t, s.Create(ctx, newBooking("b", "2024-12-01", "19:00", "C2"), 1))

	_, err = s.UpdateStatus(ctx, StatusChange{BookingID: "missing", From: model.StatusPending, To: model.StatusConfirmed, At: at})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListOrderingAndFilters(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newBooking("a", "2024-12-01", "18:00", "C1"), 5))
	require.NoError(t, s.Create(ctx, newBooking("a", "2024-12-03", "12:00", "C2"), 5))
	require.NoError(t, s.Create(ctx, newBooking("a", "2024-12-01", "20:00", "C3"), 5))
	require.NoError(t, s.Create(ctx, newBooking("b", "2024-12-02", "19:00", "C4"), 5))

	got, err := s.List(ctx, model.BookingQuery{OwnerID: "a"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"C2", "C3", "C1"}, codes(got))

	got, err = s.List(ctx, model.BookingQuery{OwnerID: "a", Filter: model.BookingFilter{Ascending: true, To: "2024-12-02"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C3"}, codes(got))

	got, err = s.List(ctx, model.BookingQuery{RestaurantID: "r1", Filter: model.BookingFilter{Statuses: []model.Status{model.StatusConfirmed}}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryUpdateSpecialRequests(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	b := newBooking("a", "2024-12-01", "19:00", "C1")
	require.NoError(t, s.Create(ctx, b, 1))
	at := time.Date(2024, 11, 3, 9, 0, 0, 0, time.UTC)

	got, err := s.UpdateSpecialRequests(ctx, b.ID, "a", "window seat", at)
	require.NoError(t, err)
	assert.Equal(t, "window seat", got.SpecialRequests)
	assert.Equal(t, at, got.UpdatedAt)

	_, err = s.UpdateSpecialRequests(ctx, b.ID, "b", "x", at)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.UpdateStatus(ctx, StatusChange{BookingID: b.ID, From: model.StatusPending, To: model.StatusCancelled, At: at})
	require.NoError(t, err)
	_, err = s.UpdateSpecialRequests(ctx, b.ID, "a", "y", at)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReturnedBookingsAreCopies(t *testing.T) {
	s := NewMemoryBookingStore()
	ctx := context.Background()
	b := newBooking("a", "2024-12-01", "19:00", "C1")
	require.NoError(t, s.Create(ctx, b, 1))
	at := time.Date(2024, 11, 3, 9, 0, 0, 0, time.UTC)
	got, err := s.UpdateStatus(ctx, StatusChange{BookingID: b.ID, From: model.StatusPending, To: model.StatusCancelled, At: at})
	require.NoError(t, err)

	*got.CancelledAt = at.Add(time.Hour)
	again, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, at, *again.CancelledAt)
}

func codes(bs []model.Booking) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ConfirmationCode
	}
	return out
}
