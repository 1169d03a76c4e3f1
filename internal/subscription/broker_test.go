package subscription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]model.Booking
}

func (r *recorder) record(list []model.Booking) {
	r.mu.Lock()
	r.calls = append(r.calls, list)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() []model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func booking(owner, code string) *model.Booking {
	now := time.Now().UTC()
	return &model.Booking{
		OwnerID:          owner,
		RestaurantID:     "r1",
		Date:             "2030-01-05",
		Time:             "19:00",
		PartySize:        2,
		TableType:        model.TableStandard,
		Status:           model.StatusPending,
		Contact:          model.ContactInfo{Name: "Ann", Phone: "555"},
		ConfirmationCode: code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	store := repository.NewMemoryBookingStore()
	require.NoError(t, store.Create(context.Background(), booking("a", "C1"), 5))
	b := NewBroker(store, nil)
	defer b.Close()

	rec := &recorder{}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)
	defer unsubscribe()

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.last(), 1)
}

func TestCreateThenCancelEndsOnCancelledState(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryBookingStore()
	b := NewBroker(store, nil)
	defer b.Close()

	rec := &recorder{}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)
	defer unsubscribe()

	bk := booking("a", "C1")
	require.NoError(t, store.Create(ctx, bk, 5))
	b.Publish(*bk)
	cancelled, err := store.UpdateStatus(ctx, repository.StatusChange{
		BookingID: bk.ID, From: model.StatusPending, To: model.StatusCancelled, Reason: "change of plans", At: time.Now().UTC(),
	})
	require.NoError(t, err)
	b.Publish(cancelled)

	assert.Eventually(t, func() bool {
		last := rec.last()
		return rec.count() >= 2 && len(last) == 1 && last[0].Status == model.StatusCancelled
	}, time.Second, 5*time.Millisecond)

	// every delivery is a committed state: a cancelled booking always has cancelled_at
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, list := range rec.calls {
		for _, got := range list {
			assert.Equal(t, got.Status == model.StatusCancelled, got.CancelledAt != nil)
		}
	}
}

func TestBackToBackChangesEachDeliver(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		store := repository.NewMemoryBookingStore()
		b := NewBroker(store, nil)

		rec := &recorder{}
		unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)

		bk := booking("a", "C1")
		require.NoError(t, store.Create(ctx, bk, 5))
		b.Publish(*bk)
		cancelled, err := store.UpdateStatus(ctx, repository.StatusChange{
			BookingID: bk.ID, From: model.StatusPending, To: model.StatusCancelled, At: time.Now().UTC(),
		})
		require.NoError(t, err)
		b.Publish(cancelled)

		// initial snapshot plus one delivery per change
		require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, time.Millisecond)
		last := rec.last()
		require.Len(t, last, 1)
		assert.Equal(t, model.StatusCancelled, last[0].Status)

		unsubscribe()
		b.Close()
	}
}

func TestNoDeliveryAfterUnsubscribeReturns(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryBookingStore()
	b := NewBroker(store, nil)
	defer b.Close()

	rec := &recorder{}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, func(list []model.Booking) {
		time.Sleep(2 * time.Millisecond)
		rec.record(list)
	})
	for i := 0; i < 10; i++ {
		bk := booking("a", "C"+string(rune('A'+i)))
		require.NoError(t, store.Create(ctx, bk, 50))
		b.Publish(*bk)
	}
	time.Sleep(5 * time.Millisecond)

	unsubscribe()
	seen := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, rec.count())
}

func TestStatusFilterDropsCancelledBooking(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryBookingStore()
	b := NewBroker(store, nil)
	defer b.Close()

	bk := booking("a", "C1")
	require.NoError(t, store.Create(ctx, bk, 5))

	rec := &recorder{}
	f := model.BookingFilter{Statuses: []model.Status{model.StatusPending, model.StatusConfirmed}}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a", Filter: f}, rec.record)
	defer unsubscribe()
	assert.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	cancelled, err := store.UpdateStatus(ctx, repository.StatusChange{BookingID: bk.ID, From: model.StatusPending, To: model.StatusCancelled, At: time.Now().UTC()})
	require.NoError(t, err)
	b.Publish(cancelled)

	assert.Eventually(t, func() bool { return rec.count() >= 2 && len(rec.last()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestOtherOwnersChangesAreIgnored(t *testing.T) {
	store := repository.NewMemoryBookingStore()
	b := NewBroker(store, nil)
	defer b.Close()

	rec := &recorder{}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)
	defer unsubscribe()
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	other := booking("b", "C9")
	require.NoError(t, store.Create(context.Background(), other, 5))
	b.Publish(*other)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	store := repository.NewMemoryBookingStore()
	b := NewBroker(store, nil)

	rec := &recorder{}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, b.Len())

	bk := booking("a", "C1")
	require.NoError(t, store.Create(context.Background(), bk, 5))
	b.Publish(*bk)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	b.Close()
	assert.NotPanics(t, unsubscribe)
	noop := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)
	assert.NotPanics(t, noop)
}

func TestUnsubscribeAfterCloseIsSafe(t *testing.T) {
	b := NewBroker(repository.NewMemoryBookingStore(), nil)
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, func([]model.Booking) {})
	b.Close()
	assert.NotPanics(t, unsubscribe)
	assert.NotPanics(t, unsubscribe)
}

type flakyLister struct {
	inner Lister
	fails int32
}

func (f *flakyLister) List(ctx context.Context, q model.BookingQuery) ([]model.Booking, error) {
	if atomic.AddInt32(&f.fails, -1) >= 0 {
		return nil, errors.New("store down")
	}
	return f.inner.List(ctx, q)
}

func TestReloadRetriesAfterStoreError(t *testing.T) {
	store := repository.NewMemoryBookingStore()
	require.NoError(t, store.Create(context.Background(), booking("a", "C1"), 5))
	b := NewBroker(&flakyLister{inner: store, fails: 2}, nil)
	defer b.Close()

	rec := &recorder{}
	unsubscribe := b.Subscribe(model.BookingQuery{OwnerID: "a"}, rec.record)
	defer unsubscribe()

	assert.Eventually(t, func() bool { return len(rec.last()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
