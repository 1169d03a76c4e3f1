package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// Resolver derives open capacity from a restaurant's inventory minus its
// active bookings.  It is a read-only snapshot: it never takes part in
// write-side conflict resolution and its answer must be re-checked at
// commit time.
type Resolver struct {
	store BookingStore
	dir   Directory
	cache *AvailabilityCache
	step  time.Duration
	retry RetryPolicy
	now   func() time.Time
}

// NewResolver builds a resolver with the default slot granularity step.
func NewResolver(store BookingStore, dir Directory, cache *AvailabilityCache, step time.Duration, retry RetryPolicy, now func() time.Time) *Resolver {
	if step <= 0 {
		step = 30 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, dir: dir, cache: cache, step: step, retry: retry, now: now}
}

// stepFor returns the restaurant's slot granularity.
func (r *Resolver) stepFor(rest model.Restaurant) time.Duration {
	if rest.SlotMinutes > 0 {
		return time.Duration(rest.SlotMinutes) * time.Minute
	}
	return r.step
}

// restaurant loads a directory entry, mapping absence to ErrNotFound.
func (r *Resolver) restaurant(ctx context.Context, id string) (model.Restaurant, error) {
	rest, err := withStoreRetry(ctx, r.retry, func() (model.Restaurant, error) { return r.dir.Restaurant(ctx, id) })
	if errors.Is(err, repository.ErrNotFound) {
		return model.Restaurant{}, wrapNotFound("restaurant", id)
	}
	return rest, err
}

// Compute returns every (time, table type) on date with at least one free
// table able to seat partySize, ordered by time then table capacity.  A
// past date or a party larger than every table yields an empty list, not
// an error.
func (r *Resolver) Compute(ctx context.Context, restaurantID, date string, partySize int) ([]model.AvailabilitySlot, error) {
	ctx, span := tracer.Start(ctx, "availability.compute")
	defer span.End()
	span.SetAttributes(
		attribute.String("restaurant.id", restaurantID),
		attribute.String("booking.date", date),
		attribute.Int("booking.party_size", partySize),
	)

	if partySize <= 0 {
		return nil, validationf("party size must be positive")
	}
	rest, err := r.restaurant(ctx, restaurantID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	loc := rest.Location()
	day, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return nil, validationf("date must be formatted YYYY-MM-DD")
	}

	now := r.now().In(loc)
	today := now.Format(model.DateLayout)
	if date < today || partySize > rest.MaxCapacity() {
		return []model.AvailabilitySlot{}, nil
	}

	if slots, ok := r.cache.Get(ctx, restaurantID, date, partySize); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return dropPast(slots, date, today, now, loc), nil
	}
	// read before the counts so a commit landing in between blocks the write-back
	gen, _ := r.cache.Generation(ctx, restaurantID, date)

	counts, err := withStoreRetry(ctx, r.retry, func() (map[model.SlotKey]int, error) {
		return r.store.ActiveCounts(ctx, restaurantID, date)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tables := fittingTables(rest, partySize)
	slots := []model.AvailabilitySlot{}
	for _, hhmm := range rest.ServiceTimes(day, r.stepFor(rest)) {
		for _, inv := range tables {
			key := model.SlotKey{RestaurantID: restaurantID, Date: date, Time: hhmm, TableType: inv.TableType}
			remaining := inv.Count - counts[key]
			if remaining <= 0 {
				continue
			}
			slots = append(slots, model.AvailabilitySlot{
				RestaurantID: restaurantID,
				Date:         date,
				Time:         hhmm,
				TableType:    inv.TableType,
				Capacity:     inv.Capacity,
				Remaining:    remaining,
			})
		}
	}
	r.cache.Set(ctx, restaurantID, date, gen, partySize, slots)
	return dropPast(slots, date, today, now, loc), nil
}

// Remaining returns the free tables for one slot, read straight from the
// store.
func (r *Resolver) Remaining(ctx context.Context, key model.SlotKey, count int) (int, error) {
	counts, err := withStoreRetry(ctx, r.retry, func() (map[model.SlotKey]int, error) {
		return r.store.ActiveCounts(ctx, key.RestaurantID, key.Date)
	})
	if err != nil {
		return 0, err
	}
	return count - counts[key], nil
}

// fittingTables returns the inventory entries that seat partySize,
// smallest tables first.
func fittingTables(rest model.Restaurant, partySize int) []model.TableInventory {
	var out []model.TableInventory
	for _, inv := range rest.Tables {
		if inv.Count > 0 && inv.Capacity >= partySize {
			out = append(out, inv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Capacity != out[j].Capacity {
			return out[i].Capacity < out[j].Capacity
		}
		return out[i].TableType < out[j].TableType
	})
	return out
}

// dropPast removes slots that already started when date is today.  The
// cache stores the full day so entries stay valid as the clock advances.
func dropPast(slots []model.AvailabilitySlot, date, today string, now time.Time, loc *time.Location) []model.AvailabilitySlot {
	if date != today {
		return slots
	}
	out := make([]model.AvailabilitySlot, 0, len(slots))
	for _, s := range slots {
		start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, s.Date+" "+s.Time, loc)
		if err != nil || !start.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}
