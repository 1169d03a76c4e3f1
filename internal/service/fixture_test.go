package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/subscription"
)

// 2024-12-01 is a Sunday; the clock starts well before it.
var startOfTests = time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func everyDay(opens, closes string) []model.ServiceHours {
	var out []model.ServiceHours
	for d := time.Sunday; d <= time.Saturday; d++ {
		out = append(out, model.ServiceHours{Weekday: d, Opens: opens, Closes: closes})
	}
	return out
}

// bistro has a single standard table for four.
func bistro() model.Restaurant {
	return model.Restaurant{
		ID:       "bistro",
		Name:     "Bistro",
		Timezone: "UTC",
		Tables:   []model.TableInventory{{TableType: model.TableStandard, Capacity: 4, Count: 1}},
		Hours:    everyDay("17:00", "22:00"),
	}
}

// brasserie is larger and confirms bookings automatically.
func brasserie() model.Restaurant {
	return model.Restaurant{
		ID:          "brasserie",
		Name:        "Brasserie",
		Timezone:    "Europe/Paris",
		AutoConfirm: true,
		Tables: []model.TableInventory{
			{TableType: model.TableStandard, Capacity: 4, Count: 2},
			{TableType: model.TableBooth, Capacity: 6, Count: 1},
		},
		Hours: everyDay("12:00", "14:00"),
	}
}

type notifyRecorder struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (n *notifyRecorder) Notify(_ context.Context, ev queue.BookingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *notifyRecorder) types() []queue.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]queue.EventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	engine   *Engine
	store    BookingStore
	memory   *repository.MemoryBookingStore
	broker   *subscription.Broker
	clock    *testClock
	notifier *notifyRecorder
}

type fixtureOption func(*Deps, *Config)

func withStore(wrap func(*repository.MemoryBookingStore) BookingStore) fixtureOption {
	return func(d *Deps, _ *Config) { d.Store = wrap(d.Store.(*repository.MemoryBookingStore)) }
}

func withGate(g ConfirmGate) fixtureOption {
	return func(d *Deps, _ *Config) { d.Gate = g }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	mem := repository.NewMemoryBookingStore()
	clock := &testClock{t: startOfTests}
	rec := &notifyRecorder{}
	d := Deps{
		Store:     mem,
		Directory: repository.NewStaticDirectory(bistro(), brasserie()),
		Notifier:  rec,
		Now:       clock.Now,
	}
	cfg := Config{ReserveBackoff: -1, StoreBackoff: -1}
	for _, o := range opts {
		o(&d, &cfg)
	}
	broker := subscription.NewBroker(d.Store, nil)
	t.Cleanup(broker.Close)
	d.Broker = broker
	return &fixture{
		engine:   NewEngine(d, cfg),
		store:    d.Store,
		memory:   mem,
		broker:   broker,
		clock:    clock,
		notifier: rec,
	}
}

func reserveRequest(owner string) ReserveRequest {
	return ReserveRequest{
		OwnerID:      owner,
		RestaurantID: "bistro",
		Date:         "2024-12-01",
		Time:         "19:00",
		PartySize:    2,
		TableType:    "standard",
		Contact:      model.ContactInfo{Name: "Ann Lee", Email: "ann@example.com"},
	}
}

func operatorFor(ids ...string) OperatorContext {
	return OperatorContext{OperatorID: "op-1", Role: RoleOperator, RestaurantIDs: ids}
}
