package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// RoleOperator is the identity role allowed to run operator transitions.
const RoleOperator = "OPERATOR"

// OperatorContext is the operator identity supplied by the identity
// collaborator.  RestaurantIDs lists the restaurants the operator manages;
// "*" grants all of them.
type OperatorContext struct {
	OperatorID    string
	Role          string
	RestaurantIDs []string
}

// Manages reports whether the operator may act on restaurantID.
func (o OperatorContext) Manages(restaurantID string) bool {
	if o.OperatorID == "" || o.Role != RoleOperator {
		return false
	}
	for _, id := range o.RestaurantIDs {
		if id == "*" || id == restaurantID {
			return true
		}
	}
	return false
}

// Config tunes the engine.  Zero values fall back to defaults.
type Config struct {
	SlotGranularity time.Duration
	ReserveAttempts int
	ReserveBackoff  time.Duration
	StoreAttempts   int
	StoreBackoff    time.Duration
	NotifyTimeout   time.Duration
	CodePrefix      string
}

func (c Config) withDefaults() Config {
	if c.SlotGranularity <= 0 {
		c.SlotGranularity = 30 * time.Minute
	}
	if c.ReserveAttempts <= 0 {
		c.ReserveAttempts = 3
	}
	if c.ReserveBackoff < 0 {
		c.ReserveBackoff = 0
	} else if c.ReserveBackoff == 0 {
		c.ReserveBackoff = 25 * time.Millisecond
	}
	if c.StoreAttempts <= 0 {
		c.StoreAttempts = 3
	}
	if c.StoreBackoff == 0 {
		c.StoreBackoff = 50 * time.Millisecond
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 3 * time.Second
	}
	if c.CodePrefix == "" {
		c.CodePrefix = "RSV"
	}
	return c
}

// Deps are the collaborators of the engine.  Store, Directory and Broker
// are required.
type Deps struct {
	Store     BookingStore
	Directory Directory
	Broker    Broker
	Notifier  Notifier
	Gate      ConfirmGate
	Cache     *AvailabilityCache
	Codes     *CodeGenerator
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine is the public contract of the reservation subsystem.  It composes
// the resolver, the coordinator and the lifecycle machine, and routes
// every committed mutation to the broker, the cache and the notifier.
type Engine struct {
	store    BookingStore
	broker   Broker
	gate     ConfirmGate
	resolver *Resolver
	coord    *Coordinator
	fan      *fanout
	retry    RetryPolicy
	now      func() time.Time
	log      *slog.Logger
}

// NewEngine wires an Engine.  It panics when a required dependency is
// missing.
func NewEngine(d Deps, cfg Config) *Engine {
	if d.Store == nil || d.Directory == nil || d.Broker == nil {
		panic("nil dependency passed to NewEngine")
	}
	cfg = cfg.withDefaults()
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Codes == nil {
		d.Codes = NewCodeGenerator(cfg.CodePrefix)
		d.Codes.Now = d.Now
	}
	retry := RetryPolicy{Attempts: cfg.StoreAttempts, Backoff: cfg.StoreBackoff}
	resolver := NewResolver(d.Store, d.Directory, d.Cache, cfg.SlotGranularity, retry, d.Now)
	return &Engine{
		store:    d.Store,
		broker:   d.Broker,
		gate:     d.Gate,
		resolver: resolver,
		coord: &Coordinator{
			store:    d.Store,
			resolver: resolver,
			codes:    d.Codes,
			gate:     d.Gate,
			attempts: RetryPolicy{Attempts: cfg.ReserveAttempts, Backoff: cfg.ReserveBackoff},
			retry:    retry,
			now:      d.Now,
			log:      d.Logger,
		},
		fan: &fanout{
			broker:   d.Broker,
			notifier: d.Notifier,
			cache:    d.Cache,
			timeout:  cfg.NotifyTimeout,
			log:      d.Logger,
			now:      d.Now,
		},
		retry: retry,
		now:   d.Now,
		log:   d.Logger,
	}
}

// Restaurant returns the directory entry for id.
func (e *Engine) Restaurant(ctx context.Context, id string) (model.Restaurant, error) {
	return e.resolver.restaurant(ctx, id)
}

// ComputeAvailability lists the open slots for a party on a date.
func (e *Engine) ComputeAvailability(ctx context.Context, restaurantID, date string, partySize int) ([]model.AvailabilitySlot, error) {
	return e.resolver.Compute(ctx, restaurantID, date, partySize)
}

// Reserve books a table or fails with ErrSlotUnavailable or ErrValidation.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (model.Booking, error) {
	b, err := e.coord.Reserve(ctx, req)
	if err != nil {
		return model.Booking{}, err
	}
	e.fan.committed(ctx, b, true)
	return b, nil
}

// load fetches a booking, mapping absence to ErrNotFound.
func (e *Engine) load(ctx context.Context, id string) (model.Booking, error) {
	b, err := withStoreRetry(ctx, e.retry, func() (model.Booking, error) { return e.store.Get(ctx, id) })
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, wrapNotFound("booking", id)
	}
	return b, err
}

// startsAt resolves a booking's start in its restaurant's timezone.
func (e *Engine) startsAt(ctx context.Context, b model.Booking) (time.Time, error) {
	loc := time.UTC
	if rest, err := e.resolver.restaurant(ctx, b.RestaurantID); err == nil {
		loc = rest.Location()
	} else if !errors.Is(err, ErrNotFound) {
		return time.Time{}, err
	}
	t, ok := b.StartsAt(loc)
	if !ok {
		return time.Time{}, fmt.Errorf("booking %s has malformed date or time", b.ID)
	}
	return t, nil
}

// applyStatus runs the compare-and-set and maps store outcomes onto the
// business taxonomy.  A lost race surfaces as ErrInvalidTransition.
func (e *Engine) applyStatus(ctx context.Context, ch repository.StatusChange) (model.Booking, error) {
	b, err := withStoreRetry(ctx, e.retry, func() (model.Booking, error) {
		return e.store.UpdateStatus(ctx, ch)
	})
	switch {
	case err == nil:
		e.fan.committed(ctx, b, false)
		return b, nil
	case errors.Is(err, repository.ErrStatusChanged):
		return model.Booking{}, invalidTransitionf("booking status changed concurrently, expected %s", ch.From)
	case errors.Is(err, repository.ErrForbidden):
		return model.Booking{}, fmt.Errorf("%w: booking belongs to another owner", ErrUnauthorized)
	case errors.Is(err, repository.ErrNotFound):
		return model.Booking{}, wrapNotFound("booking", ch.BookingID)
	}
	return model.Booking{}, err
}

// Cancel is the customer-initiated cancellation.  Only the booking's owner
// may cancel, and only before the booking time.
func (e *Engine) Cancel(ctx context.Context, bookingID, ownerID, reason string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "reservation.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	if ownerID == "" {
		return model.Booking{}, fmt.Errorf("%w: missing owner", ErrUnauthorized)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLen {
		return model.Booking{}, validationf("reason exceeds %d characters", maxReasonLen)
	}
	b, err := e.load(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Booking{}, err
	}
	if b.OwnerID != ownerID {
		e.log.Warn("cancel refused for non-owner", "booking_id", bookingID, "owner_id", ownerID)
		return model.Booking{}, fmt.Errorf("%w: booking belongs to another owner", ErrUnauthorized)
	}
	if err := Transition(b.Status, model.StatusCancelled); err != nil {
		return model.Booking{}, err
	}
	start, err := e.startsAt(ctx, b)
	if err != nil {
		return model.Booking{}, err
	}
	if !start.After(e.now()) {
		return model.Booking{}, invalidTransitionf("booking time has passed")
	}
	return e.applyStatus(ctx, repository.StatusChange{
		BookingID: b.ID,
		OwnerID:   ownerID,
		From:      b.Status,
		To:        model.StatusCancelled,
		Reason:    reason,
		At:        e.now().UTC(),
	})
}

// Transition is the operator-initiated status change: confirm, decline
// (cancel), completed or no-show.  completed and no-show need the booking
// time to have elapsed; confirmation passes through the confirm gate.
func (e *Engine) Transition(ctx context.Context, bookingID string, op OperatorContext, target model.Status, reason string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "reservation.transition")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID), attribute.String("booking.target_status", string(target)))

	if !target.Valid() {
		return model.Booking{}, validationf("unknown status %q", target)
	}
	b, err := e.load(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Booking{}, err
	}
	if !op.Manages(b.RestaurantID) {
		e.log.Warn("operator transition refused", "booking_id", bookingID, "operator_id", op.OperatorID)
		return model.Booking{}, fmt.Errorf("%w: operator does not manage restaurant %q", ErrUnauthorized, b.RestaurantID)
	}
	if err := Transition(b.Status, target); err != nil {
		return model.Booking{}, err
	}
	if target == model.StatusCompleted || target == model.StatusNoShow {
		start, err := e.startsAt(ctx, b)
		if err != nil {
			return model.Booking{}, err
		}
		if start.After(e.now()) {
			return model.Booking{}, invalidTransitionf("booking time has not been reached yet")
		}
	}
	if target == model.StatusConfirmed && e.gate != nil {
		if err := e.gate.AllowConfirm(ctx, b); err != nil {
			return model.Booking{}, fmt.Errorf("%w: confirmation blocked: %w", ErrInvalidTransition, err)
		}
	}
	if target != model.StatusCancelled {
		reason = ""
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLen {
		return model.Booking{}, validationf("reason exceeds %d characters", maxReasonLen)
	}
	return e.applyStatus(ctx, repository.StatusChange{
		BookingID: b.ID,
		From:      b.Status,
		To:        target,
		Reason:    reason,
		At:        e.now().UTC(),
	})
}

// GetBooking returns a booking to its owner.
func (e *Engine) GetBooking(ctx context.Context, bookingID, ownerID string) (model.Booking, error) {
	b, err := e.load(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if ownerID == "" || b.OwnerID != ownerID {
		return model.Booking{}, fmt.Errorf("%w: booking belongs to another owner", ErrUnauthorized)
	}
	return b, nil
}

// UpdateBooking applies an owner's patch.  Only special requests may
// change; touching any immutable field is a validation error.
func (e *Engine) UpdateBooking(ctx context.Context, bookingID, ownerID string, patch model.BookingPatch) (model.Booking, error) {
	if ownerID == "" {
		return model.Booking{}, fmt.Errorf("%w: missing owner", ErrUnauthorized)
	}
	if fields := patch.ImmutableFields(); len(fields) > 0 {
		return model.Booking{}, validationf("immutable fields cannot be changed: %s", strings.Join(fields, ", "))
	}
	if patch.Status != nil {
		return model.Booking{}, validationf("status changes go through cancel or operator transitions")
	}
	if patch.SpecialRequests == nil {
		return model.Booking{}, validationf("nothing to update")
	}
	text := strings.TrimSpace(*patch.SpecialRequests)
	if utf8.RuneCountInString(text) > maxSpecialRequests {
		return model.Booking{}, validationf("special requests exceed %d characters", maxSpecialRequests)
	}
	b, err := withStoreRetry(ctx, e.retry, func() (model.Booking, error) {
		return e.store.UpdateSpecialRequests(ctx, bookingID, ownerID, text, e.now().UTC())
	})
	switch {
	case err == nil:
		e.fan.committed(ctx, b, false)
		return b, nil
	case errors.Is(err, repository.ErrNotFound):
		return model.Booking{}, wrapNotFound("booking", bookingID)
	case errors.Is(err, repository.ErrForbidden):
		return model.Booking{}, fmt.Errorf("%w: booking belongs to another owner", ErrUnauthorized)
	case errors.Is(err, repository.ErrConflict):
		return model.Booking{}, invalidTransitionf("booking can no longer be edited")
	}
	return model.Booking{}, err
}

// ListByOwner returns an owner's bookings, newest slot first by default.
func (e *Engine) ListByOwner(ctx context.Context, ownerID string, f model.BookingFilter) ([]model.Booking, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrUnauthorized)
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return withStoreRetry(ctx, e.retry, func() ([]model.Booking, error) {
		return e.store.List(ctx, model.BookingQuery{OwnerID: ownerID, Filter: f})
	})
}

// ListByRestaurant returns a restaurant's bookings to one of its operators.
func (e *Engine) ListByRestaurant(ctx context.Context, op OperatorContext, restaurantID string, f model.BookingFilter) ([]model.Booking, error) {
	if !op.Manages(restaurantID) {
		return nil, fmt.Errorf("%w: operator does not manage restaurant %q", ErrUnauthorized, restaurantID)
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return withStoreRetry(ctx, e.retry, func() ([]model.Booking, error) {
		return e.store.List(ctx, model.BookingQuery{RestaurantID: restaurantID, Filter: f})
	})
}

// Subscribe registers onChange for the owner's bookings matching f.  The
// current list is delivered first, then the complete list again after
// every committed change.  The returned function is idempotent.
func (e *Engine) Subscribe(ownerID string, f model.BookingFilter, onChange func([]model.Booking)) (func(), error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrUnauthorized)
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return e.broker.Subscribe(model.BookingQuery{OwnerID: ownerID, Filter: f}, onChange), nil
}

// SubscribeRestaurant is the operator counterpart of Subscribe.
func (e *Engine) SubscribeRestaurant(op OperatorContext, restaurantID string, f model.BookingFilter, onChange func([]model.Booking)) (func(), error) {
	if !op.Manages(restaurantID) {
		return nil, fmt.Errorf("%w: operator does not manage restaurant %q", ErrUnauthorized, restaurantID)
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return e.broker.Subscribe(model.BookingQuery{RestaurantID: restaurantID, Filter: f}, onChange), nil
}

func validateFilter(f model.BookingFilter) error {
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			return validationf("filter date %q must be formatted YYYY-MM-DD", d)
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return validationf("filter range is empty: from %s is after to %s", f.From, f.To)
	}
	for _, s := range f.Statuses {
		if !s.Valid() {
			return validationf("unknown status %q", s)
		}
	}
	return nil
}
