package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

const (
	maxSpecialRequests = 500
	maxReasonLen       = 500
)

// ReserveRequest is a customer's request for a table.
type ReserveRequest struct {
	OwnerID         string            `json:"-"`
	RestaurantID    string            `json:"restaurant_id"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	PartySize       int               `json:"party_size"`
	TableType       string            `json:"table_type"`
	Contact         model.ContactInfo `json:"contact"`
	SpecialRequests string            `json:"special_requests"`
}

// Coordinator turns an availability check and a booking insert into one
// effectively atomic operation.  The store performs a conditional commit
// against a per-slot counter; when another writer wins the race the whole
// check-then-commit sequence is retried a bounded number of times before
// the request fails with ErrSlotUnavailable.
type Coordinator struct {
	store    BookingStore
	resolver *Resolver
	codes    *CodeGenerator
	gate     ConfirmGate
	attempts RetryPolicy
	retry    RetryPolicy
	now      func() time.Time
	log      *slog.Logger
}

// plan is a validated request resolved against the directory.
type plan struct {
	req   ReserveRequest
	rest  model.Restaurant
	table model.TableInventory
	key   model.SlotKey
}

// Reserve validates req and commits a booking for it.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "reservation.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("restaurant.id", req.RestaurantID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
		attribute.String("booking.table_type", req.TableType),
		attribute.Int("booking.party_size", req.PartySize),
	)

	p, err := c.validate(ctx, req)
	if err != nil {
		return model.Booking{}, fail(span, err)
	}

	var contended, transient, dupes int
	for {
		remaining, err := c.resolver.Remaining(ctx, p.key, p.table.Count)
		if err != nil {
			return model.Booking{}, fail(span, err)
		}
		if remaining <= 0 {
			return model.Booking{}, fail(span, slotUnavailable(p.key))
		}

		b, err := c.draft(ctx, p)
		if err != nil {
			return model.Booking{}, fail(span, err)
		}

		err = c.store.Create(ctx, &b, p.table.Count)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("booking.id", b.ID), attribute.String("booking.status", string(b.Status)))
			c.log.Info("booking reserved", "booking_id", b.ID, "slot", p.key.String(), "status", b.Status,
				"retries", contended+transient+dupes)
			return b, nil
		case errors.Is(err, repository.ErrSlotFull):
			return model.Booking{}, fail(span, slotUnavailable(p.key))
		case errors.Is(err, repository.ErrSlotContended):
			contended++
			if contended >= c.attempts.attempts() {
				c.log.Info("slot still contended after retries", "slot", p.key.String(), "attempts", contended)
				return model.Booking{}, fail(span, slotUnavailable(p.key))
			}
			if err := c.attempts.wait(ctx, contended); err != nil {
				return model.Booking{}, err
			}
		case errors.Is(err, repository.ErrDuplicateCode):
			dupes++
			if dupes >= maxCodeRetries {
				return model.Booking{}, fail(span, fmt.Errorf("%w: could not allocate a unique confirmation code", ErrServiceUnavailable))
			}
		case repository.IsTransient(err):
			transient++
			c.log.Warn("transient store error during reserve", "slot", p.key.String(), "attempt", transient, "err", err)
			if transient >= c.retry.attempts() {
				return model.Booking{}, fail(span, fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
			}
			if err := c.retry.wait(ctx, transient); err != nil {
				return model.Booking{}, err
			}
		default:
			return model.Booking{}, fail(span, err)
		}
	}
}

// draft builds the booking row for one commit attempt.  Each attempt gets
// a fresh confirmation code.
func (c *Coordinator) draft(ctx context.Context, p plan) (model.Booking, error) {
	code, err := c.codes.unique(ctx, c.store, c.retry)
	if err != nil {
		return model.Booking{}, err
	}
	now := c.now().UTC()
	b := model.Booking{
		OwnerID:          p.req.OwnerID,
		RestaurantID:     p.req.RestaurantID,
		Date:             p.req.Date,
		Time:             p.req.Time,
		PartySize:        p.req.PartySize,
		TableType:        p.key.TableType,
		Status:           InitialStatus(p.rest.AutoConfirm),
		Contact:          p.req.Contact,
		SpecialRequests:  p.req.SpecialRequests,
		ConfirmationCode: code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if b.Status == model.StatusConfirmed && c.gate != nil {
		if err := c.gate.AllowConfirm(ctx, b); err != nil {
			c.log.Info("auto-confirm held back by confirm gate", "restaurant_id", b.RestaurantID, "err", err)
			b.Status = model.StatusPending
		}
	}
	return b, nil
}

// validate rejects malformed requests before any capacity work.
func (c *Coordinator) validate(ctx context.Context, req ReserveRequest) (plan, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return plan{}, fmt.Errorf("%w: missing owner", ErrUnauthorized)
	}
	if req.PartySize <= 0 {
		return plan{}, validationf("party size must be positive")
	}
	if _, err := time.Parse(model.DateLayout, req.Date); err != nil {
		return plan{}, validationf("date must be formatted YYYY-MM-DD")
	}
	if _, err := time.Parse(model.TimeLayout, req.Time); err != nil {
		return plan{}, validationf("time must be formatted HH:MM")
	}
	// past in every timezone; the restaurant's own zone is checked below
	if latest, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, req.Date+" "+req.Time, westmost); err == nil && !latest.After(c.now()) {
		return plan{}, validationf("requested time is in the past")
	}
	tt, ok := model.ParseTableType(req.TableType)
	if !ok {
		return plan{}, validationf("unknown table type %q", req.TableType)
	}
	req.Contact.Name = strings.TrimSpace(req.Contact.Name)
	req.Contact.Email = strings.TrimSpace(req.Contact.Email)
	req.Contact.Phone = strings.TrimSpace(req.Contact.Phone)
	if req.Contact.Name == "" {
		return plan{}, validationf("contact name is required")
	}
	if req.Contact.Email == "" && req.Contact.Phone == "" {
		return plan{}, validationf("contact email or phone is required")
	}
	if req.Contact.Email != "" {
		if _, err := mail.ParseAddress(req.Contact.Email); err != nil {
			return plan{}, validationf("contact email is invalid")
		}
	}
	if utf8.RuneCountInString(req.SpecialRequests) > maxSpecialRequests {
		return plan{}, validationf("special requests exceed %d characters", maxSpecialRequests)
	}

	rest, err := c.resolver.restaurant(ctx, req.RestaurantID)
	if err != nil {
		return plan{}, err
	}
	loc := rest.Location()
	start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, req.Date+" "+req.Time, loc)
	if err != nil {
		return plan{}, validationf("invalid date or time")
	}
	if !start.After(c.now()) {
		return plan{}, validationf("requested time is in the past")
	}
	inv, ok := rest.Table(tt)
	if !ok || inv.Count <= 0 {
		return plan{}, validationf("restaurant has no %s tables", tt)
	}
	if req.PartySize > inv.Capacity {
		return plan{}, validationf("party of %d exceeds %s table capacity of %d", req.PartySize, tt, inv.Capacity)
	}
	if !rest.IsServiceTime(start, req.Time, c.resolver.stepFor(rest)) {
		return plan{}, validationf("%s is not a service time on %s", req.Time, req.Date)
	}

	return plan{
		req:   req,
		rest:  rest,
		table: inv,
		key:   model.SlotKey{RestaurantID: req.RestaurantID, Date: req.Date, Time: req.Time, TableType: tt},
	}, nil
}

// westmost is the zone in which a wall-clock time occurs last.
var westmost = time.FixedZone("UTC-12", -12*60*60)

func slotUnavailable(key model.SlotKey) error {
	return fmt.Errorf("%w: no %s table left at %s on %s", ErrSlotUnavailable, key.TableType, key.Time, key.Date)
}
