// Package queue defines message payloads exchanged over the message broker
// and the publishers and consumer that move them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// EventType names what happened to a booking.
type EventType string

const (
	EventCreated   EventType = "booking.created"
	EventConfirmed EventType = "booking.confirmed"
	EventCancelled EventType = "booking.cancelled"
)

// BookingEvent is published after a booking mutation commits.  It carries
// enough information for downstream consumers to notify the guest or feed
// analytics without querying the primary database.  EventID is unique per
// event so redelivered messages can be recognised.
type BookingEvent struct {
	EventID          string    `json:"event_id"`
	Type             EventType `json:"type"`
	BookingID        string    `json:"booking_id"`
	OwnerID          string    `json:"owner_id"`
	RestaurantID     string    `json:"restaurant_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	PartySize        int       `json:"party_size"`
	TableType        string    `json:"table_type"`
	Status           string    `json:"status"`
	ContactName      string    `json:"contact_name"`
	ContactEmail     string    `json:"contact_email,omitempty"`
	ContactPhone     string    `json:"contact_phone,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	OccurredAt       string    `json:"occurred_at"`
}

// NewBookingEvent snapshots b into an event of type t.
func NewBookingEvent(t EventType, b model.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		EventID:          uuid.NewString(),
		Type:             t,
		BookingID:        b.ID,
		OwnerID:          b.OwnerID,
		RestaurantID:     b.RestaurantID,
		ConfirmationCode: b.ConfirmationCode,
		Date:             b.Date,
		Time:             b.Time,
		PartySize:        b.PartySize,
		TableType:        string(b.TableType),
		Status:           string(b.Status),
		ContactName:      b.Contact.Name,
		ContactEmail:     b.Contact.Email,
		ContactPhone:     b.Contact.Phone,
		Reason:           b.CancellationReason,
		OccurredAt:       at.UTC().Format(time.RFC3339),
	}
}

// Key is the partition key used by ordered transports.  Events of one
// booking share a key so their order is preserved.
func (e BookingEvent) Key() string { return e.BookingID }
