package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Booking.  Only the service layer's
// lifecycle machine decides which transitions between these values are
// legal; the model merely names them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether a booking in status s occupies a table.  Only
// pending and confirmed bookings count against capacity.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// ParseStatus converts user input into a Status.  "no_show" and "noshow"
// are accepted as aliases of "no-show".
func ParseStatus(raw string) (Status, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "no_show", "noshow":
		v = string(StatusNoShow)
	}
	s := Status(v)
	return s, s.Valid()
}

// TableType is the category of a table.  Each restaurant declares in its
// inventory which of these it offers, with a seat capacity and a count.
type TableType string

const (
	TableStandard TableType = "standard"
	TableBooth    TableType = "booth"
	TableOutdoor  TableType = "outdoor"
	TablePrivate  TableType = "private"
	TableBar      TableType = "bar"
)

var knownTableTypes = map[TableType]bool{
	TableStandard: true,
	TableBooth:    true,
	TableOutdoor:  true,
	TablePrivate:  true,
	TableBar:      true,
}

// ParseTableType normalises raw and reports whether it names a known type.
func ParseTableType(raw string) (TableType, bool) {
	t := TableType(strings.ToLower(strings.TrimSpace(raw)))
	return t, knownTableTypes[t]
}

// ContactInfo is the snapshot of the customer's contact details taken at
// reservation time.  It is never refreshed from the identity provider.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Booking is a customer's reservation of one table of a given type at a
// restaurant for a date and time.
//
// Date is a calendar date formatted "2006-01-02" and Time a time of day
// formatted "15:04", both in the restaurant's own timezone.  Fixed-width
// formats keep lexical and chronological order identical.
//
// ID, OwnerID, RestaurantID, Date, Time, TableType, PartySize, Contact and
// ConfirmationCode never change after creation.  CancelledAt is non-nil if
// and only if Status is cancelled.
type Booking struct {
	ID                 string      `json:"id"`
	OwnerID            string      `json:"owner_id"`
	RestaurantID       string      `json:"restaurant_id"`
	Date               string      `json:"date"`
	Time               string      `json:"time"`
	PartySize          int         `json:"party_size"`
	TableType          TableType   `json:"table_type"`
	Status             Status      `json:"status"`
	Contact            ContactInfo `json:"contact"`
	SpecialRequests    string      `json:"special_requests,omitempty"`
	ConfirmationCode   string      `json:"confirmation_code"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
}

// Slot returns the capacity key the booking occupies.
func (b Booking) Slot() SlotKey {
	return SlotKey{RestaurantID: b.RestaurantID, Date: b.Date, Time: b.Time, TableType: b.TableType}
}

// StartsAt resolves the booking's date and time in loc.  ok is false when
// the stored values cannot be parsed.
func (b Booking) StartsAt(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, b.Date+" "+b.Time, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// BookingFilter narrows list queries and subscriptions.  Zero values mean
// "no constraint".  From and To are inclusive dates.
type BookingFilter struct {
	RestaurantID string   `json:"restaurant_id,omitempty"`
	Statuses     []Status `json:"statuses,omitempty"`
	From         string   `json:"from,omitempty"`
	To           string   `json:"to,omitempty"`
	Ascending    bool     `json:"ascending,omitempty"`
}

// Matches reports whether b satisfies every constraint in f.
func (f BookingFilter) Matches(b Booking) bool {
	if f.RestaurantID != "" && b.RestaurantID != f.RestaurantID {
		return false
	}
	if f.From != "" && b.Date < f.From {
		return false
	}
	if f.To != "" && b.Date > f.To {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == b.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BookingQuery scopes a list to an owner, a restaurant, or both, before the
// filter is applied.
type BookingQuery struct {
	OwnerID      string
	RestaurantID string
	Filter       BookingFilter
}

// Matches reports whether b belongs to the query's scope and filter.
func (q BookingQuery) Matches(b Booking) bool {
	if q.OwnerID != "" && b.OwnerID != q.OwnerID {
		return false
	}
	if q.RestaurantID != "" && b.RestaurantID != q.RestaurantID {
		return false
	}
	return q.Filter.Matches(b)
}

// BookingPatch carries a caller's requested changes.  Only SpecialRequests
// may be applied; every other field exists so that attempts to change an
// immutable attribute can be detected and rejected instead of silently
// dropped by JSON decoding.
type BookingPatch struct {
	SpecialRequests    *string      `json:"special_requests,omitempty"`
	ID                 *string      `json:"id,omitempty"`
	OwnerID            *string      `json:"owner_id,omitempty"`
	RestaurantID       *string      `json:"restaurant_id,omitempty"`
	Date               *string      `json:"date,omitempty"`
	Time               *string      `json:"time,omitempty"`
	PartySize          *int         `json:"party_size,omitempty"`
	TableType          *string      `json:"table_type,omitempty"`
	Contact            *ContactInfo `json:"contact,omitempty"`
	ConfirmationCode   *string      `json:"confirmation_code,omitempty"`
	CreatedAt          *time.Time   `json:"created_at,omitempty"`
	UpdatedAt          *time.Time   `json:"updated_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	CancellationReason *string      `json:"cancellation_reason,omitempty"`
	Status             *string      `json:"status,omitempty"`
}

// ImmutableFields returns the JSON names of immutable fields present in p.
func (p BookingPatch) ImmutableFields() []string {
	var out []string
	if p.ID != nil {
		out = append(out, "id")
	}
	if p.OwnerID != nil {
		out = append(out, "owner_id")
	}
	if p.RestaurantID != nil {
		out = append(out, "restaurant_id")
	}
	if p.Date != nil {
		out = append(out, "date")
	}
	if p.Time != nil {
		out = append(out, "time")
	}
	if p.PartySize != nil {
		out = append(out, "party_size")
	}
	if p.TableType != nil {
		out = append(out, "table_type")
	}
	if p.Contact != nil {
		out = append(out, "contact")
	}
	if p.ConfirmationCode != nil {
		out = append(out, "confirmation_code")
	}
	if p.CreatedAt != nil {
		out = append(out, "created_at")
	}
	if p.UpdatedAt != nil {
		out = append(out, "updated_at")
	}
	if p.CancelledAt != nil {
		out = append(out, "cancelled_at")
	}
	if p.CancellationReason != nil {
		out = append(out, "cancellation_reason")
	}
	return out
}
