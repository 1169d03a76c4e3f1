package model

import (
	"sort"
	"time"
)

// TableInventory describes how many tables of one type a restaurant has
// and how many guests each of them seats.
//
// Fields:
//  TableType – category of the tables.
//  Capacity  – guests a single table seats.
//  Count     – number of tables of this type.
type TableInventory struct {
	TableType TableType `json:"table_type"` // restaurant_tables.table_type
	Capacity  int       `json:"capacity"`   // restaurant_tables.capacity
	Count     int       `json:"count"`      // restaurant_tables.table_count
}

// ServiceHours is one opening window on a weekday.  Opens and Closes are
// "15:04" times in the restaurant's timezone; a weekday may carry several
// windows (lunch and dinner, for example).  The last seating is strictly
// before Closes.
//
// Fields:
//  Weekday – day of week the window applies to.
//  Opens   – first seating time.
//  Closes  – end of service.
type ServiceHours struct {
	Weekday time.Weekday `json:"weekday"` // service_hours.weekday (0 = Sunday)
	Opens   string       `json:"opens"`   // service_hours.opens_at
	Closes  string       `json:"closes"`  // service_hours.closes_at
}

// Restaurant is the read-only directory entry the engine consumes.
//
// Fields:
//  ID          – directory identifier.
//  Name        – display name.
//  Timezone    – IANA zone that booking dates and times are expressed in.
//  AutoConfirm – new bookings start confirmed instead of pending.
//  SlotMinutes – per-restaurant slot granularity; zero uses the default.
//  Tables      – table inventory.
//  Hours       – weekly service windows.
type Restaurant struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Timezone    string           `json:"timezone"`
	AutoConfirm bool             `json:"auto_confirm"`
	SlotMinutes int              `json:"slot_minutes,omitempty"`
	Tables      []TableInventory `json:"tables"`
	Hours       []ServiceHours   `json:"hours"`
}

// Location loads the restaurant's timezone, falling back to UTC when it
// is empty or unknown.
func (r Restaurant) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Table returns the inventory entry for t.
func (r Restaurant) Table(t TableType) (TableInventory, bool) {
	for _, inv := range r.Tables {
		if inv.TableType == t {
			return inv, true
		}
	}
	return TableInventory{}, false
}

// MaxCapacity returns the largest single-table capacity offered.
func (r Restaurant) MaxCapacity() int {
	max := 0
	for _, inv := range r.Tables {
		if inv.Count > 0 && inv.Capacity > max {
			max = inv.Capacity
		}
	}
	return max
}

// ServiceTimes lists every seating time on date's weekday at the given
// granularity, ascending and without duplicates.  Windows whose bounds
// cannot be parsed are skipped.
func (r Restaurant) ServiceTimes(date time.Time, step time.Duration) []string {
	if step <= 0 {
		step = 30 * time.Minute
	}
	seen := map[string]bool{}
	var out []string
	for _, h := range r.Hours {
		if h.Weekday != date.Weekday() {
			continue
		}
		open, err1 := time.Parse(TimeLayout, h.Opens)
		closeAt, err2 := time.Parse(TimeLayout, h.Closes)
		if err1 != nil || err2 != nil {
			continue
		}
		for t := open; t.Before(closeAt); t = t.Add(step) {
			s := t.Format(TimeLayout)
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// IsServiceTime reports whether hhmm is one of the seating times for date.
func (r Restaurant) IsServiceTime(date time.Time, hhmm string, step time.Duration) bool {
	for _, t := range r.ServiceTimes(date, step) {
		if t == hhmm {
			return true
		}
	}
	return false
}
