package model

import "fmt"

// Layouts used for the string-encoded booking date and time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SlotKey identifies one unit of bookable capacity: a table type at a
// restaurant on a date and time.  All contention during reservation is
// scoped to a single SlotKey.
type SlotKey struct {
	RestaurantID string
	Date         string
	Time         string
	TableType    TableType
}

// String renders the key for logs and lock maps.
func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.RestaurantID, k.Date, k.Time, k.TableType)
}

// AvailabilitySlot is a derived, never persisted, view of the capacity
// left for a slot.  Remaining counts tables, not seats.
type AvailabilitySlot struct {
	RestaurantID string    `json:"restaurant_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	TableType    TableType `json:"table_type"`
	Capacity     int       `json:"capacity"`
	Remaining    int       `json:"remaining"`
}
