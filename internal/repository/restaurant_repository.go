package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// RestaurantRepo reads the restaurant directory from MySQL.  The engine
// never writes to these tables; they are maintained by the directory
// owner and only consulted here for inventory and service hours.
type RestaurantRepo struct {
	db *sql.DB
}

// NewRestaurantRepo creates a RestaurantRepo bound to db.
func NewRestaurantRepo(db *sql.DB) *RestaurantRepo { return &RestaurantRepo{db: db} }

// Restaurant loads a restaurant with its table inventory and service
// hours.  A missing restaurant yields ErrNotFound.
func (r *RestaurantRepo) Restaurant(ctx context.Context, id string) (model.Restaurant, error) {
	var rest model.Restaurant
	var slotMinutes sql.NullInt64
	const q = `SELECT id, name, timezone, auto_confirm, slot_minutes FROM restaurants WHERE id = ?`
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rest.ID, &rest.Name, &rest.Timezone, &rest.AutoConfirm, &slotMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Restaurant{}, ErrNotFound
	}
	if err != nil {
		return model.Restaurant{}, err
	}
	rest.SlotMinutes = int(slotMinutes.Int64)

	tables, err := r.db.QueryContext(ctx,
		`SELECT table_type, capacity, table_count FROM restaurant_tables WHERE restaurant_id = ? ORDER BY capacity, table_type`, id)
	if err != nil {
		return model.Restaurant{}, err
	}
	defer tables.Close()
	for tables.Next() {
		var inv model.TableInventory
		var tt string
		if err := tables.Scan(&tt, &inv.Capacity, &inv.Count); err != nil {
			return model.Restaurant{}, err
		}
		inv.TableType = model.TableType(tt)
		rest.Tables = append(rest.Tables, inv)
	}
	if err := tables.Err(); err != nil {
		return model.Restaurant{}, err
	}

	hours, err := r.db.QueryContext(ctx,
		`SELECT weekday, TIME_FORMAT(opens_at, '%H:%i'), TIME_FORMAT(closes_at, '%H:%i')
         FROM service_hours WHERE restaurant_id = ? ORDER BY weekday, opens_at`, id)
	if err != nil {
		return model.Restaurant{}, err
	}
	defer hours.Close()
	for hours.Next() {
		var h model.ServiceHours
		var wd int
		if err := hours.Scan(&wd, &h.Opens, &h.Closes); err != nil {
			return model.Restaurant{}, err
		}
		h.Weekday = time.Weekday(wd)
		rest.Hours = append(rest.Hours, h)
	}
	return rest, hours.Err()
}
