package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// StatusChange describes a compare-and-set on a booking's status.  The
// change is applied only if the stored status still equals From.  When
// OwnerID is non-empty the booking must belong to that owner.  Reason is
// recorded only when To is cancelled.
type StatusChange struct {
	BookingID string
	OwnerID   string
	From      model.Status
	To        model.Status
	Reason    string
	At        time.Time
}

// BookingRepo is the MySQL implementation of the booking store.  Bookings
// are never deleted; cancellation is a status.  Capacity is guarded by the
// slot_counters table, a per-slot row carrying the number of active
// bookings and a version that every writer bumps with a compare-and-swap.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for readiness checks.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, owner_id, restaurant_id, DATE_FORMAT(booking_date, '%Y-%m-%d'), TIME_FORMAT(booking_time, '%H:%i'),
    party_size, table_type, status, contact_name, contact_email, contact_phone, special_requests,
    confirmation_code, created_at, updated_at, cancelled_at, cancellation_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (model.Booking, error) {
	var (
		b           model.Booking
		tableType   string
		status      string
		email       sql.NullString
		phone       sql.NullString
		requests    sql.NullString
		cancelledAt sql.NullTime
		reason      sql.NullString
	)
	err := s.Scan(&b.ID, &b.OwnerID, &b.RestaurantID, &b.Date, &b.Time,
		&b.PartySize, &tableType, &status, &b.Contact.Name, &email, &phone, &requests,
		&b.ConfirmationCode, &b.CreatedAt, &b.UpdatedAt, &cancelledAt, &reason)
	if err != nil {
		return model.Booking{}, err
	}
	b.TableType = model.TableType(tableType)
	b.Status = model.Status(status)
	b.Contact.Email = email.String
	b.Contact.Phone = phone.String
	b.SpecialRequests = requests.String
	b.CancellationReason = reason.String
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		b.CancelledAt = &t
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create performs the conditional commit for a new booking.  Inside one
// transaction it reads the slot counter, refuses with ErrSlotFull when
// active bookings already reach limit, bumps the counter with a version
// compare-and-swap (ErrSlotContended when another writer got there first)
// and inserts the booking row.  A unique-key violation on the confirmation
// code yields ErrDuplicateCode.  On success b.ID is populated.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking, limit int) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	key := b.Slot()

	// The counter row must exist before the compare-and-swap can target it.
	// INSERT IGNORE runs outside the transaction so concurrent creators
	// never deadlock on the gap lock of a missing row.
	const ensure = `INSERT IGNORE INTO slot_counters (restaurant_id, slot_date, slot_time, table_type, active, version)
        VALUES (?, ?, ?, ?, 0, 0)`
	if _, err := r.db.ExecContext(ctx, ensure, key.RestaurantID, key.Date, key.Time, string(key.TableType)); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var active int
	var version uint64
	const sel = `SELECT active, version FROM slot_counters
        WHERE restaurant_id = ? AND slot_date = ? AND slot_time = ? AND table_type = ?`
	if err := tx.QueryRowContext(ctx, sel, key.RestaurantID, key.Date, key.Time, string(key.TableType)).Scan(&active, &version); err != nil {
		return err
	}
	if active >= limit {
		return ErrSlotFull
	}

	const bump = `UPDATE slot_counters SET active = active + 1, version = version + 1
        WHERE restaurant_id = ? AND slot_date = ? AND slot_time = ? AND table_type = ? AND version = ?`
	res, err := tx.ExecContext(ctx, bump, key.RestaurantID, key.Date, key.Time, string(key.TableType), version)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrSlotContended
	}

	const ins = `INSERT INTO bookings (id, owner_id, restaurant_id, booking_date, booking_time, party_size, table_type,
        status, contact_name, contact_email, contact_phone, special_requests, confirmation_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, ins, b.ID, b.OwnerID, b.RestaurantID, b.Date, b.Time, b.PartySize, string(b.TableType),
		string(b.Status), b.Contact.Name, nullString(b.Contact.Email), nullString(b.Contact.Phone),
		nullString(b.SpecialRequests), b.ConfirmationCode, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateCode
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Get returns a booking by id or ErrNotFound.
func (r *BookingRepo) Get(ctx context.Context, id string) (model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// GetForOwner returns the booking only if it belongs to ownerID.  A
// booking owned by someone else yields ErrForbidden; a missing one
// ErrNotFound.
func (r *BookingRepo) GetForOwner(ctx context.Context, id, ownerID string) (model.Booking, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.OwnerID != ownerID {
		return model.Booking{}, ErrForbidden
	}
	return b, nil
}

// List returns the bookings in scope of q, sorted by (date, time)
// descending unless q.Filter.Ascending is set.  Creation time breaks ties
// in the same direction.
func (r *BookingRepo) List(ctx context.Context, q model.BookingQuery) ([]model.Booking, error) {
	var (
		conds []string
		args  []any
	)
	if q.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	restaurantID := q.RestaurantID
	if restaurantID == "" {
		restaurantID = q.Filter.RestaurantID
	} else if q.Filter.RestaurantID != "" && q.Filter.RestaurantID != restaurantID {
		return []model.Booking{}, nil
	}
	if restaurantID != "" {
		conds = append(conds, "restaurant_id = ?")
		args = append(args, restaurantID)
	}
	if q.Filter.From != "" {
		conds = append(conds, "booking_date >= ?")
		args = append(args, q.Filter.From)
	}
	if q.Filter.To != "" {
		conds = append(conds, "booking_date <= ?")
		args = append(args, q.Filter.To)
	}
	if len(q.Filter.Statuses) > 0 {
		marks := make([]string, len(q.Filter.Statuses))
		for i, s := range q.Filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ",")+")")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	dir := "DESC"
	if q.Filter.Ascending {
		dir = "ASC"
	}
	query += ` ORDER BY booking_date ` + dir + `, booking_time ` + dir + `, created_at ` + dir + `, id ` + dir

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus applies a status compare-and-set.  The booking row is
// locked for the duration of the transaction; when the change leaves an
// active status the slot counter is decremented in the same transaction
// so that freed capacity is visible exactly when the cancellation is.
func (r *BookingRepo) UpdateStatus(ctx context.Context, ch StatusChange) (model.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var owner, restaurant, date, hhmm, tableType, status string
	const lock = `SELECT owner_id, restaurant_id, DATE_FORMAT(booking_date, '%Y-%m-%d'), TIME_FORMAT(booking_time, '%H:%i'),
        table_type, status FROM bookings WHERE id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, lock, ch.BookingID).Scan(&owner, &restaurant, &date, &hhmm, &tableType, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	if ch.OwnerID != "" && owner != ch.OwnerID {
		return model.Booking{}, ErrForbidden
	}
	if model.Status(status) != ch.From {
		return model.Booking{}, ErrStatusChanged
	}

	var cancelledAt sql.NullTime
	var reason sql.NullString
	if ch.To == model.StatusCancelled {
		cancelledAt = sql.NullTime{Time: ch.At, Valid: true}
		reason = nullString(ch.Reason)
	}
	const upd = `UPDATE bookings SET status = ?, updated_at = ?, cancelled_at = ?, cancellation_reason = ?
        WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, upd, string(ch.To), ch.At, cancelledAt, reason, ch.BookingID, string(ch.From))
	if err != nil {
		return model.Booking{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Booking{}, err
	} else if n == 0 {
		return model.Booking{}, ErrStatusChanged
	}

	if ch.From.Active() && !ch.To.Active() {
		const release = `UPDATE slot_counters SET active = GREATEST(active - 1, 0), version = version + 1
            WHERE restaurant_id = ? AND slot_date = ? AND slot_time = ? AND table_type = ?`
		if _, err := tx.ExecContext(ctx, release, restaurant, date, hhmm, tableType); err != nil {
			return model.Booking{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true
	return r.Get(ctx, ch.BookingID)
}

// UpdateSpecialRequests replaces the free-text requests of a booking owned
// by ownerID.  Bookings in a terminal status yield ErrConflict.
func (r *BookingRepo) UpdateSpecialRequests(ctx context.Context, id, ownerID, text string, at time.Time) (model.Booking, error) {
	b, err := r.GetForOwner(ctx, id, ownerID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status.Terminal() {
		return model.Booking{}, ErrConflict
	}
	const upd = `UPDATE bookings SET special_requests = ?, updated_at = ?
        WHERE id = ? AND owner_id = ? AND status IN ('pending', 'confirmed')`
	res, err := r.db.ExecContext(ctx, upd, nullString(text), at, id, ownerID)
	if err != nil {
		return model.Booking{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Booking{}, err
	} else if n == 0 {
		return model.Booking{}, ErrConflict
	}
	return r.Get(ctx, id)
}

// CodeExists reports whether any booking, in any status, carries code.
func (r *BookingRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE confirmation_code = ? LIMIT 1`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ActiveCounts returns the number of pending or confirmed bookings per
// slot at a restaurant on a date.  The bookings table is the source of
// truth here, not slot_counters.
func (r *BookingRepo) ActiveCounts(ctx context.Context, restaurantID, date string) (map[model.SlotKey]int, error) {
	const q = `SELECT TIME_FORMAT(booking_time, '%H:%i'), table_type, COUNT(*) FROM bookings
        WHERE restaurant_id = ? AND booking_date = ? AND status IN ('pending', 'confirmed')
        GROUP BY booking_time, table_type`
	rows, err := r.db.QueryContext(ctx, q, restaurantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.SlotKey]int{}
	for rows.Next() {
		var hhmm, tableType string
		var n int
		if err := rows.Scan(&hhmm, &tableType, &n); err != nil {
			return nil, err
		}
		out[model.SlotKey{RestaurantID: restaurantID, Date: date, Time: hhmm, TableType: model.TableType(tableType)}] = n
	}
	return out, rows.Err()
}
