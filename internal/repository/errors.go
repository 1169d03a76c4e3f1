// Package repository defines the persistence layer of the reservation
// engine and the error values shared by every store implementation.
// These sentinel values allow the service layer to distinguish between
// business outcomes (a full slot, a status that changed underneath the
// caller) and infrastructure faults that are worth retrying.
package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be applied because of the
// record's current state, such as editing a booking in a terminal status.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a booking or restaurant does not exist.
var ErrNotFound = errors.New("not found")

// ErrSlotFull is returned by a conditional insert when the slot already
// holds as many active bookings as the restaurant has tables of that type.
var ErrSlotFull = errors.New("slot full")

// ErrSlotContended is returned when the slot counter changed between read
// and compare-and-swap.  Another writer won; the caller may retry.
var ErrSlotContended = errors.New("slot contended")

// ErrStatusChanged is returned by a status compare-and-set when the stored
// status no longer matches the expected one.
var ErrStatusChanged = errors.New("status changed")

// ErrDuplicateCode is returned when a confirmation code already exists.
var ErrDuplicateCode = errors.New("duplicate confirmation code")

// MySQL server error numbers the stores react to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// IsTransient reports whether err is an infrastructure fault that may
// succeed on retry: deadlocks, lock wait timeouts, dropped connections
// and network errors.  Business sentinels and context cancellation are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
