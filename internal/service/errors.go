// Package service implements the reservation and availability engine:
// the lifecycle machine, confirmation codes, availability resolution,
// the slot reservation coordinator and the booking engine facade that the
// HTTP handlers call.
package service

import (
	"errors"
	"fmt"
)

// Business outcomes.  They are never retried and are surfaced to callers
// verbatim.  Details are attached by wrapping, so callers should match
// with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
)

// ErrServiceUnavailable is returned when the store kept failing after the
// bounded retries.  It is deliberately distinct from the business errors
// so "no tables" is never confused with "the store is down".
var ErrServiceUnavailable = errors.New("service unavailable")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidTransitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// Detail strips the sentinel prefix from a wrapped business error so the
// remainder can be shown to a user.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range []error{ErrValidation, ErrSlotUnavailable, ErrNotFound, ErrUnauthorized, ErrInvalidTransition, ErrServiceUnavailable} {
		prefix := s.Error() + ": "
		if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}

func wrapNotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}
