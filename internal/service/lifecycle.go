package service

import "github.com/iliyamo/restaurant-reservation/internal/model"

// transitions is the complete set of legal status changes.  Anything not
// listed, including every move out of a terminal status, is rejected.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted, model.StatusNoShow},
}

// CanTransition reports whether a booking may move from one status to
// another.  It is pure and time-agnostic; time and authorization guards
// are applied by the callers.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns nil when from -> to is legal and an
// ErrInvalidTransition otherwise.
func Transition(from, to model.Status) error {
	if !to.Valid() {
		return validationf("unknown status %q", to)
	}
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return invalidTransitionf("booking is already %s", from)
	}
	return invalidTransitionf("cannot move booking from %s to %s", from, to)
}

// InitialStatus is the status a new booking is created in.
func InitialStatus(autoConfirm bool) model.Status {
	if autoConfirm {
		return model.StatusConfirmed
	}
	return model.StatusPending
}
