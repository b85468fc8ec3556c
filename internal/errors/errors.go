// Package errors defines the sentinel errors shared by the admission,
// queue and booking services. Handlers map these to HTTP statuses in one
// place; services wrap them with fmt.Errorf("...: %w", err).
package errors

import "errors"

var (
	// ErrUnauthorized is returned when the request carries no resolvable identity.
	ErrUnauthorized = errors.New("user is not authorized")

	// ErrForbidden is returned when the caller may not act on the resource.
	ErrForbidden = errors.New("operation is forbidden for user")

	// ErrNotFound is returned when a showing, seat, booking or token does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrTokenInvalid is returned when a queue token is missing, expired,
	// already used, or not in a state that permits booking.
	ErrTokenInvalid = errors.New("queue token is invalid or expired")

	// ErrSeatUnavailable is returned when a requested seat is not AVAILABLE.
	ErrSeatUnavailable = errors.New("seat is not available")

	// ErrConflict is returned when an optimistic update lost the race and
	// the retry budget is exhausted.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrCapacityExhausted is returned when a showing has no seat inventory
	// left for the requested selection.
	ErrCapacityExhausted = errors.New("showing capacity exhausted")

	// ErrAlreadyCancelled marks a cancellation replay. Callers treat it as success.
	ErrAlreadyCancelled = errors.New("booking is already cancelled")

	// ErrStoreUnavailable is returned when a backing store cannot be reached.
	// The admission path treats it as a fail-safe signal and queues the caller.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)

// Is reports whether err matches target, re-exported so call sites do not
// need both this package and the stdlib errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
