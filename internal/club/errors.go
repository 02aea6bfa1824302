package club

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad user input. It never reaches persistence.
	ErrValidation = errors.New("validation failed")
	// ErrBackendUnavailable means the remote store could not be reached in time.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEventFull is returned when joining an event at capacity.
	ErrEventFull = errors.New("event is full")
	// ErrStorageQuotaExceeded is returned by the local store when a write would
	// exceed its size limit. The write is not applied.
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")
	// ErrNotFound means the target record no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated blocks writes until a session is resolved.
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrBusy rejects a second submit while the first is in flight.
	ErrBusy = errors.New("action already in progress")
	// ErrStaleSnapshot rejects a snapshot push older than the one a vault
	// already holds.
	ErrStaleSnapshot = errors.New("a newer snapshot is already stored")
	// ErrTotalsStale means a run was saved but the runner's totals were not
	// rewritten. They are recomputed on the next start or checkin.
	ErrTotalsStale = errors.New("run saved but totals not updated")
)

// ValidationError names the offending form field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
