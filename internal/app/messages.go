package app

import (
	"errors"

	"runclub/internal/club"
	"runclub/internal/encryption"
)

// UserMessage turns an action error into the text shown to the user.
func UserMessage(err error) string {
	var verr *club.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, club.ErrBusy):
		return "Still working on the previous request."
	case errors.Is(err, club.ErrNotAuthenticated):
		return "Please log in first."
	case errors.Is(err, club.ErrEventFull):
		return "Sorry, this event is full."
	case errors.Is(err, club.ErrTotalsStale):
		return "Run saved. Your totals will catch up on the next start or check-in."
	case errors.Is(err, club.ErrStaleSnapshot):
		return "That vault already holds a newer snapshot for this host."
	case errors.Is(err, encryption.ErrNoKeys):
		return "Encryption keys are missing. Run config init --encrypt first."
	case errors.Is(err, encryption.ErrLocked):
		return "Wrong passphrase."
	case errors.Is(err, club.ErrNotFound):
		return "That item no longer exists. The list was reloaded, please try again."
	case errors.Is(err, club.ErrStorageQuotaExceeded):
		return "Local storage is full. Nothing was saved."
	case errors.Is(err, club.ErrBackendUnavailable):
		return "The server could not be reached. Please try again."
	}
	return err.Error()
}
