package club

import (
	"context"

	"runclub/internal/model"
)

// Backend is the persistence contract shared by the remote document store and
// the local key/value store. Implementations normalize their native records
// into model.Document before returning.
type Backend interface {
	// Create inserts a new record and returns it with its assigned id and timestamps.
	Create(ctx context.Context, coll model.Collection, fields map[string]any) (*model.Document, error)

	// Query returns matching records. A collection that does not exist yet
	// yields an empty result.
	Query(ctx context.Context, coll model.Collection, q model.Query) ([]model.Document, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, coll model.Collection) (int, error)

	// Update merges fields into an existing record. Returns ErrNotFound if the
	// id does not exist.
	Update(ctx context.Context, coll model.Collection, id string, fields map[string]any) (*model.Document, error)
}

// Mode says which backend is serving requests.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// Persistence is a Backend that can fall back from remote to local while the
// application is starting.
type Persistence interface {
	Backend

	// Mode reports the backend currently in use.
	Mode() Mode

	// Downgrade switches to local mode if initialization is still open.
	// Reports whether the mode changed.
	Downgrade(reason error) bool

	// SealInit closes the initialization window; the mode is fixed afterwards.
	SealInit()
}

// IdentityStore persists the session identity pointers across restarts.
// Loads return a zero value and nil error when nothing is stored.
type IdentityStore interface {
	LoadLocalUser() (*model.User, error)
	SaveLocalUser(u model.User) error
	LoadRemoteUserID() (string, error)
	SaveRemoteUserID(id string) error
	ClearIdentity() error
}
