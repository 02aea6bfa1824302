package club

import (
	"context"
	"io"
)

// Vault stores named snapshot blobs off the machine, each with a version
// marker so a pull can tell whether anything newer exists.
type Vault interface {
	// Name is the configured vault name.
	Name() string

	// Put stores size bytes read from r under name, replacing any previous
	// blob, and records version alongside it. A version lower than the
	// stored one fails with ErrStaleSnapshot and leaves the blob unchanged.
	Put(ctx context.Context, name string, r io.Reader, size int64, version int64) error

	// Get writes the blob stored under name to w. A missing blob wraps
	// ErrNotFound.
	Get(ctx context.Context, name string, w io.Writer) error

	// Version returns the version recorded for name, or 0 if none.
	Version(ctx context.Context, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
