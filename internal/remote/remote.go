// Package remote holds the document-store backends used when the club is
// online.
package remote

import (
	"context"

	"runclub/internal/club"
)

// Store is a remote club.Backend that owns a connection.
type Store interface {
	club.Backend
	Close(ctx context.Context) error
}
