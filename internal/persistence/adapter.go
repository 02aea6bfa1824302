// Package persistence routes backend calls to either the remote document
// store or the local key/value store.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"runclub/internal/club"
	"runclub/internal/model"
)

// DefaultTimeout bounds every backend call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Adapter implements club.Persistence. The mode is chosen at construction
// and may only move from remote to local, and only before SealInit.
type Adapter struct {
	remote  club.Backend
	local   club.Backend
	timeout time.Duration
	logger  club.Logger

	mu     sync.Mutex
	mode   club.Mode
	sealed bool
}

var _ club.Persistence = (*Adapter)(nil)

// NewAdapter pings the remote backend with a Count and selects local mode
// if remote is nil or the ping fails. local must not be nil.
func NewAdapter(ctx context.Context, remote, local club.Backend, timeout time.Duration, logger club.Logger) (*Adapter, error) {
	if local == nil {
		return nil, fmt.Errorf("local backend is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	a := &Adapter{
		remote:  remote,
		local:   local,
		timeout: timeout,
		logger:  logger,
		mode:    club.ModeLocal,
	}
	if remote == nil {
		logger.Info("no remote backend configured, using local storage")
		return a, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := remote.Count(pingCtx, model.CollectionUser); err != nil {
		logger.Warn("remote backend unreachable, using local storage", "error", classify(err))
		return a, nil
	}
	a.mode = club.ModeRemote
	return a, nil
}

// Mode reports the backend currently in use.
func (a *Adapter) Mode() club.Mode {
	_, mode := a.active()
	return mode
}

// Downgrade switches to local mode unless initialization is sealed.
func (a *Adapter) Downgrade(reason error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed || a.mode == club.ModeLocal {
		return false
	}
	a.mode = club.ModeLocal
	a.logger.Warn("switching to local storage", "reason", reason)
	return true
}

// SealInit fixes the mode for the rest of the process.
func (a *Adapter) SealInit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
}

// active is the only reader of the mode flag.
func (a *Adapter) active() (club.Backend, club.Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == club.ModeRemote {
		return a.remote, club.ModeRemote
	}
	return a.local, club.ModeLocal
}

// Create inserts into the active backend.
func (a *Adapter) Create(ctx context.Context, coll model.Collection, fields map[string]any) (*model.Document, error) {
	var doc *model.Document
	err := a.do(ctx, "create", coll, func(ctx context.Context, b club.Backend) error {
		var err error
		doc, err = b.Create(ctx, coll, fields)
		return err
	})
	return doc, err
}

// Query reads from the active backend. Failures are classified so callers
// can tell an unreachable server from a full local store.
func (a *Adapter) Query(ctx context.Context, coll model.Collection, q model.Query) ([]model.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var docs []model.Document
	err := a.do(ctx, "query", coll, func(ctx context.Context, b club.Backend) error {
		var err error
		docs, err = b.Query(ctx, coll, q)
		return err
	})
	return docs, err
}

// Count returns the number of documents in coll.
func (a *Adapter) Count(ctx context.Context, coll model.Collection) (int, error) {
	var n int
	err := a.do(ctx, "count", coll, func(ctx context.Context, b club.Backend) error {
		var err error
		n, err = b.Count(ctx, coll)
		return err
	})
	return n, err
}

// Update applies a partial update on the active backend.
func (a *Adapter) Update(ctx context.Context, coll model.Collection, id string, fields map[string]any) (*model.Document, error) {
	var doc *model.Document
	err := a.do(ctx, "update", coll, func(ctx context.Context, b club.Backend) error {
		var err error
		doc, err = b.Update(ctx, coll, id, fields)
		return err
	})
	return doc, err
}

func (a *Adapter) do(ctx context.Context, op string, coll model.Collection, fn func(context.Context, club.Backend) error) error {
	b, mode := a.active()
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err := classify(fn(callCtx, b))
	if err == nil {
		return nil
	}
	a.logger.Debug("backend call failed", "op", op, "collection", coll, "mode", mode, "error", err)
	if mode == club.ModeRemote && errors.Is(err, club.ErrBackendUnavailable) {
		a.Downgrade(err)
	}
	return err
}

// classify reports expired deadlines as an unavailable backend.
func classify(err error) error {
	if err == nil || errors.Is(err, club.ErrBackendUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", club.ErrBackendUnavailable, err)
	}
	return err
}
