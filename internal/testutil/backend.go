package testutil

import (
	"context"
	"sync"

	"runclub/internal/club"
	"runclub/internal/model"
)

// Operation names accepted by FlakyBackend.FailOn.
const (
	OpAll    = ""
	OpCreate = "create"
	OpQuery  = "query"
	OpCount  = "count"
	OpUpdate = "update"
)

// FlakyBackend wraps a club.Backend and injects failures or stalls.
type FlakyBackend struct {
	inner club.Backend

	mu           sync.Mutex
	failures     map[string]error
	collFailures map[model.Collection]error
	calls        map[string]int
	gate         chan struct{}
}

var _ club.Backend = (*FlakyBackend)(nil)

func NewFlakyBackend(inner club.Backend) *FlakyBackend {
	return &FlakyBackend{
		inner:        inner,
		failures:     make(map[string]error),
		collFailures: make(map[model.Collection]error),
		calls:        make(map[string]int),
	}
}

// FailOn makes op (or every op, for OpAll) return err until Heal.
func (f *FlakyBackend) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// FailOnCollection makes every op on coll return err until Heal.
func (f *FlakyBackend) FailOnCollection(coll model.Collection, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collFailures[coll] = err
}

// Heal clears injected failures and releases any stall.
func (f *FlakyBackend) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
	f.collFailures = make(map[model.Collection]error)
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Stall makes writes block until Heal or until their context ends.
func (f *FlakyBackend) Stall() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Calls returns how many times op was invoked.
func (f *FlakyBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FlakyBackend) enter(ctx context.Context, op string, coll model.Collection) error {
	f.mu.Lock()
	f.calls[op]++
	err, ok := f.failures[op]
	if !ok {
		err = f.failures[OpAll]
	}
	if err == nil {
		err = f.collFailures[coll]
	}
	gate := f.gate
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if gate != nil && (op == OpCreate || op == OpUpdate) {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *FlakyBackend) Create(ctx context.Context, coll model.Collection, fields map[string]any) (*model.Document, error) {
	if err := f.enter(ctx, OpCreate, coll); err != nil {
		return nil, err
	}
	return f.inner.Create(ctx, coll, fields)
}

func (f *FlakyBackend) Query(ctx context.Context, coll model.Collection, q model.Query) ([]model.Document, error) {
	if err := f.enter(ctx, OpQuery, coll); err != nil {
		return nil, err
	}
	return f.inner.Query(ctx, coll, q)
}

func (f *FlakyBackend) Count(ctx context.Context, coll model.Collection) (int, error) {
	if err := f.enter(ctx, OpCount, coll); err != nil {
		return 0, err
	}
	return f.inner.Count(ctx, coll)
}

func (f *FlakyBackend) Update(ctx context.Context, coll model.Collection, id string, fields map[string]any) (*model.Document, error) {
	if err := f.enter(ctx, OpUpdate, coll); err != nil {
		return nil, err
	}
	return f.inner.Update(ctx, coll, id, fields)
}
