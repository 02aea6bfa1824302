package remote

import (
	"context"
	"fmt"
	"sync"

	"runclub/internal/club"
	"runclub/internal/model"
)

// MemoryStore is an in-process document store with the same semantics as
// MongoStore. Used for tests and demos.
type MemoryStore struct {
	ids   club.IDGenerator
	clock club.Clock

	mu    sync.RWMutex
	colls map[model.Collection][]model.Document
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(ids club.IDGenerator, clock club.Clock) *MemoryStore {
	return &MemoryStore{
		ids:   ids,
		clock: clock,
		colls: make(map[model.Collection][]model.Document),
	}
}

func (m *MemoryStore) Create(ctx context.Context, coll model.Collection, fields map[string]any) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := model.NewDocument(m.ids.New(), m.clock.Now(), fields)
	m.colls[coll] = append(m.colls[coll], doc)
	out := doc.Clone()
	return &out, nil
}

func (m *MemoryStore) Query(ctx context.Context, coll model.Collection, q model.Query) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return q.Apply(m.colls[coll]), nil
}

func (m *MemoryStore) Count(ctx context.Context, coll model.Collection) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.colls[coll]), nil
}

func (m *MemoryStore) Update(ctx context.Context, coll model.Collection, id string, fields map[string]any) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.colls[coll]
	for i := range docs {
		if docs[i].ID == id {
			docs[i].Merge(model.CopyFields(fields), m.clock.Now())
			out := docs[i].Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%s %s: %w", coll, id, club.ErrNotFound)
}

func (m *MemoryStore) Close(context.Context) error { return nil }
