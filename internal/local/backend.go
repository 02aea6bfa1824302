package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"runclub/internal/club"
	"runclub/internal/model"
)

// Keys under which collections and identity pointers are stored.
const (
	KeyCurrentUser = "current-user"
	KeyRemoteUser  = "remote-user"
	KeyUsers       = "users-list"
	KeyRuns        = "runs-list"
	KeyEvents      = "events-map"
	KeyComments    = "comments-map"
	KeyMembers     = "members-list"
	KeyActivities  = "activities-list"
	KeyGallery     = "gallery-list"
)

type layout int

const (
	layoutList    layout = iota // JSON array of documents
	layoutMap                   // JSON object keyed by id
	layoutGrouped               // JSON object of run id -> array
)

type slot struct {
	key    string
	layout layout
}

var slots = map[model.Collection]slot{
	model.CollectionUser:     {KeyUsers, layoutList},
	model.CollectionRun:      {KeyRuns, layoutList},
	model.CollectionEvent:    {KeyEvents, layoutMap},
	model.CollectionComment:  {KeyComments, layoutGrouped},
	model.CollectionMember:   {KeyMembers, layoutList},
	model.CollectionActivity: {KeyActivities, layoutList},
	model.CollectionGallery:  {KeyGallery, layoutList},
}

// Backend implements club.Backend and club.IdentityStore over a KVStore.
// Ids are unix milliseconds, bumped as needed to stay unique.
type Backend struct {
	kv     KVStore
	clock  club.Clock
	logger club.Logger

	mu     sync.Mutex
	lastID int64
}

var (
	_ club.Backend       = (*Backend)(nil)
	_ club.IdentityStore = (*Backend)(nil)
)

func NewBackend(kv KVStore, clock club.Clock, logger club.Logger) *Backend {
	return &Backend{kv: kv, clock: clock, logger: logger}
}

// KV returns the underlying store.
func (b *Backend) KV() KVStore { return b.kv }

func (b *Backend) Create(ctx context.Context, coll model.Collection, fields map[string]any) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, err := b.load(coll)
	if err != nil {
		return nil, err
	}
	doc := model.NewDocument(b.nextID(docs), b.clock.Now(), fields)
	docs = append(docs, doc)
	if err := b.save(coll, docs); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (b *Backend) Query(ctx context.Context, coll model.Collection, q model.Query) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, err := b.load(coll)
	if err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

func (b *Backend) Count(ctx context.Context, coll model.Collection) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, err := b.load(coll)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (b *Backend) Update(ctx context.Context, coll model.Collection, id string, fields map[string]any) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	docs, err := b.load(coll)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID != id {
			continue
		}
		docs[i].Merge(fields, b.clock.Now())
		if err := b.save(coll, docs); err != nil {
			return nil, err
		}
		out := docs[i].Clone()
		return &out, nil
	}
	return nil, fmt.Errorf("%s %s: %w", coll, id, club.ErrNotFound)
}

// LoadLocalUser returns the stored local identity, or nil.
func (b *Backend) LoadLocalUser() (*model.User, error) {
	data, ok, err := b.kv.Get(KeyCurrentUser)
	if err != nil || !ok {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("malformed %s: %w", KeyCurrentUser, err)
	}
	if u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

func (b *Backend) SaveLocalUser(u model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.kv.Set(KeyCurrentUser, data)
}

// LoadRemoteUserID returns the stored remote identity pointer, or "".
func (b *Backend) LoadRemoteUserID() (string, error) {
	data, ok, err := b.kv.Get(KeyRemoteUser)
	if err != nil || !ok {
		return "", err
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("malformed %s: %w", KeyRemoteUser, err)
	}
	return id, nil
}

func (b *Backend) SaveRemoteUserID(id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return b.kv.Set(KeyRemoteUser, data)
}

// ClearIdentity removes both identity pointers.
func (b *Backend) ClearIdentity() error {
	if err := b.kv.Delete(KeyCurrentUser); err != nil {
		return err
	}
	return b.kv.Delete(KeyRemoteUser)
}

// nextID must be called with mu held.
func (b *Backend) nextID(existing []model.Document) string {
	taken := make(map[string]bool, len(existing))
	for _, d := range existing {
		taken[d.ID] = true
	}
	id := b.clock.Now().UnixMilli()
	if id <= b.lastID {
		id = b.lastID + 1
	}
	for taken[strconv.FormatInt(id, 10)] {
		id++
	}
	b.lastID = id
	return strconv.FormatInt(id, 10)
}

// load reads a collection. Absent or malformed values yield an empty list.
func (b *Backend) load(coll model.Collection) ([]model.Document, error) {
	sl, ok := slots[coll]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", coll)
	}
	data, found, err := b.kv.Get(sl.key)
	if err != nil {
		return nil, err
	}
	if !found || len(data) == 0 {
		return nil, nil
	}

	docs, err := decode(sl.layout, data)
	if err != nil {
		b.logger.Warn("ignoring malformed local data", "key", sl.key, "error", err)
		return nil, nil
	}
	return docs, nil
}

func (b *Backend) save(coll model.Collection, docs []model.Document) error {
	sl := slots[coll]
	data, err := encode(sl.layout, docs)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", sl.key, err)
	}
	return b.kv.Set(sl.key, data)
}

func decode(l layout, data []byte) ([]model.Document, error) {
	switch l {
	case layoutMap:
		var m map[string]model.Document
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		docs := make([]model.Document, 0, len(m))
		for id, d := range m {
			if d.ID == "" {
				d.ID = id
			}
			docs = append(docs, d)
		}
		sortByCreation(docs)
		return docs, nil
	case layoutGrouped:
		var m map[string][]model.Document
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		var docs []model.Document
		for _, group := range m {
			docs = append(docs, group...)
		}
		sortByCreation(docs)
		return docs, nil
	default:
		var docs []model.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
}

func encode(l layout, docs []model.Document) ([]byte, error) {
	switch l {
	case layoutMap:
		m := make(map[string]model.Document, len(docs))
		for _, d := range docs {
			m[d.ID] = d
		}
		return json.Marshal(m)
	case layoutGrouped:
		m := make(map[string][]model.Document)
		for _, d := range docs {
			runID, _ := d.Fields[model.FieldRunID].(string)
			m[runID] = append(m[runID], d)
		}
		return json.Marshal(m)
	default:
		if docs == nil {
			docs = []model.Document{}
		}
		return json.Marshal(docs)
	}
}

func sortByCreation(docs []model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
