package club

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"runclub/internal/model"
)

// Page sizes applied when loading collections.
const (
	UserPageSize = 100
	RunPageSize  = 50
)

// DefaultEvents are created on load when no event with the same title exists.
var DefaultEvents = []model.Event{
	{
		Title:           "Weekend long run",
		Location:        "Century Park",
		Schedule:        "Saturdays 07:00",
		Description:     "Easy-pace long run for all levels, 6-7 min/km.",
		MaxParticipants: 20,
	},
	{
		Title:           "Interval training",
		Location:        "Stadium track",
		Schedule:        "Wednesdays 19:30",
		Description:     "Track repeats to build speed and endurance.",
		MaxParticipants: 15,
	},
}

// State is a point-in-time copy of the in-memory collections.
type State struct {
	Users       []model.User
	Runs        []model.Run // newest first
	Events      []model.Event
	Comments    map[string][]model.Comment // by run id, oldest first
	MemberCount int
}

// User returns the user with the given id, or nil.
func (s State) User(id string) *model.User {
	for i := range s.Users {
		if s.Users[i].ID == id {
			u := s.Users[i]
			return &u
		}
	}
	return nil
}

func (s State) clone() State {
	c := State{
		Users:       append([]model.User(nil), s.Users...),
		Runs:        append([]model.Run(nil), s.Runs...),
		Events:      make([]model.Event, len(s.Events)),
		Comments:    make(map[string][]model.Comment, len(s.Comments)),
		MemberCount: s.MemberCount,
	}
	for i, ev := range s.Events {
		c.Events[i] = ev.Clone()
	}
	for k, v := range s.Comments {
		c.Comments[k] = append([]model.Comment(nil), v...)
	}
	return c
}

// LoadReport lists the sub-collections that failed to load. Each failed one
// was left at its empty default.
type LoadReport struct {
	Failed map[string]error
}

// OK reports whether every sub-collection loaded.
func (r LoadReport) OK() bool { return len(r.Failed) == 0 }

// Err joins the individual failures, or returns nil.
func (r LoadReport) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, name := range []string{"users", "runs", "events", "comments", "members"} {
		if err, ok := r.Failed[name]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Store holds the in-memory collections and keeps them reconciled with the
// backend. Backend calls never run under the lock.
type Store struct {
	backend Backend
	logger  Logger

	mu      sync.RWMutex
	state   State
	pending int
}

// NewStore returns an empty store over backend. Call LoadAll to fill it.
func NewStore(backend Backend, logger Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		state:   State{Comments: map[string][]model.Comment{}},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// LoadAll replaces every collection from the backend. A failing sub-load
// leaves that collection empty and is reported; the others still load.
func (s *Store) LoadAll(ctx context.Context) LoadReport {
	report := LoadReport{Failed: map[string]error{}}

	users, err := s.fetchUsers(ctx)
	if err != nil {
		report.Failed["users"] = err
	}
	runs, err := s.fetchRuns(ctx)
	if err != nil {
		report.Failed["runs"] = err
	}
	events, err := s.fetchEvents(ctx)
	if err == nil {
		events, err = s.seedEvents(ctx, events)
	}
	if err != nil {
		report.Failed["events"] = err
		events = nil
	}
	comments, err := s.fetchComments(ctx, runs)
	if err != nil {
		report.Failed["comments"] = err
		comments = map[string][]model.Comment{}
	}
	members, err := s.backend.Count(ctx, model.CollectionUser)
	if err != nil {
		report.Failed["members"] = err
		members = 0
	}

	for name, err := range report.Failed {
		s.logger.Warn("load failed, using defaults", "collection", name, "error", err)
	}

	s.mu.Lock()
	s.state = State{
		Users:       users,
		Runs:        runs,
		Events:      events,
		Comments:    comments,
		MemberCount: members,
	}
	s.mu.Unlock()
	return report
}

// Refresh reloads one collection. On failure the current contents are kept.
func (s *Store) Refresh(ctx context.Context, coll model.Collection) error {
	switch coll {
	case model.CollectionUser:
		users, err := s.fetchUsers(ctx)
		if err != nil {
			return err
		}
		members, err := s.backend.Count(ctx, model.CollectionUser)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.state.Users = users
		s.state.MemberCount = members
		s.mu.Unlock()
	case model.CollectionRun:
		runs, err := s.fetchRuns(ctx)
		if err != nil {
			return err
		}
		comments, err := s.fetchComments(ctx, runs)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.state.Runs = runs
		s.state.Comments = comments
		s.mu.Unlock()
	case model.CollectionEvent:
		events, err := s.fetchEvents(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.state.Events = events
		s.mu.Unlock()
	case model.CollectionComment:
		s.mu.RLock()
		runs := append([]model.Run(nil), s.state.Runs...)
		s.mu.RUnlock()
		comments, err := s.fetchComments(ctx, runs)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.state.Comments = comments
		s.mu.Unlock()
	default:
		return fmt.Errorf("collection %s is not held in memory", coll)
	}
	return nil
}

// ResolveUser returns the loaded user with the given id, or nil.
func (s *Store) ResolveUser(id string) *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User(id)
}

// Run returns the loaded run with the given id, or nil.
func (s *Store) Run(id string) *model.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.state.Runs {
		if r.ID == id {
			return &r
		}
	}
	return nil
}

// Event returns a copy of the loaded event with the given id, or nil.
func (s *Store) Event(id string) *model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.state.Events {
		if ev.ID == id {
			c := ev.Clone()
			return &c
		}
	}
	return nil
}

// UpsertRun inserts a new run. Runs are immutable, so an upsert always creates.
func (s *Store) UpsertRun(ctx context.Context, r model.Run) (model.Run, error) {
	s.mu.Lock()
	tmpID := s.nextPendingID()
	r.ID = tmpID
	s.state.Runs = append([]model.Run{r}, s.state.Runs...)
	s.mu.Unlock()

	doc, err := s.backend.Create(ctx, model.CollectionRun, r.Fields())
	if err != nil {
		s.mu.Lock()
		s.state.Runs = removeRun(s.state.Runs, tmpID)
		s.mu.Unlock()
		return model.Run{}, fmt.Errorf("failed to save run: %w", err)
	}
	created := model.RunFromDocument(*doc)

	s.mu.Lock()
	for i := range s.state.Runs {
		if s.state.Runs[i].ID == tmpID {
			s.state.Runs[i] = created
		}
	}
	s.mu.Unlock()

	s.reconcile(ctx, model.CollectionRun)
	return created, nil
}

// UpsertEvent creates ev when it has no id, otherwise writes its fields over
// the stored event.
func (s *Store) UpsertEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		return s.createEvent(ctx, ev)
	}

	s.mu.Lock()
	idx := s.eventIndex(ev.ID)
	var prev model.Event
	if idx >= 0 {
		prev = s.state.Events[idx]
		s.state.Events[idx] = ev.Clone()
	}
	s.mu.Unlock()

	doc, err := s.backend.Update(ctx, model.CollectionEvent, ev.ID, ev.Fields())
	if err != nil {
		if idx >= 0 {
			s.mu.Lock()
			if i := s.eventIndex(ev.ID); i >= 0 {
				s.state.Events[i] = prev
			}
			s.mu.Unlock()
		}
		if errors.Is(err, ErrNotFound) {
			s.reconcile(ctx, model.CollectionEvent)
		}
		return model.Event{}, fmt.Errorf("failed to save event %s: %w", ev.ID, err)
	}

	s.reconcile(ctx, model.CollectionEvent)
	return model.EventFromDocument(*doc), nil
}

func (s *Store) createEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	s.mu.Lock()
	tmpID := s.nextPendingID()
	pending := ev.Clone()
	pending.ID = tmpID
	s.state.Events = append(s.state.Events, pending)
	s.mu.Unlock()

	doc, err := s.backend.Create(ctx, model.CollectionEvent, ev.Fields())
	if err != nil {
		s.mu.Lock()
		if i := s.eventIndex(tmpID); i >= 0 {
			s.state.Events = append(s.state.Events[:i], s.state.Events[i+1:]...)
		}
		s.mu.Unlock()
		return model.Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	created := model.EventFromDocument(*doc)

	s.mu.Lock()
	if i := s.eventIndex(tmpID); i >= 0 {
		s.state.Events[i] = created.Clone()
	}
	s.mu.Unlock()

	s.reconcile(ctx, model.CollectionEvent)
	return created, nil
}

// AppendComment adds a comment to its run's thread.
func (s *Store) AppendComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	s.mu.Lock()
	tmpID := s.nextPendingID()
	pending := c
	pending.ID = tmpID
	s.state.Comments[c.RunID] = append(s.state.Comments[c.RunID], pending)
	s.mu.Unlock()

	doc, err := s.backend.Create(ctx, model.CollectionComment, c.Fields())
	if err != nil {
		s.mu.Lock()
		s.state.Comments[c.RunID] = removeComment(s.state.Comments[c.RunID], tmpID)
		if len(s.state.Comments[c.RunID]) == 0 {
			delete(s.state.Comments, c.RunID)
		}
		s.mu.Unlock()
		return model.Comment{}, fmt.Errorf("failed to save comment: %w", err)
	}
	created := model.CommentFromDocument(*doc)

	s.mu.Lock()
	thread := s.state.Comments[c.RunID]
	for i := range thread {
		if thread[i].ID == tmpID {
			thread[i] = created
		}
	}
	s.mu.Unlock()

	s.reconcile(ctx, model.CollectionComment)
	return created, nil
}

// UpdateUser merges fields into a user and reloads the user list.
func (s *Store) UpdateUser(ctx context.Context, id string, fields map[string]any) (model.User, error) {
	s.mu.Lock()
	idx := -1
	var prev model.User
	for i, u := range s.state.Users {
		if u.ID == id {
			idx, prev = i, u
			doc := model.NewDocument(u.ID, u.JoinedAt, u.Fields())
			doc.Merge(fields, u.JoinedAt)
			s.state.Users[i] = model.UserFromDocument(doc)
			break
		}
	}
	s.mu.Unlock()

	doc, err := s.backend.Update(ctx, model.CollectionUser, id, fields)
	if err != nil {
		if idx >= 0 {
			s.mu.Lock()
			for i := range s.state.Users {
				if s.state.Users[i].ID == id {
					s.state.Users[i] = prev
				}
			}
			s.mu.Unlock()
		}
		if errors.Is(err, ErrNotFound) {
			s.reconcile(ctx, model.CollectionUser)
		}
		return model.User{}, fmt.Errorf("failed to update user %s: %w", id, err)
	}

	s.reconcile(ctx, model.CollectionUser)
	return model.UserFromDocument(*doc), nil
}

func (s *Store) reconcile(ctx context.Context, coll model.Collection) {
	if err := s.Refresh(ctx, coll); err != nil {
		s.logger.Warn("reload after write failed, keeping local copy", "collection", coll, "error", err)
	}
}

func (s *Store) fetchUsers(ctx context.Context) ([]model.User, error) {
	docs, err := s.backend.Query(ctx, model.CollectionUser, model.Query{Limit: UserPageSize})
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, model.UserFromDocument(d))
	}
	return users, nil
}

func (s *Store) fetchRuns(ctx context.Context) ([]model.Run, error) {
	docs, err := s.backend.Query(ctx, model.CollectionRun, model.Query{
		Sort:  &model.Order{Field: model.FieldCreatedAt, Descending: true},
		Limit: RunPageSize,
	})
	if err != nil {
		return nil, err
	}
	runs := make([]model.Run, 0, len(docs))
	for _, d := range docs {
		runs = append(runs, model.RunFromDocument(d))
	}
	return runs, nil
}

func (s *Store) fetchEvents(ctx context.Context) ([]model.Event, error) {
	docs, err := s.backend.Query(ctx, model.CollectionEvent, model.Query{
		Sort: &model.Order{Field: model.FieldCreatedAt},
	})
	if err != nil {
		return nil, err
	}
	events := make([]model.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, model.EventFromDocument(d))
	}
	return events, nil
}

func (s *Store) fetchComments(ctx context.Context, runs []model.Run) (map[string][]model.Comment, error) {
	comments := make(map[string][]model.Comment)
	if len(runs) == 0 {
		return comments, nil
	}
	docs, err := s.backend.Query(ctx, model.CollectionComment, model.Query{
		Sort: &model.Order{Field: model.FieldCreatedAt},
	})
	if err != nil {
		return nil, err
	}
	loaded := make(map[string]bool, len(runs))
	for _, r := range runs {
		loaded[r.ID] = true
	}
	for _, d := range docs {
		c := model.CommentFromDocument(d)
		if loaded[c.RunID] {
			comments[c.RunID] = append(comments[c.RunID], c)
		}
	}
	return comments, nil
}

// seedEvents creates the defaults missing from events, matched by title, so
// a seed interrupted halfway is completed on the next load.
func (s *Store) seedEvents(ctx context.Context, events []model.Event) ([]model.Event, error) {
	have := make(map[string]bool, len(events))
	for _, ev := range events {
		have[ev.Title] = true
	}
	var seeded int
	for _, ev := range DefaultEvents {
		if have[ev.Title] {
			continue
		}
		if _, err := s.backend.Create(ctx, model.CollectionEvent, ev.Fields()); err != nil {
			return nil, fmt.Errorf("failed to seed default event %q: %w", ev.Title, err)
		}
		seeded++
	}
	if seeded == 0 {
		return events, nil
	}
	s.logger.Info("seeded default events", "count", seeded)
	return s.fetchEvents(ctx)
}

// nextPendingID must be called with mu held.
func (s *Store) nextPendingID() string {
	s.pending++
	return fmt.Sprintf("pending-%d", s.pending)
}

// eventIndex must be called with mu held.
func (s *Store) eventIndex(id string) int {
	for i, ev := range s.state.Events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

func removeRun(runs []model.Run, id string) []model.Run {
	out := runs[:0]
	for _, r := range runs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func removeComment(comments []model.Comment, id string) []model.Comment {
	out := comments[:0]
	for _, c := range comments {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
