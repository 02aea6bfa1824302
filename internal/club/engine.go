package club

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"runclub/internal/model"
	"runclub/internal/stats"
)

// Engine is the single entry point for user actions. It owns the store and
// the session and applies every mutation through the persistence layer.
type Engine struct {
	backend  Persistence
	store    *Store
	sessions *Sessions
	clock    Clock
	logger   Logger

	mu    sync.Mutex
	likes map[string]bool
}

// NewEngine builds an engine over backend. identity holds the session
// pointers between runs.
func NewEngine(backend Persistence, identity IdentityStore, clock Clock, ids IDGenerator, logger Logger) *Engine {
	return &Engine{
		backend:  backend,
		store:    NewStore(backend, logger),
		sessions: NewSessions(backend, identity, clock, ids, logger),
		clock:    clock,
		logger:   logger,
		likes:    make(map[string]bool),
	}
}

// Start resolves the session, loads every collection and closes the
// initialization window. If the backend fell back to local while loading,
// the session and collections are re-resolved against local storage.
// After a clean load the user's totals are checked against their runs.
func (e *Engine) Start(ctx context.Context) (LoadReport, error) {
	started := e.backend.Mode()
	if err := e.sessions.Resolve(ctx); err != nil {
		e.backend.SealInit()
		return LoadReport{}, err
	}

	report := e.store.LoadAll(ctx)
	if started == ModeRemote && e.backend.Mode() == ModeLocal {
		if e.sessions.Status().State == AuthenticatedRemote {
			if err := e.sessions.FallBackToLocal(ctx); err != nil {
				e.backend.SealInit()
				return report, err
			}
		}
		report = e.store.LoadAll(ctx)
	}
	e.backend.SealInit()
	if report.OK() {
		e.healTotals(ctx)
	}
	return report, nil
}

// Store exposes the state store.
func (e *Engine) Store() *Store { return e.store }

// State returns a snapshot of the in-memory collections.
func (e *Engine) State() State { return e.store.Snapshot() }

// Status returns the session status.
func (e *Engine) Status() SessionStatus { return e.sessions.Status() }

// Mode reports the active backend.
func (e *Engine) Mode() Mode { return e.backend.Mode() }

// Now is the engine clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Login switches the session to the named user.
func (e *Engine) Login(ctx context.Context, displayName string) (model.User, error) {
	u, err := e.sessions.Login(ctx, displayName)
	if err != nil {
		return model.User{}, err
	}
	e.clearLikes()
	e.store.reconcile(ctx, model.CollectionUser)
	return u, nil
}

// Logout ends the session.
func (e *Engine) Logout() error {
	e.clearLikes()
	return e.sessions.Logout()
}

// CheckinForm carries raw form input.
type CheckinForm struct {
	Date     string
	Distance string
	Duration string
	Feeling  string
	PhotoRef string
}

// Parse validates the form. Future dates are accepted.
func (f CheckinForm) Parse() (date string, distance, duration float64, err error) {
	date = strings.TrimSpace(f.Date)
	if date == "" {
		return "", 0, 0, invalid("date", "required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", 0, 0, invalid("date", "expected YYYY-MM-DD")
	}
	if distance, err = positive("distance", f.Distance); err != nil {
		return "", 0, 0, err
	}
	if duration, err = positive("duration", f.Duration); err != nil {
		return "", 0, 0, err
	}
	return date, distance, duration, nil
}

func positive(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(field, "required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(field, "must be a number")
	}
	if v <= 0 {
		return 0, invalid(field, "must be greater than zero")
	}
	return v, nil
}

// Checkin records a run for the current user and refreshes their totals.
func (e *Engine) Checkin(ctx context.Context, form CheckinForm) (model.Run, error) {
	user, err := e.currentUser()
	if err != nil {
		return model.Run{}, err
	}
	date, distance, duration, err := form.Parse()
	if err != nil {
		return model.Run{}, err
	}

	run, err := e.store.UpsertRun(ctx, model.Run{
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Date:      date,
		Distance:  distance,
		Duration:  duration,
		Feeling:   strings.TrimSpace(form.Feeling),
		PhotoRef:  strings.TrimSpace(form.PhotoRef),
		CreatedAt: e.clock.Now(),
	})
	if err != nil {
		return model.Run{}, err
	}
	e.logger.Info("run checked in", "run", run.ID, "distance", distance, "pace", stats.FormatPace(stats.RunPace(run)))

	if err := e.refreshTotals(ctx, user.ID); err != nil {
		e.logger.Warn("totals not updated", "user", user.ID, "run", run.ID, "error", err)
		return run, fmt.Errorf("%w: %w", ErrTotalsStale, err)
	}
	return run, nil
}

func (e *Engine) refreshTotals(ctx context.Context, userID string) error {
	distance, count, err := e.runTotals(ctx, userID)
	if err != nil {
		return err
	}
	_, err = e.store.UpdateUser(ctx, userID, map[string]any{
		model.FieldTotalDistance:  distance,
		model.FieldTotalRuns:      count,
		model.FieldLastActivityAt: e.clock.Now(),
	})
	return err
}

func (e *Engine) runTotals(ctx context.Context, userID string) (float64, int, error) {
	runs, err := e.queryRuns(ctx, model.Where(model.FieldUserID, model.OpEq, userID))
	if err != nil {
		return 0, 0, err
	}
	distance, count := stats.UserTotals(userID, runs)
	return distance, count, nil
}

// healTotals rewrites the current user's totals when they disagree with
// their stored runs, as left behind by an ErrTotalsStale checkin.
func (e *Engine) healTotals(ctx context.Context) {
	st := e.sessions.Status()
	if !st.CanWrite() {
		return
	}
	user := st.User
	if loaded := e.store.ResolveUser(user.ID); loaded != nil {
		user = loaded
	}
	distance, count, err := e.runTotals(ctx, user.ID)
	if err != nil {
		e.logger.Warn("could not verify totals", "user", user.ID, "error", err)
		return
	}
	if count == user.TotalRuns && math.Abs(distance-user.TotalDistance) < 1e-9 {
		return
	}
	if _, err := e.store.UpdateUser(ctx, user.ID, map[string]any{
		model.FieldTotalDistance: distance,
		model.FieldTotalRuns:     count,
	}); err != nil {
		e.logger.Warn("could not repair totals", "user", user.ID, "error", err)
		return
	}
	e.logger.Info("repaired stale totals", "user", user.ID, "runs", count)
}

// LeaderboardRuns fetches every run inside window from the backend, newest
// first. It is not limited to the loaded page.
func (e *Engine) LeaderboardRuns(ctx context.Context, window stats.Window) ([]model.Run, error) {
	var filters []model.Predicate
	if start := window.Start(e.clock.Now()); !start.IsZero() {
		filters = append(filters, model.Where(model.FieldCreatedAt, model.OpGte, start))
	}
	return e.queryRuns(ctx, filters...)
}

func (e *Engine) queryRuns(ctx context.Context, filters ...model.Predicate) ([]model.Run, error) {
	docs, err := e.backend.Query(ctx, model.CollectionRun, model.Query{
		Filters: filters,
		Sort:    &model.Order{Field: model.FieldCreatedAt, Descending: true},
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

// Join adds the current user to an event's roster. Joining twice is a no-op.
func (e *Engine) Join(ctx context.Context, eventID string) (model.Event, error) {
	user, err := e.currentUser()
	if err != nil {
		return model.Event{}, err
	}
	ev, err := e.event(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	if ev.HasParticipant(user.ID) {
		return *ev, nil
	}
	if ev.Full() {
		return *ev, fmt.Errorf("%s (%d/%d): %w", ev.Title, len(ev.Participants), ev.MaxParticipants, ErrEventFull)
	}
	ev.Participants = append(ev.Participants, user.ID)
	return e.store.UpsertEvent(ctx, *ev)
}

// Leave removes the current user from an event's roster if present.
func (e *Engine) Leave(ctx context.Context, eventID string) (model.Event, error) {
	user, err := e.currentUser()
	if err != nil {
		return model.Event{}, err
	}
	ev, err := e.event(ctx, eventID)
	if err != nil {
		return model.Event{}, err
	}
	if !ev.HasParticipant(user.ID) {
		return *ev, nil
	}
	roster := make([]string, 0, len(ev.Participants))
	for _, p := range ev.Participants {
		if p != user.ID {
			roster = append(roster, p)
		}
	}
	ev.Participants = roster
	return e.store.UpsertEvent(ctx, *ev)
}

// Comment appends a comment to a run.
func (e *Engine) Comment(ctx context.Context, runID, text string) (model.Comment, error) {
	user, err := e.currentUser()
	if err != nil {
		return model.Comment{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Comment{}, invalid("comment", "required")
	}
	if _, err := e.run(ctx, runID); err != nil {
		return model.Comment{}, err
	}
	return e.store.AppendComment(ctx, model.Comment{
		RunID:       runID,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Text:        text,
		CreatedAt:   e.clock.Now(),
	})
}

// ToggleLike flips the like state of a run for this session and returns the
// new state. Likes are not persisted.
func (e *Engine) ToggleLike(ctx context.Context, runID string) (bool, error) {
	if _, err := e.currentUser(); err != nil {
		return false, err
	}
	if _, err := e.run(ctx, runID); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.likes[runID] = !e.likes[runID]
	return e.likes[runID], nil
}

// Likes returns the runs liked in this session.
func (e *Engine) Likes() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.likes))
	for k, v := range e.likes {
		if v {
			out[k] = true
		}
	}
	return out
}

func (e *Engine) clearLikes() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.likes = make(map[string]bool)
}

func (e *Engine) currentUser() (*model.User, error) {
	st := e.sessions.Status()
	if !st.CanWrite() {
		if st.State == Resolving {
			return nil, fmt.Errorf("still logging in: %w", ErrNotAuthenticated)
		}
		return nil, ErrNotAuthenticated
	}
	return st.User, nil
}

func (e *Engine) event(ctx context.Context, id string) (*model.Event, error) {
	if ev := e.store.Event(id); ev != nil {
		return ev, nil
	}
	e.store.reconcile(ctx, model.CollectionEvent)
	if ev := e.store.Event(id); ev != nil {
		return ev, nil
	}
	return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
}

func (e *Engine) run(ctx context.Context, id string) (*model.Run, error) {
	if r := e.store.Run(id); r != nil {
		return r, nil
	}
	e.store.reconcile(ctx, model.CollectionRun)
	if r := e.store.Run(id); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
}
