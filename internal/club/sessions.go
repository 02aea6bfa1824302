package club

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"runclub/internal/model"
)

// NamePrefix prefixes generated display names.
const NamePrefix = "runner"

// SessionState tracks identity resolution.
type SessionState int

const (
	Unresolved SessionState = iota
	Resolving
	AuthenticatedRemote
	AuthenticatedLocal
	Failed
)

func (s SessionState) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case AuthenticatedRemote:
		return "authenticated-remote"
	case AuthenticatedLocal:
		return "authenticated-local"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// SessionStatus is what the UI needs to know about the session.
type SessionStatus struct {
	State     SessionState
	User      *model.User
	LocalOnly bool
}

// CanWrite reports whether mutations are allowed.
func (s SessionStatus) CanWrite() bool {
	return (s.State == AuthenticatedRemote || s.State == AuthenticatedLocal) && s.User != nil
}

// Indicator is the short status label shown next to the user name.
func (s SessionStatus) Indicator() string {
	switch {
	case s.State == Resolving:
		return "logging in"
	case !s.CanWrite():
		return "logged out"
	case s.LocalOnly:
		return "local"
	}
	return "online"
}

// Sessions resolves and holds the current user's identity.
type Sessions struct {
	backend  Persistence
	identity IdentityStore
	clock    Clock
	ids      IDGenerator
	logger   Logger

	mu        sync.RWMutex
	state     SessionState
	user      *model.User
	attempted bool
}

func NewSessions(backend Persistence, identity IdentityStore, clock Clock, ids IDGenerator, logger Logger) *Sessions {
	return &Sessions{
		backend:  backend,
		identity: identity,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// Status returns the current session status.
func (s *Sessions) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := SessionStatus{
		State:     s.state,
		LocalOnly: s.backend.Mode() == ModeLocal,
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// Resolve establishes the startup identity. Only the first call per process
// does any work. A remote failure downgrades the backend and resolves a
// local identity instead.
func (s *Sessions) Resolve(ctx context.Context) error {
	s.mu.Lock()
	if s.attempted {
		s.mu.Unlock()
		return nil
	}
	s.attempted = true
	s.state = Resolving
	s.mu.Unlock()

	if s.backend.Mode() == ModeRemote {
		u, err := s.resolveRemote(ctx)
		if err == nil {
			s.set(AuthenticatedRemote, u)
			s.logger.Info("logged in", "user", u.ID, "mode", ModeRemote)
			return nil
		}
		s.logger.Warn("remote login failed, using local identity", "error", err)
		s.set(Failed, nil)
		s.backend.Downgrade(err)
	}
	return s.resolveLocal(ctx)
}

// FallBackToLocal replaces a remote identity with a local one after the
// backend was downgraded.
func (s *Sessions) FallBackToLocal(ctx context.Context) error {
	if s.backend.Mode() != ModeLocal {
		return fmt.Errorf("backend is still remote")
	}
	s.set(Resolving, nil)
	return s.resolveLocal(ctx)
}

func (s *Sessions) resolveLocal(ctx context.Context) error {
	u, err := s.localIdentity(ctx)
	if err != nil {
		s.set(Failed, nil)
		return fmt.Errorf("failed to resolve local identity: %w", err)
	}
	s.set(AuthenticatedLocal, u)
	s.logger.Info("logged in", "user", u.ID, "mode", ModeLocal)
	return nil
}

func (s *Sessions) resolveRemote(ctx context.Context) (*model.User, error) {
	id, err := s.identity.LoadRemoteUserID()
	if err != nil {
		s.logger.Warn("ignoring unreadable remote identity", "error", err)
		id = ""
	}
	if id != "" {
		u, err := s.findUser(ctx, model.FieldID, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			return u, nil
		}
	}

	doc, err := s.backend.Create(ctx, model.CollectionUser, model.User{
		JoinedAt:  s.clock.Now(),
		Anonymous: true,
	}.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous user: %w", err)
	}
	doc, err = s.backend.Update(ctx, model.CollectionUser, doc.ID, map[string]any{
		model.FieldDisplayName: NamePrefix + model.ShortID(doc.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to name anonymous user: %w", err)
	}
	if err := s.identity.SaveRemoteUserID(doc.ID); err != nil {
		return nil, fmt.Errorf("failed to persist remote identity: %w", err)
	}
	u := model.UserFromDocument(*doc)
	return &u, nil
}

func (s *Sessions) localIdentity(ctx context.Context) (*model.User, error) {
	stored, err := s.identity.LoadLocalUser()
	if err != nil {
		s.logger.Warn("ignoring unreadable local identity", "error", err)
		stored = nil
	}

	name := NamePrefix + model.ShortID(s.ids.New())
	if stored != nil {
		u, err := s.findUser(ctx, model.FieldID, stored.ID)
		if err != nil {
			return nil, err
		}
		if u != nil {
			return u, nil
		}
		if stored.DisplayName != "" {
			name = stored.DisplayName
		}
	}

	doc, err := s.backend.Create(ctx, model.CollectionUser, model.User{
		DisplayName: name,
		JoinedAt:    s.clock.Now(),
	}.Fields())
	if err != nil {
		return nil, err
	}
	u := model.UserFromDocument(*doc)
	if err := s.identity.SaveLocalUser(u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login finds or creates the user with the given display name and makes it
// the current identity.
func (s *Sessions) Login(ctx context.Context, displayName string) (model.User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return model.User{}, invalid("name", "required")
	}
	if s.Status().State == Resolving {
		return model.User{}, ErrBusy
	}

	u, err := s.findUser(ctx, model.FieldDisplayName, name)
	if err != nil {
		return model.User{}, fmt.Errorf("login failed: %w", err)
	}
	if u == nil {
		doc, err := s.backend.Create(ctx, model.CollectionUser, model.User{
			DisplayName: name,
			JoinedAt:    s.clock.Now(),
		}.Fields())
		if err != nil {
			return model.User{}, fmt.Errorf("login failed: %w", err)
		}
		created := model.UserFromDocument(*doc)
		u = &created
	}

	state := AuthenticatedLocal
	if s.backend.Mode() == ModeRemote {
		state = AuthenticatedRemote
		err = s.identity.SaveRemoteUserID(u.ID)
	} else {
		err = s.identity.SaveLocalUser(*u)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to persist identity: %w", err)
	}

	s.mu.Lock()
	s.attempted = true
	s.mu.Unlock()
	s.set(state, u)
	s.logger.Info("logged in", "user", u.ID, "name", u.DisplayName)
	return *u, nil
}

// Logout forgets the stored identity and resets the session.
func (s *Sessions) Logout() error {
	if err := s.identity.ClearIdentity(); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	s.set(Unresolved, nil)
	return nil
}

func (s *Sessions) findUser(ctx context.Context, field, value string) (*model.User, error) {
	docs, err := s.backend.Query(ctx, model.CollectionUser, model.Query{
		Filters: []model.Predicate{model.Where(field, model.OpEq, value)},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	u := model.UserFromDocument(docs[0])
	return &u, nil
}

func (s *Sessions) set(state SessionState, u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.user = u
}
