package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"runclub/internal/club"
	"runclub/internal/config"
	"runclub/internal/encryption"
	"runclub/internal/local"
	"runclub/internal/model"
	"runclub/internal/persistence"
	"runclub/internal/remote"
	"runclub/internal/render"
	"runclub/internal/stats"
	"runclub/internal/vault"
)

// Page is a top-level view.
type Page string

const (
	PageHome        Page = "home"
	PageFeed        Page = "feed"
	PageLeaderboard Page = "leaderboard"
	PageEvents      Page = "events"
)

// ParsePage accepts the name of a top-level view.
func ParsePage(s string) (Page, error) {
	switch p := Page(s); p {
	case PageHome, PageFeed, PageLeaderboard, PageEvents:
		return p, nil
	}
	return "", fmt.Errorf("unknown page %q", s)
}

// Names of the UI controls guarded by an Action.
const (
	ActionCheckin = "checkin"
	ActionLogin   = "login"
	ActionJoin    = "join"
	ActionLeave   = "leave"
	ActionComment = "comment"
	ActionLike    = "like"
	ActionPush    = "snapshot-push"
	ActionPull    = "snapshot-pull"
)

// Options overrides collaborators that are otherwise built from config.
type Options struct {
	Clock   club.Clock
	IDs     club.IDGenerator
	Logger  club.Logger
	Verbose bool // copy log output to stderr

	// KV replaces the configured local store. The caller keeps ownership
	// and closes it.
	KV local.KVStore

	// Passphrase is asked for when an encrypted snapshot is pulled.
	Passphrase func() (string, error)
}

// App is the application layer between the CLI and the club engine. It
// constructs every dependency from config once, holds the UI state (current
// page, leaderboard tab) and guards each write behind an Action.
type App struct {
	cfg     *config.Config
	clock   club.Clock
	logger  club.Logger
	logFile *os.File

	kv         local.KVStore
	ownKV      bool
	remote     remote.Store
	backend    *persistence.Adapter
	engine     *club.Engine
	report     club.LoadReport
	enc        club.Encryptor
	passphrase func() (string, error)

	actions map[string]*Action

	mu      sync.Mutex
	vaults  map[string]club.Vault
	page    Page
	window  stats.Window
	control string
}

// NewApp wires the app from cfg and starts the engine: the session is
// resolved and every collection loaded. An unreachable or misconfigured
// remote leaves the app in local mode. The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	clock := opts.Clock
	if clock == nil {
		clock = club.RealClock{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = club.UUIDGenerator{}
	}

	a := &App{
		cfg:     cfg,
		clock:   clock,
		logger:  opts.Logger,
		vaults:  make(map[string]club.Vault),
		page:    PageHome,
		window:  stats.Weekly,
		actions: make(map[string]*Action),

		passphrase: opts.Passphrase,
	}
	if a.logger == nil {
		sessionID := clock.Now().UTC().Format("20060102T150405Z")
		l, f, err := newLogger(cfg.LogDir, sessionID, opts.Verbose)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
		a.logger = &slogAdapter{l: l}
		a.logFile = f
	}

	timeout, err := cfg.Remote.TimeoutDuration()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.enc, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	if opts.KV != nil {
		a.kv = opts.KV
	} else {
		a.kv, err = local.NewKVFromConfig(cfg.Local, cfg.HostID, clock)
		if err != nil {
			a.kv = nil
			a.Close()
			return nil, fmt.Errorf("creating local store: %w", err)
		}
		a.ownKV = true
	}
	localBackend := local.NewBackend(a.kv, clock, a.logger)

	a.remote, err = remote.NewStoreFromConfig(ctx, cfg.Remote, ids, clock)
	if err != nil {
		a.logger.Warn("remote backend unavailable, using local storage", "type", cfg.Remote.Type, "error", err)
		a.remote = nil
	}
	var remoteBackend club.Backend
	if a.remote != nil {
		remoteBackend = a.remote
	}

	a.backend, err = persistence.NewAdapter(ctx, remoteBackend, localBackend, timeout, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating persistence adapter: %w", err)
	}

	a.engine = club.NewEngine(a.backend, localBackend, clock, ids, a.logger)
	a.report, err = a.engine.Start(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("starting session: %w", err)
	}
	for coll, ferr := range a.report.Failed {
		a.logger.Warn("collection not loaded", "collection", coll, "error", ferr)
	}

	for _, act := range []*Action{
		NewAction(ActionCheckin, "Check in", "Saving..."),
		NewAction(ActionLogin, "Log in", "Logging in..."),
		NewAction(ActionJoin, "Join", "Joining..."),
		NewAction(ActionLeave, "Leave", "Leaving..."),
		NewAction(ActionComment, "Post", "Posting..."),
		NewAction(ActionLike, "Like", "Liking..."),
		NewAction(ActionPush, "Push", "Pushing..."),
		NewAction(ActionPull, "Pull", "Pulling..."),
	} {
		a.actions[act.Name] = act
	}
	return a, nil
}

// Engine exposes the club engine.
func (a *App) Engine() *club.Engine { return a.engine }

// LoadReport returns the result of the startup load.
func (a *App) LoadReport() club.LoadReport { return a.report }

// Action returns the named UI control, or nil.
func (a *App) Action(name string) *Action { return a.actions[name] }

// Status returns the session status.
func (a *App) Status() club.SessionStatus { return a.engine.Status() }

// Navigate switches the current page and refreshes the collection it shows.
// A failed refresh keeps the previous data on screen.
func (a *App) Navigate(ctx context.Context, page Page) error {
	if _, err := ParsePage(string(page)); err != nil {
		return err
	}
	a.mu.Lock()
	a.page = page
	a.mu.Unlock()

	var coll model.Collection
	switch page {
	case PageFeed, PageLeaderboard:
		coll = model.CollectionRun
	case PageEvents:
		coll = model.CollectionEvent
	default:
		coll = model.CollectionUser
	}
	if err := a.engine.Store().Refresh(ctx, coll); err != nil {
		a.logger.Warn("refresh failed, showing cached data", "page", page, "error", err)
	}
	return nil
}

// Page returns the current page.
func (a *App) Page() Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.page
}

// SelectLeaderboardWindow switches the leaderboard window. control is the id
// of the tab that was activated and is marked active on the next render.
func (a *App) SelectLeaderboardWindow(window stats.Window, control string) error {
	if _, err := stats.ParseWindow(string(window)); err != nil {
		return err
	}
	if control == "" {
		control = render.TabControl(window)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = window
	a.control = control
	return nil
}

// SubmitCheckin records a run for the current user.
func (a *App) SubmitCheckin(ctx context.Context, form club.CheckinForm) (model.Run, error) {
	var run model.Run
	err := a.actions[ActionCheckin].Run(func() error {
		var err error
		run, err = a.engine.Checkin(ctx, form)
		return err
	})
	return run, err
}

// Login switches the session to the named user.
func (a *App) Login(ctx context.Context, displayName string) (model.User, error) {
	var u model.User
	err := a.actions[ActionLogin].Run(func() error {
		var err error
		u, err = a.engine.Login(ctx, displayName)
		return err
	})
	return u, err
}

// Logout ends the session and forgets the stored identity.
func (a *App) Logout() error {
	return a.engine.Logout()
}

// JoinEvent adds the current user to an event.
func (a *App) JoinEvent(ctx context.Context, eventID string) (model.Event, error) {
	var ev model.Event
	err := a.actions[ActionJoin].Run(func() error {
		var err error
		ev, err = a.engine.Join(ctx, eventID)
		return err
	})
	return ev, err
}

// LeaveEvent removes the current user from an event.
func (a *App) LeaveEvent(ctx context.Context, eventID string) (model.Event, error) {
	var ev model.Event
	err := a.actions[ActionLeave].Run(func() error {
		var err error
		ev, err = a.engine.Leave(ctx, eventID)
		return err
	})
	return ev, err
}

// Like toggles the like state of a run.
func (a *App) Like(ctx context.Context, runID string) (bool, error) {
	var liked bool
	err := a.actions[ActionLike].Run(func() error {
		var err error
		liked, err = a.engine.ToggleLike(ctx, runID)
		return err
	})
	return liked, err
}

// Comment posts a comment on a run.
func (a *App) Comment(ctx context.Context, runID, text string) (model.Comment, error) {
	var c model.Comment
	err := a.actions[ActionComment].Run(func() error {
		var err error
		c, err = a.engine.Comment(ctx, runID, text)
		return err
	})
	return c, err
}

// Feed returns the activity feed view.
func (a *App) Feed() []render.RunCard {
	return render.Feed(a.engine.State(), a.engine.Likes())
}

// Leaderboard ranks every stored run inside the selected window. If the
// backend query fails the loaded page is ranked instead.
func (a *App) Leaderboard(ctx context.Context) render.LeaderboardView {
	a.mu.Lock()
	window, control := a.window, a.control
	a.mu.Unlock()

	state := a.engine.State()
	runs, err := a.engine.LeaderboardRuns(ctx, window)
	if err != nil {
		a.logger.Warn("leaderboard query failed, ranking loaded runs", "window", window, "error", err)
		runs = state.Runs
	}
	return render.Leaderboard(state, runs, window, control, a.clock.Now())
}

// Events returns the events view for the current user.
func (a *App) Events() []render.EventCard {
	var userID string
	if u := a.engine.Status().User; u != nil {
		userID = u.ID
	}
	return render.Events(a.engine.State(), userID)
}

// Home returns the club totals.
func (a *App) Home() render.HomeView {
	return render.Home(a.engine.State())
}

// Render writes the current page to w, headed by the session status.
func (a *App) Render(ctx context.Context, w io.Writer) {
	render.WriteStatus(w, a.Status())
	switch a.Page() {
	case PageFeed:
		render.WriteFeed(w, a.Feed())
	case PageLeaderboard:
		render.WriteLeaderboard(w, a.Leaderboard(ctx))
	case PageEvents:
		render.WriteEvents(w, a.Events())
	default:
		render.WriteHome(w, a.Home())
	}
}

// SnapshotName is the vault key of a host's local-store snapshot.
func SnapshotName(hostID string) string {
	return "runclub-" + hostID + ".json"
}

// PushSnapshot exports the local store to the named vault, or to every
// configured vault when name is empty. It returns the snapshot version.
func (a *App) PushSnapshot(ctx context.Context, name string) (int64, error) {
	var version int64
	err := a.actions[ActionPush].Run(func() error {
		targets := a.cfg.Vaults
		if name != "" {
			vc := a.cfg.Vault(name)
			if vc == nil {
				return fmt.Errorf("no vault named %q", name)
			}
			targets = []config.VaultConfig{*vc}
		}
		if len(targets) == 0 {
			return fmt.Errorf("no vaults configured")
		}

		var buf bytes.Buffer
		now := a.clock.Now()
		if err := local.Export(a.kv, &buf, now); err != nil {
			return fmt.Errorf("exporting local store: %w", err)
		}
		version = now.UnixMilli()
		data := buf.Bytes()
		if a.enc != nil {
			if !a.enc.IsConfigured() {
				return fmt.Errorf("encryption keys not found, run config init with --encrypt")
			}
			var sealed bytes.Buffer
			if err := a.enc.Encrypt(&buf, &sealed); err != nil {
				return fmt.Errorf("encrypting snapshot: %w", err)
			}
			data = sealed.Bytes()
		}

		for _, vc := range targets {
			v, err := a.vault(ctx, vc)
			if err != nil {
				return err
			}
			if err := v.Put(ctx, SnapshotName(a.cfg.HostID), bytes.NewReader(data), int64(len(data)), version); err != nil {
				return fmt.Errorf("uploading snapshot to %s: %w", v.Name(), err)
			}
			a.logger.Info("snapshot pushed", "vault", v.Name(), "version", version, "bytes", len(data))
		}
		return nil
	})
	return version, err
}

// PullSnapshot replaces the local store with the snapshot of hostID (this
// host when empty) from the named vault, or the first vault when name is
// empty, then reloads every collection.
func (a *App) PullSnapshot(ctx context.Context, name, hostID string) (int64, error) {
	var version int64
	err := a.actions[ActionPull].Run(func() error {
		vc := a.cfg.Vault(name)
		if vc == nil {
			if name == "" {
				return fmt.Errorf("no vaults configured")
			}
			return fmt.Errorf("no vault named %q", name)
		}
		if hostID == "" {
			hostID = a.cfg.HostID
		}
		v, err := a.vault(ctx, *vc)
		if err != nil {
			return err
		}

		key := SnapshotName(hostID)
		version, err = v.Version(ctx, key)
		if err != nil {
			return fmt.Errorf("checking snapshot version: %w", err)
		}
		if version == 0 {
			return fmt.Errorf("no snapshot for host %s in %s: %w", hostID, v.Name(), club.ErrNotFound)
		}

		var buf bytes.Buffer
		if err := v.Get(ctx, key, &buf); err != nil {
			return err
		}
		var snapshot io.Reader = &buf
		if a.enc != nil {
			if snapshot, err = a.decrypt(&buf); err != nil {
				return err
			}
		}
		if err := local.Import(a.kv, snapshot); err != nil {
			return fmt.Errorf("restoring local store: %w", err)
		}
		a.logger.Info("snapshot pulled", "vault", v.Name(), "host", hostID, "version", version)

		if report := a.engine.Store().LoadAll(ctx); !report.OK() {
			return fmt.Errorf("snapshot restored but reload failed: %w", report.Err())
		}
		return nil
	})
	return version, err
}

func (a *App) decrypt(r io.Reader) (*bytes.Buffer, error) {
	if a.passphrase == nil {
		return nil, fmt.Errorf("snapshot is encrypted and no passphrase is available")
	}
	pass, err := a.passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := a.enc.Unlock(pass)
	if err != nil {
		return nil, err
	}
	var plain bytes.Buffer
	if err := dc.Decrypt(r, &plain); err != nil {
		return nil, fmt.Errorf("decrypting snapshot: %w", err)
	}
	return &plain, nil
}

// vault returns the vault for vc, creating and validating it on first use.
func (a *App) vault(ctx context.Context, vc config.VaultConfig) (club.Vault, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.vaults[vc.Name]; ok {
		return v, nil
	}
	v, err := vault.NewVaultFromConfig(ctx, vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault %s: %w", vc.Name, err)
	}
	if err := v.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("vault %s: %w", vc.Name, err)
	}
	a.vaults[vc.Name] = v
	return v, nil
}

// Close releases the local store, the remote connection and the log file.
func (a *App) Close() error {
	var errs []error
	if a.kv != nil && a.ownKV {
		if err := a.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing local store: %w", err))
		}
	}
	if a.remote != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.remote.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing remote store: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
