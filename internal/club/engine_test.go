package club_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"runclub/internal/club"
	"runclub/internal/local"
	"runclub/internal/model"
	"runclub/internal/persistence"
	"runclub/internal/remote"
	"runclub/internal/stats"
	"runclub/internal/testutil"
)

var generatedName = regexp.MustCompile(`^runner.{4}$`)

type harness struct {
	t       *testing.T
	clock   *testutil.StubClock
	store   *remote.MemoryStore
	remote  *testutil.FlakyBackend
	kv      *local.MemoryKV
	local   *local.Backend
	adapter *persistence.Adapter
	engine  *club.Engine
}

// newHarness builds an engine over a flaky in-memory remote. Pass
// withRemote=false for a local-only engine.
func newHarness(t *testing.T, withRemote bool) *harness {
	t.Helper()
	clock := testutil.FixedClock()
	h := &harness{
		t:     t,
		clock: clock,
		store: remote.NewMemoryStore(testutil.NewPrefixedIDGenerator("64f1c2a9e3b1d7"), clock),
		kv:    local.NewMemoryKV(0),
	}
	h.remote = testutil.NewFlakyBackend(h.store)
	h.local = local.NewBackend(h.kv, clock, club.NewNopLogger())
	h.build(withRemote)
	return h
}

// build (re)creates adapter and engine over the same storage, simulating a
// process restart.
func (h *harness) build(withRemote bool) {
	h.t.Helper()
	var rb club.Backend
	if withRemote {
		rb = h.remote
	}
	a, err := persistence.NewAdapter(context.Background(), rb, h.local, time.Second, club.NewNopLogger())
	if err != nil {
		h.t.Fatalf("NewAdapter() error = %v", err)
	}
	h.adapter = a
	h.engine = club.NewEngine(a, h.local, h.clock, testutil.NewStubIDGenerator(), club.NewNopLogger())
}

func (h *harness) start() club.LoadReport {
	h.t.Helper()
	report, err := h.engine.Start(context.Background())
	if err != nil {
		h.t.Fatalf("Start() error = %v", err)
	}
	return report
}

func (h *harness) checkin(distance, duration string) model.Run {
	h.t.Helper()
	run, err := h.engine.Checkin(context.Background(), club.CheckinForm{
		Date:     "2024-01-15",
		Distance: distance,
		Duration: duration,
		Feeling:  "good",
	})
	if err != nil {
		h.t.Fatalf("Checkin() error = %v", err)
	}
	return run
}

func (h *harness) currentUser() model.User {
	h.t.Helper()
	st := h.engine.Status()
	if st.User == nil {
		h.t.Fatal("no current user")
	}
	u := h.engine.State().User(st.User.ID)
	if u == nil {
		h.t.Fatalf("user %s not in state", st.User.ID)
	}
	return *u
}

func TestStart_RemoteAnonymousIdentity(t *testing.T) {
	h := newHarness(t, true)
	report := h.start()
	if !report.OK() {
		t.Fatalf("LoadAll failures: %v", report.Err())
	}

	st := h.engine.Status()
	if st.State != club.AuthenticatedRemote {
		t.Fatalf("State = %s, want authenticated-remote", st.State)
	}
	if st.LocalOnly {
		t.Error("LocalOnly = true, want false")
	}
	want := club.NamePrefix + model.ShortID(st.User.ID)
	if st.User.DisplayName != want {
		t.Errorf("DisplayName = %q, want %q", st.User.DisplayName, want)
	}
	if !st.User.Anonymous {
		t.Error("Anonymous = false, want true")
	}

	// The name is saved, not just held in memory.
	if got := h.currentUser().DisplayName; got != want {
		t.Errorf("stored DisplayName = %q, want %q", got, want)
	}

	// A restart resolves the same user from the stored pointer.
	h.build(true)
	h.start()
	if got := h.engine.Status().User.ID; got != st.User.ID {
		t.Errorf("user after restart = %q, want %q", got, st.User.ID)
	}
	if n, _ := h.store.Count(context.Background(), model.CollectionUser); n != 1 {
		t.Errorf("remote user count = %d, want 1", n)
	}
}

func TestStart_UnreachableRemoteFallsBackToLocal(t *testing.T) {
	h := newHarness(t, false)
	h.remote.FailOn(testutil.OpAll, club.ErrBackendUnavailable)
	h.build(true)
	h.start()

	st := h.engine.Status()
	if st.State != club.AuthenticatedLocal {
		t.Fatalf("State = %s, want authenticated-local", st.State)
	}
	if !st.LocalOnly {
		t.Error("LocalOnly = false, want true")
	}
	if !generatedName.MatchString(st.User.DisplayName) {
		t.Errorf("DisplayName = %q, want runner + 4 chars", st.User.DisplayName)
	}
	if st.User.ID != "1705314600000" {
		t.Errorf("ID = %q, want unix millis 1705314600000", st.User.ID)
	}

	h.checkin("5", "25")

	ctx := context.Background()
	if n, _ := h.local.Count(ctx, model.CollectionRun); n != 1 {
		t.Errorf("local run count = %d, want 1", n)
	}
	if n, _ := h.store.Count(ctx, model.CollectionRun); n != 0 {
		t.Errorf("remote run count = %d, want 0", n)
	}
	if got := h.remote.Calls(testutil.OpCreate); got != 0 {
		t.Errorf("remote create calls = %d, want 0", got)
	}
}

func TestStart_RemoteFailsDuringLogin(t *testing.T) {
	h := newHarness(t, true)
	h.remote.FailOn(testutil.OpCreate, club.ErrBackendUnavailable)
	h.start()

	st := h.engine.Status()
	if st.State != club.AuthenticatedLocal {
		t.Fatalf("State = %s, want authenticated-local", st.State)
	}
	if h.engine.Mode() != club.ModeLocal {
		t.Errorf("Mode() = %s, want local", h.engine.Mode())
	}

	// No promotion back to remote once it recovers.
	h.remote.Heal()
	h.checkin("3", "18")
	if n, _ := h.store.Count(context.Background(), model.CollectionRun); n != 0 {
		t.Errorf("remote run count = %d, want 0", n)
	}
}

func TestStart_LocalIdentityPersists(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	first := h.engine.Status().User

	h.build(false)
	h.start()
	if got := h.engine.Status().User; got.ID != first.ID || got.DisplayName != first.DisplayName {
		t.Errorf("user after restart = %+v, want %+v", got, first)
	}
	if n, _ := h.local.Count(context.Background(), model.CollectionUser); n != 1 {
		t.Errorf("local user count = %d, want 1", n)
	}
}

func TestStart_SeedsDefaultEventsOnce(t *testing.T) {
	h := newHarness(t, true)
	h.start()

	events := h.engine.State().Events
	if len(events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(events))
	}
	if events[0].Title != "Weekend long run" || events[0].MaxParticipants != 20 {
		t.Errorf("Events[0] = %+v", events[0])
	}
	if events[1].Title != "Interval training" || events[1].MaxParticipants != 15 {
		t.Errorf("Events[1] = %+v", events[1])
	}

	h.build(true)
	h.start()
	if n, _ := h.store.Count(context.Background(), model.CollectionEvent); n != 2 {
		t.Errorf("remote event count after restart = %d, want 2", n)
	}
}

func TestCheckin_FiveKmInTwentyFiveMinutes(t *testing.T) {
	h := newHarness(t, true)
	h.start()

	run := h.checkin("5", "25")
	if got := stats.FormatPace(stats.RunPace(run)); got != "5.00/km" {
		t.Errorf("pace = %q, want 5.00/km", got)
	}

	u := h.currentUser()
	if u.TotalDistance != 5 || u.TotalRuns != 1 {
		t.Errorf("totals = %v km / %d runs, want 5 / 1", u.TotalDistance, u.TotalRuns)
	}
	if !u.LastActivityAt.Equal(h.clock.Now()) {
		t.Errorf("LastActivityAt = %v, want %v", u.LastActivityAt, h.clock.Now())
	}

	state := h.engine.State()
	if len(state.Runs) != 1 || state.Runs[0].ID != run.ID {
		t.Fatalf("Runs = %+v, want the new run", state.Runs)
	}
	if state.Runs[0].UserName != u.DisplayName {
		t.Errorf("UserName = %q, want %q", state.Runs[0].UserName, u.DisplayName)
	}
}

func TestCheckin_TotalsMatchRuns(t *testing.T) {
	for _, withRemote := range []bool{true, false} {
		name := "local"
		if withRemote {
			name = "remote"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, withRemote)
			h.start()

			distances := []string{"5", "10", "3.5", "21.1"}
			want := 0.0
			for i, d := range distances {
				h.clock.Advance(time.Hour)
				run := h.checkin(d, "30")
				want += run.Distance

				u := h.currentUser()
				if u.TotalRuns != i+1 {
					t.Errorf("after %d checkins TotalRuns = %d", i+1, u.TotalRuns)
				}
				if diff := u.TotalDistance - want; diff > 1e-9 || diff < -1e-9 {
					t.Errorf("after %d checkins TotalDistance = %v, want %v", i+1, u.TotalDistance, want)
				}
			}
		})
	}
}

func TestCheckin_Validation(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	before := h.remote.Calls(testutil.OpCreate)

	tests := []struct {
		name  string
		form  club.CheckinForm
		field string
	}{
		{"missing date", club.CheckinForm{Distance: "5", Duration: "25"}, "date"},
		{"bad date", club.CheckinForm{Date: "15/01/2024", Distance: "5", Duration: "25"}, "date"},
		{"zero distance", club.CheckinForm{Date: "2024-01-15", Distance: "0", Duration: "25"}, "distance"},
		{"negative duration", club.CheckinForm{Date: "2024-01-15", Distance: "5", Duration: "-1"}, "duration"},
		{"non-numeric distance", club.CheckinForm{Date: "2024-01-15", Distance: "five", Duration: "25"}, "distance"},
		{"missing duration", club.CheckinForm{Date: "2024-01-15", Distance: "5"}, "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Checkin(context.Background(), tt.form)
			if !errors.Is(err, club.ErrValidation) {
				t.Fatalf("Checkin() error = %v, want ErrValidation", err)
			}
			var ve *club.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("ValidationError field = %v, want %q", ve, tt.field)
			}
		})
	}

	if got := h.remote.Calls(testutil.OpCreate); got != before {
		t.Errorf("backend create calls = %d, want %d", got, before)
	}
}

func TestCheckin_FutureDateAllowed(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	_, err := h.engine.Checkin(context.Background(), club.CheckinForm{Date: "2030-06-01", Distance: "5", Duration: "25"})
	if err != nil {
		t.Errorf("Checkin() with future date error = %v", err)
	}
}

func TestCheckin_WriteFailureRollsBack(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	h.checkin("5", "25")

	h.remote.FailOn(testutil.OpCreate, club.ErrBackendUnavailable)
	_, err := h.engine.Checkin(context.Background(), club.CheckinForm{Date: "2024-01-15", Distance: "8", Duration: "40"})
	if !errors.Is(err, club.ErrBackendUnavailable) {
		t.Fatalf("Checkin() error = %v, want ErrBackendUnavailable", err)
	}
	if runs := h.engine.State().Runs; len(runs) != 1 {
		t.Errorf("len(Runs) = %d, want 1 after rollback", len(runs))
	}
	if h.engine.Mode() != club.ModeRemote {
		t.Error("write failure after startup changed the mode")
	}
	if u := h.currentUser(); u.TotalRuns != 1 {
		t.Errorf("TotalRuns = %d, want 1", u.TotalRuns)
	}
}

func TestCheckin_TotalsFailureKeepsRunAndHeals(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	h.checkin("5", "25")

	h.remote.FailOn(testutil.OpUpdate, club.ErrBackendUnavailable)
	run, err := h.engine.Checkin(context.Background(), club.CheckinForm{Date: "2024-01-15", Distance: "8", Duration: "40"})
	if !errors.Is(err, club.ErrTotalsStale) {
		t.Fatalf("Checkin() error = %v, want ErrTotalsStale", err)
	}
	if !errors.Is(err, club.ErrBackendUnavailable) {
		t.Errorf("Checkin() error = %v, want the cause wrapped", err)
	}
	if run.ID == "" {
		t.Fatal("Checkin() returned no run although it was saved")
	}
	if runs := h.engine.State().Runs; len(runs) != 2 {
		t.Errorf("len(Runs) = %d, want 2", len(runs))
	}
	if u := h.currentUser(); u.TotalRuns != 1 {
		t.Errorf("TotalRuns = %d, want the stale 1 before restart", u.TotalRuns)
	}

	h.remote.Heal()
	h.build(true)
	h.start()
	u := h.currentUser()
	if u.TotalRuns != 2 || u.TotalDistance != 13 {
		t.Errorf("after restart totals = %d runs, %v km; want 2, 13", u.TotalRuns, u.TotalDistance)
	}
}

func TestStart_ConsistentTotalsNotRewritten(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	h.checkin("5", "25")

	before := h.remote.Calls(testutil.OpUpdate)
	h.build(true)
	h.start()
	if got := h.remote.Calls(testutil.OpUpdate); got != before {
		t.Errorf("restart issued %d updates, want none", got-before)
	}
}

func TestLeaderboardRuns_NotLimitedToPage(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	ctx := context.Background()

	if _, err := h.engine.Login(ctx, "alice"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	h.checkin("100", "600")

	h.clock.Advance(8 * 24 * time.Hour)
	if _, err := h.engine.Login(ctx, "bob"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	for i := 0; i < club.RunPageSize; i++ {
		h.clock.Advance(time.Minute)
		h.checkin("1", "6")
	}
	if got := len(h.engine.State().Runs); got != club.RunPageSize {
		t.Fatalf("len(State().Runs) = %d, want the %d page", got, club.RunPageSize)
	}

	total, err := h.engine.LeaderboardRuns(ctx, stats.Total)
	if err != nil {
		t.Fatalf("LeaderboardRuns(total) error = %v", err)
	}
	if len(total) != club.RunPageSize+1 {
		t.Errorf("len(total runs) = %d, want %d", len(total), club.RunPageSize+1)
	}
	board := stats.Leaderboard(total, stats.Total, h.engine.Now())
	if len(board) != 2 || board[0].DisplayName != "alice" || board[0].TotalDistance != 100 {
		t.Errorf("total board = %+v, want alice first with 100km", board)
	}

	weekly, err := h.engine.LeaderboardRuns(ctx, stats.Weekly)
	if err != nil {
		t.Fatalf("LeaderboardRuns(weekly) error = %v", err)
	}
	if len(weekly) != club.RunPageSize {
		t.Errorf("len(weekly runs) = %d, want %d", len(weekly), club.RunPageSize)
	}
	for _, r := range weekly {
		if r.Distance == 100 {
			t.Error("weekly runs include the run from 8 days ago")
		}
	}
}

func TestCheckin_RequiresSession(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	if err := h.engine.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if st := h.engine.Status(); st.State != club.Unresolved || st.CanWrite() {
		t.Errorf("Status() after logout = %+v", st)
	}
	_, err := h.engine.Checkin(context.Background(), club.CheckinForm{Date: "2024-01-15", Distance: "5", Duration: "25"})
	if !errors.Is(err, club.ErrNotAuthenticated) {
		t.Errorf("Checkin() error = %v, want ErrNotAuthenticated", err)
	}
	if u, _ := h.local.LoadLocalUser(); u != nil {
		t.Error("identity pointer survived logout")
	}
}

func TestLogin_FindOrCreate(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	ctx := context.Background()

	ann, err := h.engine.Login(ctx, "  Ann ")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if ann.DisplayName != "Ann" {
		t.Errorf("DisplayName = %q, want Ann", ann.DisplayName)
	}
	again, err := h.engine.Login(ctx, "Ann")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if again.ID != ann.ID {
		t.Errorf("second Login() id = %q, want %q", again.ID, ann.ID)
	}
	if _, err := h.engine.Login(ctx, " "); !errors.Is(err, club.ErrValidation) {
		t.Errorf("Login(blank) error = %v, want ErrValidation", err)
	}
	stored, _ := h.local.LoadLocalUser()
	if stored == nil || stored.ID != ann.ID {
		t.Errorf("stored identity = %+v, want %s", stored, ann.ID)
	}
}

func createEvent(t *testing.T, h *harness, max int) model.Event {
	t.Helper()
	ev, err := h.engine.Store().UpsertEvent(context.Background(), model.Event{
		Title:           "Solo tempo",
		Location:        "Riverside",
		Schedule:        "Fridays 06:30",
		MaxParticipants: max,
	})
	if err != nil {
		t.Fatalf("UpsertEvent() error = %v", err)
	}
	return ev
}

func TestJoinLeave_RoundTrip(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	ctx := context.Background()
	ev := h.engine.State().Events[0]
	me := h.engine.Status().User.ID

	joined, err := h.engine.Join(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !joined.HasParticipant(me) {
		t.Fatalf("participants = %v, want to include %s", joined.Participants, me)
	}

	// Joining twice is idempotent and does not write.
	updates := h.remote.Calls(testutil.OpUpdate)
	again, err := h.engine.Join(ctx, ev.ID)
	if err != nil {
		t.Fatalf("second Join() error = %v", err)
	}
	if len(again.Participants) != 1 {
		t.Errorf("participants = %v, want one entry", again.Participants)
	}
	if h.remote.Calls(testutil.OpUpdate) != updates {
		t.Error("second Join() wrote to the backend")
	}

	left, err := h.engine.Leave(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if len(left.Participants) != len(ev.Participants) {
		t.Errorf("participants after leave = %v, want %v", left.Participants, ev.Participants)
	}

	// Leaving when absent is a no-op.
	if _, err := h.engine.Leave(ctx, ev.ID); err != nil {
		t.Errorf("Leave() when absent error = %v", err)
	}
}

func TestJoin_CapacityOneTwoUsers(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	ctx := context.Background()
	ev := createEvent(t, h, 1)

	a, err := h.engine.Login(ctx, "A")
	if err != nil {
		t.Fatalf("Login(A) error = %v", err)
	}
	if _, err := h.engine.Join(ctx, ev.ID); err != nil {
		t.Fatalf("A Join() error = %v", err)
	}

	if _, err := h.engine.Login(ctx, "B"); err != nil {
		t.Fatalf("Login(B) error = %v", err)
	}
	_, err = h.engine.Join(ctx, ev.ID)
	if !errors.Is(err, club.ErrEventFull) {
		t.Fatalf("B Join() error = %v, want ErrEventFull", err)
	}

	got := h.engine.Store().Event(ev.ID)
	if got == nil || len(got.Participants) != 1 || got.Participants[0] != a.ID {
		t.Errorf("participants = %+v, want [%s]", got, a.ID)
	}
}

func TestJoin_WriteFailureRollsBack(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	ev := h.engine.State().Events[0]

	h.remote.FailOn(testutil.OpUpdate, club.ErrBackendUnavailable)
	if _, err := h.engine.Join(context.Background(), ev.ID); !errors.Is(err, club.ErrBackendUnavailable) {
		t.Fatalf("Join() error = %v, want ErrBackendUnavailable", err)
	}
	if got := h.engine.Store().Event(ev.ID); len(got.Participants) != 0 {
		t.Errorf("participants = %v, want empty after rollback", got.Participants)
	}
}

func TestJoin_UnknownEvent(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	if _, err := h.engine.Join(context.Background(), "nope"); !errors.Is(err, club.ErrNotFound) {
		t.Errorf("Join() error = %v, want ErrNotFound", err)
	}
}

func TestComment(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	ctx := context.Background()
	run := h.checkin("5", "25")

	if _, err := h.engine.Comment(ctx, run.ID, "   "); !errors.Is(err, club.ErrValidation) {
		t.Errorf("Comment(blank) error = %v, want ErrValidation", err)
	}
	if _, err := h.engine.Comment(ctx, "missing", "hi"); !errors.Is(err, club.ErrNotFound) {
		t.Errorf("Comment(missing run) error = %v, want ErrNotFound", err)
	}

	h.clock.Advance(time.Minute)
	first, err := h.engine.Comment(ctx, run.ID, "nice pace")
	if err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	h.clock.Advance(time.Minute)
	if _, err := h.engine.Comment(ctx, run.ID, "see you saturday"); err != nil {
		t.Fatalf("Comment() error = %v", err)
	}

	thread := h.engine.State().Comments[run.ID]
	if len(thread) != 2 {
		t.Fatalf("len(thread) = %d, want 2", len(thread))
	}
	if thread[0].ID != first.ID || thread[1].Text != "see you saturday" {
		t.Errorf("thread = %+v, want creation order", thread)
	}
}

func TestComment_WriteFailureRollsBack(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	run := h.checkin("5", "25")

	h.remote.FailOn(testutil.OpCreate, club.ErrBackendUnavailable)
	if _, err := h.engine.Comment(context.Background(), run.ID, "hi"); err == nil {
		t.Fatal("Comment() expected error")
	}
	if thread := h.engine.State().Comments[run.ID]; len(thread) != 0 {
		t.Errorf("thread = %+v, want empty after rollback", thread)
	}
}

func TestToggleLike(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	ctx := context.Background()
	run := h.checkin("5", "25")

	liked, err := h.engine.ToggleLike(ctx, run.ID)
	if err != nil || !liked {
		t.Fatalf("ToggleLike() = %v, %v; want true", liked, err)
	}
	if !h.engine.Likes()[run.ID] {
		t.Error("Likes() missing liked run")
	}
	liked, _ = h.engine.ToggleLike(ctx, run.ID)
	if liked || h.engine.Likes()[run.ID] {
		t.Error("second ToggleLike() did not unlike")
	}
	if _, err := h.engine.ToggleLike(ctx, "missing"); !errors.Is(err, club.ErrNotFound) {
		t.Errorf("ToggleLike(missing) error = %v, want ErrNotFound", err)
	}
}
