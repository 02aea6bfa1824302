package app

import (
	"errors"
	"testing"

	"runclub/internal/club"
)

func TestNewAction(t *testing.T) {
	a := NewAction("checkin", "Check in", "Saving...")

	label, enabled := a.State()
	if label != "Check in" || !enabled {
		t.Errorf("State() = %q, %v; want %q, true", label, enabled, "Check in")
	}
	if a.Status() != "" {
		t.Errorf("Status() = %q, want empty before first run", a.Status())
	}
}

func TestAction_RejectsOverlappingRuns(t *testing.T) {
	a := NewAction("checkin", "Check in", "Saving...")
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- a.Run(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	label, enabled := a.State()
	if label != "Saving..." || enabled {
		t.Errorf("State() during run = %q, %v; want %q, false", label, enabled, "Saving...")
	}

	calls := 0
	err := a.Run(func() error { calls++; return nil })
	if !errors.Is(err, club.ErrBusy) {
		t.Errorf("second Run() error = %v, want ErrBusy", err)
	}
	if calls != 0 {
		t.Error("second Run() executed its function")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	label, enabled = a.State()
	if label != "Check in" || !enabled {
		t.Errorf("State() after run = %q, %v; want %q, true", label, enabled, "Check in")
	}
	if a.Status() != "success" {
		t.Errorf("Status() = %q, want success", a.Status())
	}
}

func TestAction_RestoresAfterError(t *testing.T) {
	a := NewAction("join", "Join", "Joining...")
	boom := errors.New("boom")

	if err := a.Run(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}

	label, enabled := a.State()
	if label != "Join" || !enabled {
		t.Errorf("State() = %q, %v; want %q, true", label, enabled, "Join")
	}
	if a.Status() != "error" {
		t.Errorf("Status() = %q, want error", a.Status())
	}

	if err := a.Run(func() error { return nil }); err != nil {
		t.Errorf("Run() after error = %v", err)
	}
}
