package app

import (
	"sync"
	"sync/atomic"

	"runclub/internal/club"
)

// Action is a UI control that triggers a write. While a run is in flight
// the control shows its busy label and further runs are rejected with
// club.ErrBusy instead of being queued.
type Action struct {
	Name      string
	Label     string
	BusyLabel string

	running atomic.Bool

	mu      sync.Mutex
	current string
	status  string // "success" or "error" after the last run
}

func NewAction(name, label, busyLabel string) *Action {
	return &Action{Name: name, Label: label, BusyLabel: busyLabel, current: label}
}

// Run calls fn unless another run is in flight. The label and enabled state
// are restored when fn returns, whatever its result.
func (a *Action) Run(fn func() error) (err error) {
	if !a.running.CompareAndSwap(false, true) {
		return club.ErrBusy
	}
	a.setLabel(a.BusyLabel)
	defer func() {
		a.mu.Lock()
		a.current = a.Label
		a.status = "success"
		if err != nil {
			a.status = "error"
		}
		a.mu.Unlock()
		a.running.Store(false)
	}()
	return fn()
}

// State returns the label to display and whether the control is enabled.
func (a *Action) State() (label string, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, !a.running.Load()
}

// Status reports the outcome of the last completed run, or "" if none.
func (a *Action) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Action) setLabel(label string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = label
}
