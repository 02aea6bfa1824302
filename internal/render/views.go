// Package render derives view models from a club.State snapshot and writes
// them as plain text. It keeps no state of its own: every view is rebuilt
// from the snapshot it is given.
package render

import (
	"fmt"
	"strconv"
	"time"

	"runclub/internal/club"
	"runclub/internal/model"
	"runclub/internal/stats"
)

// UnknownUserPrefix labels roster entries whose user is not loaded.
const UnknownUserPrefix = "user"

// CommentLine is one comment under a run card.
type CommentLine struct {
	Author string
	Text   string
}

// RunCard is one entry of the activity feed.
type RunCard struct {
	RunID    string
	UserName string
	Date     string
	Distance string // "5km"
	Duration string // "25min"
	Pace     string // "5.00/km"
	Feeling  string
	PhotoRef string
	Liked    bool
	Comments []CommentLine
}

// Feed returns one card per loaded run, in store order (newest first).
func Feed(state club.State, likes map[string]bool) []RunCard {
	cards := make([]RunCard, 0, len(state.Runs))
	for _, r := range state.Runs {
		card := RunCard{
			RunID:    r.ID,
			UserName: runnerName(state, r),
			Date:     r.Date,
			Distance: formatNumber(r.Distance) + "km",
			Duration: formatNumber(r.Duration) + "min",
			Pace:     stats.FormatPace(stats.RunPace(r)),
			Feeling:  r.Feeling,
			PhotoRef: r.PhotoRef,
			Liked:    likes[r.ID],
		}
		for _, c := range state.Comments[r.ID] {
			author := c.DisplayName
			if author == "" {
				author = userLabel(state, c.UserID)
			}
			card.Comments = append(card.Comments, CommentLine{Author: author, Text: c.Text})
		}
		cards = append(cards, card)
	}
	return cards
}

// LeaderboardTab is one window selector.
type LeaderboardTab struct {
	Control string
	Window  stats.Window
	Active  bool
}

// LeaderboardRow is one ranked user.
type LeaderboardRow struct {
	Rank     int
	UserID   string
	Name     string
	Runs     int
	Distance string // "12.5km"
}

// LeaderboardView is the ranked list for one window.
type LeaderboardView struct {
	Window stats.Window
	Tabs   []LeaderboardTab
	Rows   []LeaderboardRow
}

// TabControl is the control id of the selector for w.
func TabControl(w stats.Window) string {
	return "tab-" + string(w)
}

// Leaderboard ranks runs inside window. Names come from state's users, then
// from the runs. The tab whose control id equals activeControl is marked
// active; an empty activeControl marks the tab of window itself.
func Leaderboard(state club.State, runs []model.Run, window stats.Window, activeControl string, now time.Time) LeaderboardView {
	if activeControl == "" {
		activeControl = TabControl(window)
	}
	view := LeaderboardView{Window: window}
	for _, w := range []stats.Window{stats.Weekly, stats.Monthly, stats.Total} {
		control := TabControl(w)
		view.Tabs = append(view.Tabs, LeaderboardTab{Control: control, Window: w, Active: control == activeControl})
	}
	for i, e := range stats.Leaderboard(runs, window, now) {
		name := e.DisplayName
		if u := state.User(e.UserID); u != nil && u.DisplayName != "" {
			name = u.DisplayName
		}
		if name == "" {
			name = UnknownUserPrefix + model.ShortID(e.UserID)
		}
		view.Rows = append(view.Rows, LeaderboardRow{
			Rank:     i + 1,
			UserID:   e.UserID,
			Name:     name,
			Runs:     e.TotalRuns,
			Distance: fmt.Sprintf("%.1fkm", e.TotalDistance),
		})
	}
	return view
}

// Button is the state of an event's join control for the current user.
type Button string

const (
	ButtonJoin   Button = "Join"
	ButtonJoined Button = "Joined"
	ButtonFull   Button = "Full"
)

// EventCard is one scheduled event.
type EventCard struct {
	ID          string
	Title       string
	Location    string
	Day         string
	Time        string
	Description string
	Capacity    string // "3/20"
	Roster      []string
	Button      Button
}

// Events renders every loaded event. userID may be empty when logged out.
func Events(state club.State, userID string) []EventCard {
	cards := make([]EventCard, 0, len(state.Events))
	for _, ev := range state.Events {
		day, at := model.SplitSchedule(ev.Schedule)
		card := EventCard{
			ID:          ev.ID,
			Title:       ev.Title,
			Location:    ev.Location,
			Day:         day,
			Time:        at,
			Description: ev.Description,
			Capacity:    fmt.Sprintf("%d/%d", len(ev.Participants), ev.MaxParticipants),
			Roster:      make([]string, 0, len(ev.Participants)),
			Button:      ButtonJoin,
		}
		for _, p := range ev.Participants {
			card.Roster = append(card.Roster, userLabel(state, p))
		}
		switch {
		case userID != "" && ev.HasParticipant(userID):
			card.Button = ButtonJoined
		case ev.Full():
			card.Button = ButtonFull
		}
		cards = append(cards, card)
	}
	return cards
}

// HomeView holds the three club-wide figures.
type HomeView struct {
	Members  int
	Distance string // "%.1f"
	Runs     int
}

func Home(state club.State) HomeView {
	t := stats.Totals(state.MemberCount, state.Runs)
	return HomeView{
		Members:  t.MemberCount,
		Distance: fmt.Sprintf("%.1f", t.TotalDistance),
		Runs:     t.TotalRuns,
	}
}

// runnerName prefers the user's current display name over the one stored on
// the run.
func runnerName(state club.State, r model.Run) string {
	if u := state.User(r.UserID); u != nil && u.DisplayName != "" {
		return u.DisplayName
	}
	if r.UserName != "" {
		return r.UserName
	}
	return UnknownUserPrefix + model.ShortID(r.UserID)
}

func userLabel(state club.State, id string) string {
	if u := state.User(id); u != nil && u.DisplayName != "" {
		return u.DisplayName
	}
	return UnknownUserPrefix + model.ShortID(id)
}

// formatNumber drops trailing zeros: 5 -> "5", 5.25 -> "5.25".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
