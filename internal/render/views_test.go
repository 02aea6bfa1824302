package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runclub/internal/club"
	"runclub/internal/model"
	"runclub/internal/stats"
)

var now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func sampleState() club.State {
	return club.State{
		Users: []model.User{
			{ID: "u-ann1", DisplayName: "Ann"},
			{ID: "u-bob2", DisplayName: "Bob"},
		},
		Runs: []model.Run{
			{ID: "r2", UserID: "u-bob2", UserName: "Bob", Date: "2024-01-15", Distance: 10.5, Duration: 60, CreatedAt: now.Add(-time.Hour)},
			{ID: "r1", UserID: "u-ann1", UserName: "old name", Date: "2024-01-14", Distance: 5, Duration: 25, Feeling: "easy", CreatedAt: now.Add(-24 * time.Hour)},
			{ID: "r0", UserID: "u-ann1", UserName: "Ann", Date: "2023-12-01", Distance: 21, Duration: 120, CreatedAt: now.AddDate(0, -1, -14)},
		},
		Events: []model.Event{
			{ID: "e1", Title: "Weekend long run", Location: "Century Park", Schedule: "Saturdays 07:00", Participants: []string{"u-ann1", "gone-9x7z"}, MaxParticipants: 20},
			{ID: "e2", Title: "Track", Schedule: "Wednesdays 19:30", Participants: []string{"u-bob2"}, MaxParticipants: 1},
		},
		Comments: map[string][]model.Comment{
			"r1": {{ID: "c1", RunID: "r1", UserID: "u-bob2", DisplayName: "Bob", Text: "nice"}},
		},
		MemberCount: 7,
	}
}

func TestFeed(t *testing.T) {
	cards := Feed(sampleState(), map[string]bool{"r1": true})
	require.Len(t, cards, 3)

	ann := cards[1]
	assert.Equal(t, "r1", ann.RunID)
	assert.Equal(t, "Ann", ann.UserName, "current display name wins over the stored one")
	assert.Equal(t, "5km", ann.Distance)
	assert.Equal(t, "25min", ann.Duration)
	assert.Equal(t, "5.00/km", ann.Pace)
	assert.Equal(t, "easy", ann.Feeling)
	assert.True(t, ann.Liked)
	assert.Equal(t, []CommentLine{{Author: "Bob", Text: "nice"}}, ann.Comments)

	assert.Equal(t, "10.5km", cards[0].Distance)
	assert.Equal(t, "5.71/km", cards[0].Pace)
	assert.False(t, cards[0].Liked)
	assert.Empty(t, cards[0].Comments)
}

func TestFeed_UnknownRunner(t *testing.T) {
	state := club.State{Runs: []model.Run{{ID: "r", UserID: "abcdef1234", Distance: 1, Duration: 6}}}
	cards := Feed(state, nil)
	require.Len(t, cards, 1)
	assert.Equal(t, "user1234", cards[0].UserName)
}

func TestLeaderboard(t *testing.T) {
	state := sampleState()

	weekly := Leaderboard(state, state.Runs, stats.Weekly, "", now)
	require.Len(t, weekly.Rows, 2)
	assert.Equal(t, LeaderboardRow{Rank: 1, UserID: "u-bob2", Name: "Bob", Runs: 1, Distance: "10.5km"}, weekly.Rows[0])
	assert.Equal(t, LeaderboardRow{Rank: 2, UserID: "u-ann1", Name: "Ann", Runs: 1, Distance: "5.0km"}, weekly.Rows[1])

	total := Leaderboard(state, state.Runs, stats.Total, "", now)
	require.Len(t, total.Rows, 2)
	assert.Equal(t, "u-ann1", total.Rows[0].UserID)
	assert.Equal(t, 2, total.Rows[0].Runs)
	assert.Equal(t, "26.0km", total.Rows[0].Distance)
}

func TestLeaderboard_RanksGivenRuns(t *testing.T) {
	state := sampleState()
	runs := []model.Run{
		{ID: "r9", UserID: "u-ann1", UserName: "stale", Distance: 42, CreatedAt: now.AddDate(-1, 0, 0)},
		{ID: "r8", UserID: "u-gone77", UserName: "Cy", Distance: 3, CreatedAt: now.AddDate(-1, 0, 0)},
	}

	view := Leaderboard(state, runs, stats.Total, "", now)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, LeaderboardRow{Rank: 1, UserID: "u-ann1", Name: "Ann", Runs: 1, Distance: "42.0km"}, view.Rows[0])
	assert.Equal(t, "Cy", view.Rows[1].Name, "runner missing from the loaded users keeps the run's name")
}

func TestLeaderboard_ActiveTabFollowsControl(t *testing.T) {
	tests := []struct {
		name    string
		control string
		want    stats.Window
	}{
		{"default follows window", "", stats.Monthly},
		{"explicit control", TabControl(stats.Total), stats.Total},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := sampleState()
			view := Leaderboard(state, state.Runs, stats.Monthly, tt.control, now)
			require.Len(t, view.Tabs, 3)
			var active []stats.Window
			for _, tab := range view.Tabs {
				if tab.Active {
					active = append(active, tab.Window)
				}
			}
			assert.Equal(t, []stats.Window{tt.want}, active)
		})
	}
}

func TestEvents(t *testing.T) {
	state := sampleState()

	cards := Events(state, "u-ann1")
	require.Len(t, cards, 2)
	assert.Equal(t, "2/20", cards[0].Capacity)
	assert.Equal(t, []string{"Ann", "user9x7z"}, cards[0].Roster)
	assert.Equal(t, ButtonJoined, cards[0].Button)
	assert.Equal(t, "Saturdays", cards[0].Day)
	assert.Equal(t, "07:00", cards[0].Time)
	assert.Equal(t, ButtonFull, cards[1].Button)

	asBob := Events(state, "u-bob2")
	assert.Equal(t, ButtonJoin, asBob[0].Button)
	assert.Equal(t, ButtonJoined, asBob[1].Button)

	loggedOut := Events(state, "")
	assert.Equal(t, ButtonJoin, loggedOut[0].Button)
}

func TestEvents_EmptyRoster(t *testing.T) {
	cards := Events(club.State{Events: []model.Event{{ID: "e", MaxParticipants: 3}}}, "u")
	require.Len(t, cards, 1)
	assert.Equal(t, "0/3", cards[0].Capacity)
	assert.NotNil(t, cards[0].Roster)
	assert.Empty(t, cards[0].Roster)
}

func TestHome(t *testing.T) {
	h := Home(sampleState())
	assert.Equal(t, HomeView{Members: 7, Distance: "36.5", Runs: 3}, h)
}

func TestWriters(t *testing.T) {
	state := sampleState()
	var buf bytes.Buffer

	WriteFeed(&buf, Feed(state, nil))
	assert.Contains(t, buf.String(), "5km  25min  5.00/km")
	assert.Contains(t, buf.String(), "> Bob: nice")

	buf.Reset()
	WriteLeaderboard(&buf, Leaderboard(state, state.Runs, stats.Weekly, "", now))
	assert.Contains(t, buf.String(), "[weekly]")
	assert.Contains(t, buf.String(), "10.5km")

	buf.Reset()
	WriteEvents(&buf, Events(state, "u-ann1"))
	assert.Contains(t, buf.String(), "(Joined)")
	assert.Contains(t, buf.String(), "2/20")

	buf.Reset()
	WriteHome(&buf, Home(state))
	assert.Equal(t, "Members:  7\nDistance: 36.5km\nRuns:     3\n", buf.String())

	buf.Reset()
	WriteFeed(&buf, nil)
	assert.Equal(t, "No runs yet.\n", buf.String())
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	WriteStatus(&buf, club.SessionStatus{State: club.AuthenticatedLocal, User: &model.User{ID: "1705314600000", DisplayName: "runner0000"}, LocalOnly: true})
	assert.Equal(t, "runner0000 [1705314600000] (local)\n", buf.String())

	buf.Reset()
	WriteStatus(&buf, club.SessionStatus{State: club.Resolving})
	assert.Equal(t, "(logging in)\n", buf.String())
}
