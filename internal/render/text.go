package render

import (
	"fmt"
	"io"
	"strings"

	"runclub/internal/club"
)

// WriteFeed prints run cards, each followed by its comments.
func WriteFeed(w io.Writer, cards []RunCard) {
	if len(cards) == 0 {
		fmt.Fprintln(w, "No runs yet.")
		return
	}
	for _, c := range cards {
		like := " "
		if c.Liked {
			like = "♥"
		}
		fmt.Fprintf(w, "%s [%s] %-15s  %s  %s  %s  %s\n", like, c.RunID, c.UserName, c.Date, c.Distance, c.Duration, c.Pace)
		if c.Feeling != "" {
			fmt.Fprintf(w, "    %s\n", c.Feeling)
		}
		for _, cm := range c.Comments {
			fmt.Fprintf(w, "    > %s: %s\n", cm.Author, cm.Text)
		}
	}
}

// WriteLeaderboard prints the tabs and the ranked rows.
func WriteLeaderboard(w io.Writer, view LeaderboardView) {
	tabs := make([]string, 0, len(view.Tabs))
	for _, t := range view.Tabs {
		if t.Active {
			tabs = append(tabs, "["+string(t.Window)+"]")
		} else {
			tabs = append(tabs, string(t.Window))
		}
	}
	fmt.Fprintln(w, strings.Join(tabs, "  "))
	if len(view.Rows) == 0 {
		fmt.Fprintln(w, "No runs in this period.")
		return
	}
	for _, r := range view.Rows {
		fmt.Fprintf(w, "#%-2d  %-15s  %3d runs  %s\n", r.Rank, r.Name, r.Runs, r.Distance)
	}
}

// WriteEvents prints each event with its capacity, roster and button state.
func WriteEvents(w io.Writer, cards []EventCard) {
	if len(cards) == 0 {
		fmt.Fprintln(w, "No events scheduled.")
		return
	}
	for _, e := range cards {
		fmt.Fprintf(w, "[%s] %s  (%s)\n", e.ID, e.Title, e.Button)
		fmt.Fprintf(w, "    %s %s @ %s  %s\n", e.Day, e.Time, e.Location, e.Capacity)
		if e.Description != "" {
			fmt.Fprintf(w, "    %s\n", e.Description)
		}
		if len(e.Roster) > 0 {
			fmt.Fprintf(w, "    going: %s\n", strings.Join(e.Roster, ", "))
		}
	}
}

// WriteHome prints the club totals.
func WriteHome(w io.Writer, h HomeView) {
	fmt.Fprintf(w, "Members:  %d\n", h.Members)
	fmt.Fprintf(w, "Distance: %skm\n", h.Distance)
	fmt.Fprintf(w, "Runs:     %d\n", h.Runs)
}

// WriteStatus prints the session indicator line.
func WriteStatus(w io.Writer, st club.SessionStatus) {
	if st.User == nil {
		fmt.Fprintf(w, "(%s)\n", st.Indicator())
		return
	}
	fmt.Fprintf(w, "%s [%s] (%s)\n", st.User.DisplayName, st.User.ID, st.Indicator())
}
