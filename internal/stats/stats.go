// Package stats computes derived figures from runs: pace, per-user totals,
// club totals and time-windowed leaderboards. Every function is pure.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"runclub/internal/model"
)

// LeaderboardSize caps the number of leaderboard rows.
const LeaderboardSize = 10

// Pace returns minutes per kilometre. Callers validate distance > 0 first;
// a non-positive distance yields 0.
func Pace(distance, duration float64) float64 {
	if distance <= 0 {
		return 0
	}
	return duration / distance
}

// RoundPace rounds a pace to two decimals.
func RoundPace(p float64) float64 {
	return math.Round(p*100) / 100
}

// FormatPace renders a pace as "5.00/km".
func FormatPace(p float64) string {
	return fmt.Sprintf("%.2f/km", RoundPace(p))
}

// RunPace is Pace for a run.
func RunPace(r model.Run) float64 {
	return Pace(r.Distance, r.Duration)
}

// Window selects the time range a leaderboard covers.
type Window string

const (
	Weekly  Window = "weekly"
	Monthly Window = "monthly"
	Total   Window = "total"
)

// ParseWindow accepts weekly, monthly or total.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case Weekly, Monthly, Total:
		return w, nil
	}
	return "", fmt.Errorf("unknown leaderboard window %q (want weekly, monthly or total)", s)
}

// Start returns the earliest createdAt included in w, or the zero time for
// Total. Monthly starts at midnight on the 1st in now's location.
func (w Window) Start(now time.Time) time.Time {
	switch w {
	case Weekly:
		return now.Add(-7 * 24 * time.Hour)
	case Monthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return time.Time{}
}

// Contains reports whether a run created at t counts toward w.
func (w Window) Contains(t, now time.Time) bool {
	if w == Total {
		return true
	}
	return !t.Before(w.Start(now)) && !t.After(now)
}

// Entry is one leaderboard row.
type Entry struct {
	UserID        string
	DisplayName   string
	TotalDistance float64
	TotalRuns     int
}

// Leaderboard aggregates runs inside the window by user, orders by distance
// descending (ties keep first-seen order) and keeps the top LeaderboardSize.
func Leaderboard(runs []model.Run, window Window, now time.Time) []Entry {
	index := make(map[string]int)
	var entries []Entry
	for _, r := range runs {
		if !window.Contains(r.CreatedAt, now) {
			continue
		}
		i, ok := index[r.UserID]
		if !ok {
			i = len(entries)
			index[r.UserID] = i
			entries = append(entries, Entry{UserID: r.UserID, DisplayName: r.UserName})
		}
		entries[i].TotalDistance += r.Distance
		entries[i].TotalRuns++
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalDistance > entries[j].TotalDistance
	})
	if len(entries) > LeaderboardSize {
		entries = entries[:LeaderboardSize]
	}
	return entries
}

// ClubTotals are the home-page figures.
type ClubTotals struct {
	MemberCount   int
	TotalDistance float64
	TotalRuns     int
}

// Totals combines the backend-wide member count with distance and run
// counts over the given (possibly page-limited) runs.
func Totals(memberCount int, runs []model.Run) ClubTotals {
	t := ClubTotals{MemberCount: memberCount}
	for _, r := range runs {
		t.TotalDistance += r.Distance
		t.TotalRuns++
	}
	return t
}

// UserTotals sums one user's runs.
func UserTotals(userID string, runs []model.Run) (distance float64, count int) {
	for _, r := range runs {
		if r.UserID != userID {
			continue
		}
		distance += r.Distance
		count++
	}
	return distance, count
}
