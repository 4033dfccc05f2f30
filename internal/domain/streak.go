package domain

import (
	"sort"
	"time"
)

// StreakLocation is the single canonical timezone used for every streak
// calendar-date conversion. Mixing offsets across one computation would make
// streaks depend on where the server runs.
var StreakLocation = time.UTC

// StreakLookback bounds how far back post history is considered.
const StreakLookback = 365 * 24 * time.Hour

// StreakInfo is a user's derived posting-streak state. LastActiveDate is a
// calendar date in "2006-01-02" form, empty when the user has never posted.
type StreakInfo struct {
	CurrentStreak  int    `json:"currentStreak"`
	LastActiveDate string `json:"lastActiveDate,omitempty"`
}

const dateLayout = "2006-01-02"

// Streak computes the consecutive-day posting streak from a user's post
// timestamps. Idempotent: duplicate posts on an already-counted date change
// nothing. A streak only counts from today, or from yesterday exactly once
// as the seed of the walk.
func Streak(postTimes []time.Time, now time.Time) StreakInfo {
	cutoff := now.Add(-StreakLookback)
	seen := make(map[string]struct{})
	for _, t := range postTimes {
		if t.Before(cutoff) || t.After(now) {
			continue
		}
		seen[t.In(StreakLocation).Format(dateLayout)] = struct{}{}
	}

	if len(seen) == 0 {
		return StreakInfo{}
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	info := StreakInfo{LastActiveDate: dates[0]}

	today := now.In(StreakLocation)
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, StreakLocation)
	yesterday := today.AddDate(0, 0, -1)

	// Seed the walk at today, or at yesterday when today has no post yet.
	var expected time.Time
	switch dates[0] {
	case today.Format(dateLayout):
		expected = today
	case yesterday.Format(dateLayout):
		expected = yesterday
	default:
		return info
	}

	for _, d := range dates {
		if d != expected.Format(dateLayout) {
			break
		}
		info.CurrentStreak++
		expected = expected.AddDate(0, 0, -1)
	}

	return info
}
