package domain

import (
	"fmt"
	"time"
)

// Expiry policy constants. One authority, queried by category; callers never
// hard-code lifetimes.
const (
	// GracePeriod is how long a pulse keeps rendering, visually fading,
	// after its nominal expiry.
	GracePeriod = time.Hour

	// ExpiringSoonThreshold marks a pulse as close to expiry this long
	// before its effective expiry.
	ExpiringSoonThreshold = 30 * time.Minute

	// FetchWindow is the coarse server-side pre-filter: only pulses created
	// within this trailing window are fetch candidates at all.
	FetchWindow = 7 * 24 * time.Hour
)

// Lifetime returns the visible lifetime for a category.
func Lifetime(c Category) time.Duration {
	switch c {
	case CategoryTraffic:
		return 2 * time.Hour
	case CategoryWeather:
		return 4 * time.Hour
	default:
		// Events and General both carry the full-day lifetime.
		return 24 * time.Hour
	}
}

// VisibilityState is the computed render state of a pulse at an instant.
type VisibilityState string

const (
	StateActive       VisibilityState = "active"
	StateExpiringSoon VisibilityState = "expiring_soon"
	StateFading       VisibilityState = "fading"
	StateExpired      VisibilityState = "expired"
)

// EffectiveExpiry returns the explicit expiry when set, otherwise creation
// time plus the category lifetime.
func EffectiveExpiry(p *Pulse) time.Time {
	if p.ExpiresAt != nil {
		return *p.ExpiresAt
	}
	return p.CreatedAt.Add(Lifetime(p.Tag))
}

// Visibility computes the render state of a pulse at the given instant.
// Expired pulses must not render.
func Visibility(p *Pulse, now time.Time) VisibilityState {
	expiry := EffectiveExpiry(p)

	switch {
	case now.After(expiry.Add(GracePeriod)):
		return StateExpired
	case now.After(expiry):
		return StateFading
	case expiry.Sub(now) < ExpiringSoonThreshold:
		return StateExpiringSoon
	default:
		return StateActive
	}
}

// TimeRemaining renders a human-readable duration until effective expiry.
// Returns the empty string once the pulse is past expiry.
func TimeRemaining(p *Pulse, now time.Time) string {
	left := EffectiveExpiry(p).Sub(now)
	if left <= 0 {
		return ""
	}
	if left < time.Minute {
		return "less than a minute left"
	}
	hours := int(left / time.Hour)
	minutes := int(left%time.Hour) / int(time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%dm left", minutes)
	}
	if minutes == 0 {
		return fmt.Sprintf("%dh left", hours)
	}
	return fmt.Sprintf("%dh %dm left", hours, minutes)
}

// FetchWindowBounds returns the coarse fetch-candidate window at the given
// instant: the trailing seven days up to the start of "tomorrow" in loc.
// This is distinct from fine-grained expiry; a pulse inside the window can
// still be expired by category policy.
func FetchWindowBounds(now time.Time, loc *time.Location) (from, until time.Time) {
	local := now.In(loc)
	startOfTomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return now.Add(-FetchWindow), startOfTomorrow
}

// Partition splits pulses into those that should still render (active,
// expiring soon or fading) and those that are expired and must be hidden.
func Partition(pulses []Pulse, now time.Time) (visible, hidden []Pulse) {
	for _, p := range pulses {
		if Visibility(&p, now) == StateExpired {
			hidden = append(hidden, p)
		} else {
			visible = append(visible, p)
		}
	}
	return visible, hidden
}

// Active returns only the pulses that are not past their effective expiry,
// the set mood aggregation runs over.
func Active(pulses []Pulse, now time.Time) []Pulse {
	var active []Pulse
	for _, p := range pulses {
		switch Visibility(&p, now) {
		case StateActive, StateExpiringSoon:
			active = append(active, p)
		}
	}
	return active
}

// NextTransition returns the earliest upcoming visibility boundary across
// the given pulses: an expiring-soon threshold, an effective expiry, or the
// end of a grace period. Drives the single re-armed recompute timer per
// city.
func NextTransition(pulses []Pulse, now time.Time) (time.Time, bool) {
	var next time.Time
	consider := func(t time.Time) {
		if t.After(now) && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}

	for _, p := range pulses {
		expiry := EffectiveExpiry(&p)
		consider(expiry.Add(-ExpiringSoonThreshold))
		consider(expiry)
		consider(expiry.Add(GracePeriod))
	}

	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
