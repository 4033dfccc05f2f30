package domain

import (
	"testing"
	"time"
)

func TestVisibilityTrafficLifecycle(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Pulse{
		ID:        1,
		City:      "Springfield",
		Mood:      "🚗",
		Tag:       CategoryTraffic,
		CreatedAt: created,
	}

	tests := []struct {
		offset time.Duration
		want   VisibilityState
	}{
		{10 * time.Minute, StateActive},
		{time.Hour + 29*time.Minute, StateActive},
		{time.Hour + 59*time.Minute, StateExpiringSoon},
		{2*time.Hour + 1*time.Minute, StateFading},
		{2*time.Hour + 59*time.Minute, StateFading},
		{3*time.Hour + 1*time.Minute, StateExpired},
	}

	for _, tt := range tests {
		got := Visibility(p, created.Add(tt.offset))
		if got != tt.want {
			t.Errorf("Visibility at T+%v = %q, want %q", tt.offset, got, tt.want)
		}
	}
}

func TestEffectiveExpiry(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		tag  Category
		want time.Duration
	}{
		{CategoryTraffic, 2 * time.Hour},
		{CategoryWeather, 4 * time.Hour},
		{CategoryEvents, 24 * time.Hour},
		{CategoryGeneral, 24 * time.Hour},
	}

	for _, tt := range tests {
		p := &Pulse{Tag: tt.tag, CreatedAt: created}
		if got := EffectiveExpiry(p); !got.Equal(created.Add(tt.want)) {
			t.Errorf("EffectiveExpiry(%s) = %v, want created+%v", tt.tag, got, tt.want)
		}
		if !EffectiveExpiry(p).After(p.CreatedAt) {
			t.Errorf("EffectiveExpiry(%s) is not after creation", tt.tag)
		}
	}

	explicit := created.Add(30 * time.Minute)
	p := &Pulse{Tag: CategoryGeneral, CreatedAt: created, ExpiresAt: &explicit}
	if got := EffectiveExpiry(p); !got.Equal(explicit) {
		t.Errorf("explicit expiry ignored: got %v, want %v", got, explicit)
	}
}

func TestVisibilityNeverActivePastExpiry(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tag := range []Category{CategoryTraffic, CategoryWeather, CategoryEvents, CategoryGeneral} {
		p := &Pulse{Tag: tag, CreatedAt: created}
		past := EffectiveExpiry(p).Add(time.Second)
		if got := Visibility(p, past); got == StateActive || got == StateExpiringSoon {
			t.Errorf("Visibility(%s) past expiry = %q", tag, got)
		}
	}
}

func TestPartition(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := Pulse{ID: 1, Tag: CategoryGeneral, CreatedAt: now.Add(-time.Hour)}
	fading := Pulse{ID: 2, Tag: CategoryTraffic, CreatedAt: now.Add(-2*time.Hour - 30*time.Minute)}
	gone := Pulse{ID: 3, Tag: CategoryTraffic, CreatedAt: now.Add(-4 * time.Hour)}

	visible, hidden := Partition([]Pulse{fresh, fading, gone}, now)
	if len(visible) != 2 || len(hidden) != 1 {
		t.Fatalf("Partition split %d/%d, want 2/1", len(visible), len(hidden))
	}
	if hidden[0].ID != 3 {
		t.Errorf("wrong pulse hidden: %d", hidden[0].ID)
	}

	// The fading pulse renders but is not active, so aggregation skips it.
	active := Active([]Pulse{fresh, fading, gone}, now)
	if len(active) != 1 || active[0].ID != 1 {
		t.Errorf("Active = %v, want only pulse 1", active)
	}
}

func TestFetchWindowBounds(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	from, until := FetchWindowBounds(now, time.UTC)

	if !from.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Errorf("from = %v, want trailing 7 days", from)
	}
	wantUntil := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if !until.Equal(wantUntil) {
		t.Errorf("until = %v, want start of tomorrow %v", until, wantUntil)
	}
}

func TestTimeRemaining(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Pulse{Tag: CategoryWeather, CreatedAt: created}

	tests := []struct {
		offset time.Duration
		want   string
	}{
		{time.Hour, "3h left"},
		{time.Hour + 15*time.Minute, "2h 45m left"},
		{3*time.Hour + 30*time.Minute, "30m left"},
		{4*time.Hour - 20*time.Second, "less than a minute left"},
		{4*time.Hour + time.Minute, ""},
	}

	for _, tt := range tests {
		if got := TimeRemaining(p, created.Add(tt.offset)); got != tt.want {
			t.Errorf("TimeRemaining at T+%v = %q, want %q", tt.offset, got, tt.want)
		}
	}
}

func TestNextTransition(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := NextTransition(nil, now); ok {
		t.Error("NextTransition with no pulses reported a boundary")
	}

	// Traffic pulse 1h old: next boundary is its expiring-soon threshold at
	// T+1h30m, i.e. 30m from now.
	p := Pulse{ID: 1, Tag: CategoryTraffic, CreatedAt: now.Add(-time.Hour)}
	next, ok := NextTransition([]Pulse{p}, now)
	if !ok {
		t.Fatal("NextTransition reported no boundary")
	}
	if want := now.Add(30 * time.Minute); !next.Equal(want) {
		t.Errorf("next boundary = %v, want %v", next, want)
	}
}

func TestExpiredPulsesStayFetchable(t *testing.T) {
	// Expiry hides a pulse from feeds but does not age it out of the fetch
	// window: days after its explicit expiry the row is still a fetch
	// candidate, just partitioned away at read time.
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	expires := now.Add(-3 * 24 * time.Hour)
	p := Pulse{
		ID:        1,
		City:      "Springfield",
		Mood:      "🚗",
		Tag:       CategoryTraffic,
		CreatedAt: expires.Add(-time.Hour),
		ExpiresAt: &expires,
	}

	from, _ := FetchWindowBounds(now, time.UTC)
	if p.CreatedAt.Before(from) {
		t.Fatalf("pulse created %v fell outside window starting %v", p.CreatedAt, from)
	}
	if got := Visibility(&p, now); got != StateExpired {
		t.Errorf("Visibility = %q, want %q", got, StateExpired)
	}
	if visible, _ := Partition([]Pulse{p}, now); len(visible) != 0 {
		t.Errorf("expired pulse still rendered: %+v", visible)
	}
}
