package domain

import (
	"testing"
	"time"
)

func feedPulse(id int64, createdAt time.Time) Pulse {
	return Pulse{
		ID:        id,
		City:      "Springfield",
		Mood:      "😊",
		Tag:       CategoryGeneral,
		Message:   "m",
		Author:    "a",
		CreatedAt: createdAt,
	}
}

func TestFeedReconcilerPhases(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeedReconciler()

	if f.Phase() != FeedEmpty {
		t.Errorf("initial phase = %q, want empty", f.Phase())
	}

	f.BeginLoad()
	if f.Phase() != FeedLoading {
		t.Errorf("phase after BeginLoad = %q, want loading", f.Phase())
	}

	f.CompleteLoad([]Pulse{feedPulse(1, now)}, false)
	if f.Phase() != FeedLoaded {
		t.Errorf("phase after CompleteLoad = %q, want loaded", f.Phase())
	}

	// A refetch keeps the previous list on screen while loading.
	f.BeginLoad()
	if got := f.Pulses(); len(got) != 1 {
		t.Errorf("list cleared during reload: %d pulses", len(got))
	}
}

func TestFeedReconcilerDuplicateFree(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	self := feedPulse(42, now)

	// The same pulse can arrive through the optimistic insert, the initial
	// page load, and an older-page merge. Every interleaving must leave
	// exactly one entry.
	orders := [][]string{
		{"insert", "insert"},
		{"insert", "load"},
		{"load", "insert"},
		{"insert", "merge"},
		{"load", "merge", "insert"},
	}

	for _, order := range orders {
		f := NewFeedReconciler()
		f.CompleteLoad(nil, false)
		for _, step := range order {
			switch step {
			case "insert":
				f.Insert(self)
			case "load":
				f.CompleteLoad([]Pulse{self}, false)
			case "merge":
				f.MergeOlder([]Pulse{self}, false)
			}
		}
		if got := f.Pulses(); len(got) != 1 {
			t.Errorf("interleaving %v left %d entries, want 1", order, len(got))
		}
	}
}

func TestFeedReconcilerSortsByRecency(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeedReconciler()
	f.CompleteLoad([]Pulse{
		feedPulse(1, now.Add(-3*time.Minute)),
		feedPulse(2, now.Add(-1*time.Minute)),
	}, false)

	f.Insert(feedPulse(3, now))
	f.Insert(feedPulse(4, now.Add(-2*time.Minute)))

	got := f.Pulses()
	wantOrder := []int64{3, 2, 4, 1}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("position %d = pulse %d, want %d (full order %v)", i, got[i].ID, want, ids(got))
		}
	}
}

func TestFeedReconcilerRemove(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeedReconciler()
	f.CompleteLoad([]Pulse{feedPulse(1, now), feedPulse(2, now.Add(-time.Minute))}, false)

	if !f.Remove(1) {
		t.Error("Remove(1) reported no change")
	}
	if f.Remove(1) {
		t.Error("second Remove(1) reported a change")
	}
	if got := f.Pulses(); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("unexpected list after remove: %v", ids(got))
	}
}

func TestFeedReconcilerMergeOlder(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeedReconciler()
	f.CompleteLoad([]Pulse{
		feedPulse(3, now),
		feedPulse(2, now.Add(-time.Minute)),
	}, true)

	cursor, ok := f.OldestCreatedAt()
	if !ok || !cursor.Equal(now.Add(-time.Minute)) {
		t.Fatalf("OldestCreatedAt = %v, %v", cursor, ok)
	}

	// The older page overlaps pulse 2; the overlap must not duplicate.
	f.MergeOlder([]Pulse{
		feedPulse(2, now.Add(-time.Minute)),
		feedPulse(1, now.Add(-2*time.Minute)),
	}, false)

	got := f.Pulses()
	if len(got) != 3 {
		t.Fatalf("merged list has %d entries, want 3: %v", len(got), ids(got))
	}
	if f.HasMore() {
		t.Error("HasMore still true after final page")
	}
}

func TestFeedReconcilerDropExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFeedReconciler()
	expired := feedPulse(1, now.Add(-30*time.Hour))
	fresh := feedPulse(2, now.Add(-time.Hour))
	f.CompleteLoad([]Pulse{fresh, expired}, false)

	if !f.DropExpired(now) {
		t.Error("DropExpired reported no change")
	}
	if got := f.Pulses(); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("unexpected list after DropExpired: %v", ids(got))
	}
	if f.DropExpired(now) {
		t.Error("second DropExpired reported a change")
	}
}

func ids(pulses []Pulse) []int64 {
	out := make([]int64, len(pulses))
	for i, p := range pulses {
		out[i] = p.ID
	}
	return out
}
