package domain

import (
	"sort"
	"time"
)

// FeedPhase is the load state of a city feed.
type FeedPhase string

const (
	FeedEmpty   FeedPhase = "empty"
	FeedLoading FeedPhase = "loading"
	FeedLoaded  FeedPhase = "loaded"
)

// FeedReconciler merges the three sources of truth for a city's on-screen
// list: the initial paginated load, push-delivered insert/delete events, and
// the optimistic local copy of the viewer's own post. Entries are
// deduplicated by id and kept sorted by creation time descending.
//
// Not safe for concurrent use; the owning view serializes access.
type FeedReconciler struct {
	phase   FeedPhase
	pulses  []Pulse
	hasMore bool
}

func NewFeedReconciler() *FeedReconciler {
	return &FeedReconciler{phase: FeedEmpty}
}

func (f *FeedReconciler) Phase() FeedPhase { return f.phase }
func (f *FeedReconciler) HasMore() bool    { return f.hasMore }

// Pulses returns a copy of the current list.
func (f *FeedReconciler) Pulses() []Pulse {
	out := make([]Pulse, len(f.pulses))
	copy(out, f.pulses)
	return out
}

// BeginLoad transitions into Loading. The previously loaded list stays in
// place so a refetch never flashes an empty feed.
func (f *FeedReconciler) BeginLoad() {
	f.phase = FeedLoading
}

// CompleteLoad replaces the list with a fresh first page.
func (f *FeedReconciler) CompleteLoad(page []Pulse, hasMore bool) {
	f.pulses = append([]Pulse(nil), page...)
	f.hasMore = hasMore
	f.phase = FeedLoaded
	f.resort()
}

// MergeOlder appends a load-more page, deduplicating against what is already
// on screen.
func (f *FeedReconciler) MergeOlder(page []Pulse, hasMore bool) {
	for _, p := range page {
		if f.indexOf(p.ID) == -1 {
			f.pulses = append(f.pulses, p)
		}
	}
	f.hasMore = hasMore
	f.resort()
}

// Insert applies a push-delivered or optimistic pulse. Duplicate ids are a
// no-op, which is what keeps an optimistic self-insert and its later push
// confirmation from producing two entries. Reports whether the list changed.
func (f *FeedReconciler) Insert(p Pulse) bool {
	if f.indexOf(p.ID) != -1 {
		return false
	}
	f.pulses = append(f.pulses, p)
	f.resort()
	return true
}

// Remove applies a push-delivered delete; no-op if already absent.
func (f *FeedReconciler) Remove(id int64) bool {
	i := f.indexOf(id)
	if i == -1 {
		return false
	}
	f.pulses = append(f.pulses[:i], f.pulses[i+1:]...)
	return true
}

// DropExpired removes pulses past their grace period. Reports whether the
// list changed.
func (f *FeedReconciler) DropExpired(now time.Time) bool {
	visible, hidden := Partition(f.pulses, now)
	if len(hidden) == 0 {
		return false
	}
	f.pulses = visible
	return true
}

// OldestCreatedAt returns the cursor for a load-more request: the creation
// time of the oldest loaded pulse.
func (f *FeedReconciler) OldestCreatedAt() (time.Time, bool) {
	if len(f.pulses) == 0 {
		return time.Time{}, false
	}
	return f.pulses[len(f.pulses)-1].CreatedAt, true
}

func (f *FeedReconciler) indexOf(id int64) int {
	for i, p := range f.pulses {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (f *FeedReconciler) resort() {
	sort.SliceStable(f.pulses, func(i, j int) bool {
		if !f.pulses[i].CreatedAt.Equal(f.pulses[j].CreatedAt) {
			return f.pulses[i].CreatedAt.After(f.pulses[j].CreatedAt)
		}
		return f.pulses[i].ID > f.pulses[j].ID
	})
}
