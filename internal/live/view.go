package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citypulse/citypulse/internal/domain"
)

// View owns all mutable state for one city scope: the reconciled feed list,
// the latest ambient sample, the derived mood, and the single re-armed
// recompute timer. Cross-city state is fully independent; a released view is
// torn down wholesale.
type View struct {
	city     string
	service  *domain.PulseService
	ambient  domain.AmbientSource
	logger   *slog.Logger
	pageSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	scope      string
	reconciler *domain.FeedReconciler
	sample     domain.AmbientSample
	sampled    bool
	seeded     bool
	mood       domain.CityMood
	timer      *time.Timer
}

// Refresh reloads the first page under a fresh scope token. The previous
// list keeps rendering while the load is in flight; any ambient result still
// carrying an older token is discarded when it lands.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.scope = uuid.NewString()
	token := v.scope
	v.sampled = false
	v.reconciler.BeginLoad()
	v.mu.Unlock()

	page, err := v.service.CityFeed(ctx, v.city, v.pageSize, nil)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if token != v.scope {
		// A newer refresh superseded this one mid-flight.
		v.mu.Unlock()
		return nil
	}
	v.reconciler.CompleteLoad(page.Pulses, page.HasMore)
	v.recomputeLocked(time.Now().UTC())
	v.mu.Unlock()

	if v.ambient != nil {
		go v.fetchAmbient(token)
	}
	return nil
}

// LoadMore fetches the page strictly older than the oldest loaded pulse.
func (v *View) LoadMore(ctx context.Context) error {
	v.mu.Lock()
	cursor, ok := v.reconciler.OldestCreatedAt()
	token := v.scope
	v.mu.Unlock()

	var before *time.Time
	if ok {
		before = &cursor
	}

	page, err := v.service.CityFeed(ctx, v.city, v.pageSize, before)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if token != v.scope {
		return nil
	}
	v.reconciler.MergeOlder(page.Pulses, page.HasMore)
	v.recomputeLocked(time.Now().UTC())
	return nil
}

// fetchAmbient runs one ambient round for the view's city. The sample is
// merged only while its token still matches the current scope; a response
// that arrives after the viewer moved on is dropped silently.
func (v *View) fetchAmbient(token string) {
	sample := v.ambient.Sample(v.ctx, token, v.city)

	v.mu.Lock()
	if token != v.scope {
		v.logger.Debug("discarding stale ambient sample", "city", v.city, "token", token)
		v.mu.Unlock()
		return
	}
	v.sample = sample
	v.sampled = true
	v.recomputeLocked(time.Now().UTC())

	empty := len(v.reconciler.Pulses()) == 0
	shouldSeed := empty && !v.seeded
	if shouldSeed {
		v.seeded = true
	}
	v.mu.Unlock()

	// All ambient fetches for this city have settled and the feed is still
	// empty: backfill it. The service re-verifies the sample's city.
	if shouldSeed {
		created, err := v.service.AutoSeed(v.ctx, v.city, sample)
		if err != nil {
			v.logger.Error("auto-seed failed", "city", v.city, "error", err)
			return
		}
		if created > 0 {
			if err := v.Refresh(v.ctx); err != nil {
				v.logger.Error("refresh after auto-seed failed", "city", v.city, "error", err)
			}
		}
	}
}

// ApplyInsert applies a push-delivered or optimistic pulse. Duplicates are
// no-ops inside the reconciler.
func (v *View) ApplyInsert(p domain.Pulse) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p.City != v.city {
		return
	}
	if v.reconciler.Insert(p) {
		v.recomputeLocked(time.Now().UTC())
	}
}

// ApplyDelete applies a push-delivered delete.
func (v *View) ApplyDelete(id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reconciler.Remove(id) {
		v.recomputeLocked(time.Now().UTC())
	}
}

// Recompute re-derives the mood from the current state. The change feed,
// the expiry timer and the periodic poll all funnel through here, so the
// result is identical regardless of which path triggered it.
func (v *View) Recompute() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recomputeLocked(time.Now().UTC())
}

func (v *View) recomputeLocked(now time.Time) {
	v.reconciler.DropExpired(now)
	pulses := v.reconciler.Pulses()

	var snapshot domain.AmbientSnapshot
	if v.sampled && v.sample.City == v.city {
		snapshot = v.sample.Snapshot()
	}

	v.mood = domain.AggregateMood(v.city, domain.Active(pulses, now), snapshot, now)
	v.rearmTimerLocked(pulses, now)
}

// rearmTimerLocked points the single recompute timer at the next visibility
// boundary. Re-armed, never accumulated: repeated triggers replace the timer
// instead of stacking a second one.
func (v *View) rearmTimerLocked(pulses []domain.Pulse, now time.Time) {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}

	next, ok := domain.NextTransition(pulses, now)
	if !ok {
		return
	}

	v.timer = time.AfterFunc(next.Sub(now), func() {
		select {
		case <-v.ctx.Done():
			return
		default:
		}
		v.Recompute()
	})
}

// Mood returns the current derived city mood.
func (v *View) Mood() domain.CityMood {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mood
}

// Feed returns the current on-screen list, its load phase, and whether
// older pulses remain.
func (v *View) Feed() ([]domain.Pulse, domain.FeedPhase, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reconciler.Pulses(), v.reconciler.Phase(), v.reconciler.HasMore()
}

// Sample returns the last settled ambient sample for the view's city.
func (v *View) Sample() (domain.AmbientSample, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sample, v.sampled
}

func (v *View) close() {
	v.cancel()
	v.mu.Lock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.mu.Unlock()
}
