package live

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/citypulse/citypulse/internal/domain"
)

type memRepo struct {
	mu     sync.Mutex
	nextID int64
	pulses map[int64]domain.Pulse
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, pulses: make(map[int64]domain.Pulse)}
}

func (r *memRepo) add(p domain.Pulse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
	}
	if p.ID >= r.nextID {
		r.nextID = p.ID + 1
	}
	r.pulses[p.ID] = p
}

func (r *memRepo) CreatePulse(_ context.Context, p *domain.Pulse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID
	r.nextID++
	r.pulses[p.ID] = *p
	return nil
}

func (r *memRepo) GetPulse(_ context.Context, id int64) (*domain.Pulse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pulses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) DeletePulse(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pulses, id)
	return nil
}

func (r *memRepo) ListCityPulses(_ context.Context, city string, limit int, before *time.Time) ([]domain.Pulse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Pulse
	for _, p := range r.pulses {
		if p.City != city {
			continue
		}
		if before != nil && !p.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, p)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[i].CreatedAt.Before(out[j].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) UserPostTimes(context.Context, string, time.Time) ([]time.Time, error) {
	return nil, nil
}

func (r *memRepo) CountUserPulses(context.Context, string) (int, error) { return 0, nil }

func (r *memRepo) DeleteExpiredPulses(context.Context, time.Time) (int64, error) { return 0, nil }

type memPrefs struct {
	mu        sync.Mutex
	completed map[string]bool
}

func newMemPrefs() *memPrefs { return &memPrefs{completed: make(map[string]bool)} }

func (m *memPrefs) OnboardingCompleted(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[userID], nil
}

func (m *memPrefs) SetOnboardingCompleted(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[userID] = true
	return nil
}

func (m *memPrefs) LastCity(context.Context, string) (*domain.CityPref, error) { return nil, nil }

func (m *memPrefs) SetLastCity(context.Context, string, domain.CityPref) error { return nil }

type staticAmbient struct {
	city string
}

func (a staticAmbient) Sample(_ context.Context, token, _ string) domain.AmbientSample {
	return domain.AmbientSample{
		Token:   token,
		City:    a.city,
		Weather: domain.WeatherSignal{Available: true, Condition: "clear", TempC: 18},
	}
}

type staticSeeder struct {
	drafts []domain.Draft
}

func (s staticSeeder) Drafts(string, domain.AmbientSample) []domain.Draft { return s.drafts }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, repo domain.PulseRepository, seeder domain.Seeder) *domain.PulseService {
	t.Helper()
	gate, err := domain.NewContentGate(domain.DefaultBannedTerms)
	if err != nil {
		t.Fatalf("NewContentGate: %v", err)
	}
	return domain.NewPulseService(repo, newMemPrefs(), gate, nil, nil, seeder, testLogger())
}

func cityPulse(id int64, city string, createdAt time.Time) domain.Pulse {
	return domain.Pulse{
		ID:        id,
		City:      city,
		Mood:      "😊",
		Tag:       domain.CategoryGeneral,
		Message:   "m",
		Author:    "a",
		CreatedAt: createdAt,
	}
}

func TestManagerAcquireLoadsView(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	now := time.Now().UTC()
	repo.add(cityPulse(1, "Springfield", now.Add(-time.Minute)))
	repo.add(cityPulse(2, "Shelbyville", now.Add(-time.Minute)))

	m := NewManager(newTestService(t, repo, nil), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	pulses, phase, _ := v.Feed()
	if phase != domain.FeedLoaded {
		t.Errorf("phase = %q, want loaded", phase)
	}
	if len(pulses) != 1 || pulses[0].City != "Springfield" {
		t.Errorf("unexpected feed: %+v", pulses)
	}

	again, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if again != v {
		t.Error("second Acquire created a new view")
	}
}

func TestViewAppliesFeedEvents(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	m := NewManager(newTestService(t, repo, nil), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	now := time.Now().UTC()
	v.ApplyInsert(cityPulse(10, "Springfield", now))
	v.ApplyInsert(cityPulse(11, "Shelbyville", now))
	v.ApplyInsert(cityPulse(10, "Springfield", now)) // duplicate push

	pulses, _, _ := v.Feed()
	if len(pulses) != 1 || pulses[0].ID != 10 {
		t.Fatalf("unexpected feed after inserts: %+v", pulses)
	}
	if got := v.Mood().PulseCount; got != 1 {
		t.Errorf("mood pulse count = %d, want 1", got)
	}

	v.ApplyDelete(10)
	if pulses, _, _ = v.Feed(); len(pulses) != 0 {
		t.Errorf("feed not empty after delete: %+v", pulses)
	}
}

func TestViewDropsExpiredOnRecompute(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	m := NewManager(newTestService(t, repo, nil), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Already past lifetime plus grace; the recompute funnel removes it
	// immediately.
	stale := cityPulse(20, "Springfield", time.Now().UTC().Add(-30*time.Hour))
	v.ApplyInsert(stale)

	pulses, _, _ := v.Feed()
	if len(pulses) != 0 {
		t.Errorf("expired pulse survived recompute: %+v", pulses)
	}
}

func TestViewDiscardsStaleAmbientSample(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	repo.add(cityPulse(1, "Springfield", time.Now().UTC()))

	m := NewManager(newTestService(t, repo, nil), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	v.mu.Lock()
	v.ambient = staticAmbient{city: "Springfield"}
	current := v.scope
	v.mu.Unlock()

	v.fetchAmbient("superseded-token")
	if _, ok := v.Sample(); ok {
		t.Fatal("sample with a superseded token was merged")
	}

	v.fetchAmbient(current)
	sample, ok := v.Sample()
	if !ok {
		t.Fatal("current-scope sample was not merged")
	}
	if !sample.Weather.Available {
		t.Errorf("merged sample lost its signals: %+v", sample)
	}
}

func TestViewAutoSeedsEmptyFeed(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seeder := staticSeeder{drafts: []domain.Draft{{
		City:    "Springfield",
		Mood:    "☀️",
		Tag:     domain.CategoryWeather,
		Message: "Clear skies and 18°C",
		Author:  "Sunny Otter",
	}}}

	m := NewManager(newTestService(t, repo, seeder), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	v.mu.Lock()
	v.ambient = staticAmbient{city: "Springfield"}
	current := v.scope
	v.mu.Unlock()

	v.fetchAmbient(current)

	pulses, _, _ := v.Feed()
	if len(pulses) != 1 {
		t.Fatalf("auto-seed left %d pulses, want 1", len(pulses))
	}
	if pulses[0].Tag != domain.CategoryWeather {
		t.Errorf("seeded pulse tag = %q", pulses[0].Tag)
	}
}

func TestViewAutoSeedRespectsSampleCity(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seeder := staticSeeder{drafts: []domain.Draft{{
		City:    "Springfield",
		Mood:    "😊",
		Tag:     domain.CategoryGeneral,
		Message: "hello",
		Author:  "a",
	}}}

	m := NewManager(newTestService(t, repo, seeder), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// The provider answers for a different city than the view's scope; the
	// service-side guard must drop it without creating anything.
	v.mu.Lock()
	v.ambient = staticAmbient{city: "Shelbyville"}
	current := v.scope
	v.mu.Unlock()

	v.fetchAmbient(current)

	pulses, _, _ := v.Feed()
	if len(pulses) != 0 {
		t.Errorf("mismatched sample still seeded pulses: %+v", pulses)
	}
}

func TestManagerRoutesEventsByCity(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	m := NewManager(newTestService(t, repo, nil), nil, testLogger())
	defer m.Release("Springfield")

	v, err := m.Acquire(ctx, "Springfield")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	now := time.Now().UTC()
	m.ApplyInsert(cityPulse(30, "Springfield", now))
	// Events for cities with no live view are dropped.
	m.ApplyInsert(cityPulse(31, "Shelbyville", now))
	m.ApplyDelete("Shelbyville", 31)

	pulses, _, _ := v.Feed()
	if len(pulses) != 1 || pulses[0].ID != 30 {
		t.Errorf("unexpected feed: %+v", pulses)
	}

	m.ApplyDelete("Springfield", 30)
	if pulses, _, _ = v.Feed(); len(pulses) != 0 {
		t.Errorf("feed not empty after routed delete: %+v", pulses)
	}
}
