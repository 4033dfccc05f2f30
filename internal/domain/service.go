package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// PulseService is the core domain service. It owns the business logic for
// gating and persisting pulses, serving feed pages, deriving city vibes and
// streaks, and backfilling empty city feeds with ambient content.
type PulseService struct {
	repo       PulseRepository
	prefs      PrefsStore
	gate       *ContentGate
	ambient    AmbientSource
	summarizer Summarizer
	seeder     Seeder
	onboarding *OnboardingTracker
	logger     *slog.Logger
	now        func() time.Time
}

// NewPulseService wires the service. summarizer and seeder may be nil: the
// summary then degrades to empty and auto-seed creates nothing.
func NewPulseService(
	repo PulseRepository,
	prefs PrefsStore,
	gate *ContentGate,
	ambient AmbientSource,
	summarizer Summarizer,
	seeder Seeder,
	logger *slog.Logger,
) *PulseService {
	return &PulseService{
		repo:       repo,
		prefs:      prefs,
		gate:       gate,
		ambient:    ambient,
		summarizer: summarizer,
		seeder:     seeder,
		onboarding: NewOnboardingTracker(prefs),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Onboarding exposes the tracker for the prompt endpoints.
func (s *PulseService) Onboarding() *OnboardingTracker { return s.onboarding }

// CreatePulse validates a draft, runs it through the moderation gate and
// persists it. This is the authoritative server-side path; client gates are
// advisory.
func (s *PulseService) CreatePulse(ctx context.Context, userID string, d Draft) (*Pulse, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	if errs := ValidateDraft(d); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	if verdict := s.gate.Check(d.Message); !verdict.Allowed {
		s.logger.Info("pulse rejected by moderation", "user", userID, "reason", verdict.Reason)
		return nil, fmt.Errorf("%w: %s", ErrModerationFailed, verdict.Reason)
	}

	now := s.now()
	if d.ExpiresAt != nil && !d.ExpiresAt.After(now) {
		return nil, &ValidationError{Fields: []FieldError{{"expiresAt", "must be in the future"}}}
	}

	author := d.Author
	if author == "" {
		author = "Anonymous"
	}

	p := &Pulse{
		City:         d.City,
		Neighborhood: d.Neighborhood,
		Mood:         d.Mood,
		Tag:          d.Tag,
		Message:      strings.TrimSpace(d.Message),
		Author:       author,
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    d.ExpiresAt,
		Location:     d.Location,
		Poll:         d.Poll,
	}

	if err := s.repo.CreatePulse(ctx, p); err != nil {
		return nil, fmt.Errorf("create pulse: %w", err)
	}

	// The user demonstrably has a post now; retire the first-pulse prompt
	// for every future session.
	if err := s.onboarding.Complete(ctx, userID); err != nil {
		s.logger.Warn("failed to persist onboarding flag", "user", userID, "error", err)
	}

	return p, nil
}

// GetPulse retrieves a single pulse by id.
func (s *PulseService) GetPulse(ctx context.Context, id int64) (*Pulse, error) {
	return s.repo.GetPulse(ctx, id)
}

// DeletePulse removes a pulse. Only the owner may delete.
func (s *PulseService) DeletePulse(ctx context.Context, userID string, id int64) error {
	if userID == "" {
		return ErrUnauthorized
	}

	p, err := s.repo.GetPulse(ctx, id)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return ErrNotOwner
	}
	return s.repo.DeletePulse(ctx, id)
}

// FeedPage is one page of a city feed plus pagination state.
type FeedPage struct {
	Pulses     []Pulse    `json:"pulses"`
	HasMore    bool       `json:"hasMore"`
	NextCursor *time.Time `json:"nextCursor,omitempty"`
}

// CityFeed returns a page of a city's renderable pulses. The repository
// fetches one row beyond the page size to learn whether more remain without
// a count query; expired pulses inside the fetch window are still dropped
// here.
func (s *PulseService) CityFeed(ctx context.Context, city string, limit int, before *time.Time) (*FeedPage, error) {
	if city == "" {
		return nil, &ValidationError{Fields: []FieldError{{"city", "required"}}}
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.repo.ListCityPulses(ctx, city, limit+1, before)
	if err != nil {
		return nil, fmt.Errorf("list city pulses: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	visible, _ := Partition(rows, s.now())

	page := &FeedPage{Pulses: visible, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		cursor := rows[len(rows)-1].CreatedAt
		page.NextCursor = &cursor
	}
	return page, nil
}

// CityVibe aggregates the current mood for a city. When override is non-nil
// its values stand in for a live ambient sample (the city-mood endpoint's
// optional query ammo); otherwise the ambient source is consulted with a
// fresh token. Every trigger path (HTTP, change feed, timer, poll) funnels
// through AggregateMood so results are identical regardless of trigger.
func (s *PulseService) CityVibe(ctx context.Context, city string, override *AmbientSnapshot, token string) (*CityMood, error) {
	if city == "" {
		return nil, &ValidationError{Fields: []FieldError{{"city", "required"}}}
	}

	rows, err := s.repo.ListCityPulses(ctx, city, 500, nil)
	if err != nil {
		return nil, fmt.Errorf("list city pulses: %w", err)
	}

	now := s.now()
	active := Active(rows, now)

	var snapshot AmbientSnapshot
	switch {
	case override != nil:
		snapshot = *override
	case s.ambient != nil:
		sample := s.ambient.Sample(ctx, token, city)
		if sample.City == city {
			snapshot = sample.Snapshot()
		}
	}

	mood := AggregateMood(city, active, snapshot, now)
	return &mood, nil
}

// UserStreak computes the user's consecutive-day posting streak from the
// stored post history.
func (s *PulseService) UserStreak(ctx context.Context, userID string) (StreakInfo, error) {
	if userID == "" {
		return StreakInfo{}, ErrUnauthorized
	}

	now := s.now()
	times, err := s.repo.UserPostTimes(ctx, userID, now.Add(-StreakLookback))
	if err != nil {
		return StreakInfo{}, fmt.Errorf("user post times: %w", err)
	}
	return Streak(times, now), nil
}

// ShouldPromptFirstPulse resolves the user's post count and evaluates the
// first-pulse prompt rule, persisting the completed flag as a side effect
// when the count is already positive.
func (s *PulseService) ShouldPromptFirstPulse(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrUnauthorized
	}

	count, err := s.repo.CountUserPulses(ctx, userID)
	if err != nil {
		// Count unresolved: never prompt on unknown state.
		s.logger.Warn("failed to resolve post count", "user", userID, "error", err)
		return false, nil
	}

	if err := s.onboarding.ObservePostCount(ctx, userID, count); err != nil {
		s.logger.Warn("failed to persist onboarding flag", "user", userID, "error", err)
	}

	return s.onboarding.ShouldPrompt(ctx, userID, count, true)
}

// Summary asks the generative service for a short city blurb built from
// recent pulses, deduplicated events and trimmed news. Any failure degrades
// to an empty summary; the feed never blocks on this.
func (s *PulseService) Summary(ctx context.Context, city string, sample AmbientSample) string {
	if s.summarizer == nil {
		return ""
	}

	page, err := s.CityFeed(ctx, city, 10, nil)
	if err != nil {
		s.logger.Warn("summary skipped, feed unavailable", "city", city, "error", err)
		return ""
	}

	req := SummaryRequest{
		City:    city,
		Events:  dedupe(sample.Events.Titles),
		News:    trimAll(sample.News.Headlines, 120),
		Ambient: sample.Snapshot(),
	}
	for _, p := range page.Pulses {
		req.Pulses = append(req.Pulses, fmt.Sprintf("%s %s", p.Mood, p.Message))
	}

	summary, err := s.summarizer.Summarize(ctx, req)
	if err != nil {
		s.logger.Warn("summary generation failed", "city", city, "error", err)
		return ""
	}
	return summary
}

// AutoSeed backfills an empty city feed with ambient pulses. Invoked only
// once every ambient fetch for the city has settled. The sample's city must
// match the requested city: the viewer may have switched cities while the
// fetch was in flight, and a mismatched sample is discarded, not applied.
func (s *PulseService) AutoSeed(ctx context.Context, city string, sample AmbientSample) (int, error) {
	if s.seeder == nil {
		return 0, nil
	}
	if city == "" {
		return 0, &ValidationError{Fields: []FieldError{{"city", "required"}}}
	}

	if sample.City != city {
		s.logger.Info("auto-seed skipped, stale ambient sample",
			"city", city,
			"sample_city", sample.City,
			"token", sample.Token,
		)
		return 0, nil
	}

	page, err := s.CityFeed(ctx, city, 1, nil)
	if err != nil {
		return 0, fmt.Errorf("check city feed: %w", err)
	}
	if len(page.Pulses) > 0 {
		return 0, nil
	}

	created := 0
	for _, d := range s.seeder.Drafts(city, sample) {
		if errs := ValidateDraft(d); len(errs) > 0 {
			continue
		}
		if verdict := s.gate.Check(d.Message); !verdict.Allowed {
			continue
		}

		p := &Pulse{
			City:      city,
			Mood:      d.Mood,
			Tag:       d.Tag,
			Message:   strings.TrimSpace(d.Message),
			Author:    d.Author,
			CreatedAt: s.now(),
		}
		if err := s.repo.CreatePulse(ctx, p); err != nil {
			s.logger.Error("failed to persist seed pulse", "city", city, "error", err)
			continue
		}
		created++
	}

	if created > 0 {
		s.logger.Info("auto-seeded city feed", "city", city, "created", created)
	}
	return created, nil
}

// StartCleanupJob runs a background loop that removes pulses past their
// grace period and anything outside the fetch window. It runs immediately on
// start and then repeats at the given interval. It blocks until ctx is
// cancelled.
func (s *PulseService) StartCleanupJob(ctx context.Context, interval time.Duration) {
	s.runCleanup(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *PulseService) runCleanup(ctx context.Context) {
	deleted, err := s.repo.DeleteExpiredPulses(ctx, s.now())
	if err != nil {
		s.logger.Error("pulse cleanup failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info("pulse cleanup complete", "deleted", deleted)
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func trimAll(items []string, maxRunes int) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if utf8.RuneCountInString(it) > maxRunes {
			runes := []rune(it)
			it = string(runes[:maxRunes])
		}
		out = append(out, it)
	}
	return out
}
