package domain

import (
	"context"
	"time"
)

// PulseRepository defines persistence operations for pulses. Implementations
// assign the unique integer id on create and re-run the moderation gate as
// the authoritative check.
type PulseRepository interface {
	// CreatePulse inserts a new pulse and assigns its id.
	CreatePulse(ctx context.Context, p *Pulse) error

	// GetPulse retrieves a single pulse by id. Returns ErrNotFound when the
	// id does not exist.
	GetPulse(ctx context.Context, id int64) (*Pulse, error)

	// DeletePulse removes a pulse by id; no-op if already absent.
	DeletePulse(ctx context.Context, id int64) error

	// ListCityPulses retrieves a city's pulses inside the coarse fetch
	// window, ordered by creation time descending. When before is non-nil,
	// only pulses strictly older than it are returned (load-more cursor).
	ListCityPulses(ctx context.Context, city string, limit int, before *time.Time) ([]Pulse, error)

	// UserPostTimes returns the creation timestamps of a user's pulses
	// since the given instant, bounded to the most recent 365.
	UserPostTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error)

	// CountUserPulses returns how many pulses the user has ever posted.
	CountUserPulses(ctx context.Context, userID string) (int, error)

	// DeleteExpiredPulses removes pulses past lifetime plus grace and
	// anything outside the fetch window. Returns the number of rows deleted.
	DeleteExpiredPulses(ctx context.Context, now time.Time) (int64, error)
}

// CursorStore persists the change-feed resume cursor so the subscriber can
// pick up where it left off after a restart.
type CursorStore interface {
	GetCursor(ctx context.Context, service string) (int64, error)
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// CityPref is the structured last-selected-city preference.
type CityPref struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Locale string  `json:"locale,omitempty"`
}

// PrefsStore is the narrow key-value contract for client-scoped persisted
// state: onboarding completion per user and the last selected city. Kept as
// an explicit interface so the core is testable without a live store.
type PrefsStore interface {
	OnboardingCompleted(ctx context.Context, userID string) (bool, error)
	SetOnboardingCompleted(ctx context.Context, userID string) error
	LastCity(ctx context.Context, userID string) (*CityPref, error)
	SetLastCity(ctx context.Context, userID string, pref CityPref) error
}

// Signal wrappers: Available distinguishes "signal reports zero" from
// "signal was unreachable". Each signal degrades independently.

type WeatherSignal struct {
	Available bool    `json:"available"`
	City      string  `json:"city,omitempty"`
	Condition string  `json:"condition,omitempty"`
	TempC     float64 `json:"tempC,omitempty"`
}

type TrafficSignal struct {
	Available bool   `json:"available"`
	Level     string `json:"level,omitempty"`
}

type EventsSignal struct {
	Available bool     `json:"available"`
	Count     int      `json:"count"`
	Titles    []string `json:"titles,omitempty"`
}

type NewsSignal struct {
	Available bool     `json:"available"`
	Count     int      `json:"count"`
	Headlines []string `json:"headlines,omitempty"`
}

// AmbientSample is one settled round of ambient fetches for a city. Token is
// the request identifier the caller issued; consumers must verify both the
// token and the city before merging the sample into any state.
type AmbientSample struct {
	Token   string        `json:"token"`
	City    string        `json:"city"`
	Weather WeatherSignal `json:"weather"`
	Traffic TrafficSignal `json:"traffic"`
	Events  EventsSignal  `json:"events"`
	News    NewsSignal    `json:"news"`
}

// Snapshot flattens the sample into the aggregation inputs.
func (s AmbientSample) Snapshot() AmbientSnapshot {
	return AmbientSnapshot{
		EventsCount:      s.Events.Count,
		TrafficLevel:     s.Traffic.Level,
		WeatherCondition: s.Weather.Condition,
		NewsCount:        s.News.Count,
	}
}

// AmbientSource fetches externally sourced city context. Sample never fails
// as a whole: unreachable providers leave their signal unavailable.
type AmbientSource interface {
	Sample(ctx context.Context, token, city string) AmbientSample
}

// SummaryRequest is the input to the generative city summary.
type SummaryRequest struct {
	City    string
	Pulses  []string
	Events  []string
	News    []string
	Ambient AmbientSnapshot
}

// Summarizer produces the short natural-language city summary. Failures
// degrade to "no summary" and never block the feed.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// Seeder generates ambient pulses to backfill an empty city feed.
type Seeder interface {
	Drafts(city string, sample AmbientSample) []Draft
}
