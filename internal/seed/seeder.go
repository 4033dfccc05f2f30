package seed

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/citypulse/citypulse/internal/domain"
)

// Seeder turns an ambient sample into a handful of seed pulses so a brand
// new city never greets its first viewer with a dead feed. Implements
// domain.Seeder.
type Seeder struct {
	faker *gofakeit.Faker
}

// New creates a seeder. Pass a non-zero seed for deterministic output in
// tests; zero seeds from entropy.
func New(seedValue int64) *Seeder {
	return &Seeder{faker: gofakeit.New(seedValue)}
}

// Drafts builds seed drafts from whatever signals settled for the city.
// Signals that were unavailable contribute nothing.
func (s *Seeder) Drafts(city string, sample domain.AmbientSample) []domain.Draft {
	var drafts []domain.Draft

	if sample.Weather.Available && sample.Weather.Condition != "" {
		drafts = append(drafts, domain.Draft{
			City:    city,
			Mood:    weatherMood(sample.Weather.Condition),
			Tag:     domain.CategoryWeather,
			Message: fmt.Sprintf("Looking %s out there right now, around %.0f°C.", sample.Weather.Condition, sample.Weather.TempC),
			Author:  s.displayName(),
		})
	}

	if sample.Traffic.Available && sample.Traffic.Level != "" {
		drafts = append(drafts, domain.Draft{
			City:    city,
			Mood:    trafficMood(sample.Traffic.Level),
			Tag:     domain.CategoryTraffic,
			Message: fmt.Sprintf("Traffic is %s across town at the moment.", sample.Traffic.Level),
			Author:  s.displayName(),
		})
	}

	for i, title := range sample.Events.Titles {
		if i >= 2 {
			break
		}
		drafts = append(drafts, domain.Draft{
			City:    city,
			Mood:    "🎉",
			Tag:     domain.CategoryEvents,
			Message: fmt.Sprintf("Happening today: %s", title),
			Author:  s.displayName(),
		})
	}

	if len(drafts) == 0 {
		drafts = append(drafts, domain.Draft{
			City:    city,
			Mood:    "😊",
			Tag:     domain.CategoryGeneral,
			Message: fmt.Sprintf("Quiet day in %s so far. What's happening near you?", city),
			Author:  s.displayName(),
		})
	}

	return drafts
}

// displayName generates an anonymous author handle like "Brave Otter".
func (s *Seeder) displayName() string {
	return s.faker.AdjectiveDescriptive() + " " + s.faker.Animal()
}

func weatherMood(condition string) string {
	switch condition {
	case "rain", "drizzle":
		return "🌧️"
	case "storm", "thunderstorm":
		return "⛈️"
	case "snow", "hail":
		return "❄️"
	case "fog", "mist":
		return "🌫️"
	default:
		return "☀️"
	}
}

func trafficMood(level string) string {
	switch level {
	case "heavy", "severe", "gridlock":
		return "😤"
	case "slow", "moderate":
		return "🐌"
	default:
		return "🚗"
	}
}
