package domain

import (
	"fmt"
	"sort"
	"time"
)

// Score is one bucket of a mood or tag distribution over the currently
// visible pulse set. Percentages are integers summing to exactly 100.
type Score struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// Intensity is the qualitative activity tier of a city.
type Intensity string

const (
	IntensityQuiet   Intensity = "quiet"
	IntensityActive  Intensity = "active"
	IntensityBuzzing Intensity = "buzzing"
	IntensityIntense Intensity = "intense"
)

// Intensity thresholds partition the weighted activity score. More signal
// never lowers the tier.
const (
	intensityActiveScore  = 3
	intensityBuzzingScore = 8
	intensityIntenseScore = 15

	recentActivityWindow = 2 * time.Hour
)

// AmbientSnapshot carries the externally sourced signals that enrich mood
// aggregation. Zero values mean the signal was unavailable.
type AmbientSnapshot struct {
	EventsCount      int    `json:"eventsCount"`
	TrafficLevel     string `json:"trafficLevel"`
	WeatherCondition string `json:"weatherCondition"`
	NewsCount        int    `json:"newsCount"`
}

// CityMood is the derived vibe snapshot for a city's visible pulses.
type CityMood struct {
	City         string    `json:"city"`
	DominantMood string    `json:"dominantMood"`
	DominantTag  Category  `json:"dominantTag"`
	MoodScores   []Score   `json:"moodScores"`
	TagScores    []Score   `json:"tagScores"`
	Headline     string    `json:"headline"`
	Subtext      string    `json:"subtext"`
	Emotion      string    `json:"emotion"`
	Intensity    Intensity `json:"intensity"`
	PulseCount   int       `json:"pulseCount"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// moodEmotions maps the dominant mood emoji to a qualitative label.
var moodEmotions = map[string]string{
	"🚗": "restless", "🚦": "impatient", "😤": "frustrated", "🐌": "sluggish",
	"☀️": "sunny", "🌧️": "mellow", "⛈️": "stormy", "🌫️": "hazy", "❄️": "chilly",
	"🎉": "festive", "🎵": "lively", "🏟️": "excited", "🔥": "hyped",
	"😊": "happy", "😐": "even-keeled", "😮": "surprised", "😢": "down", "❤️": "loving",
}

// AggregateMood computes the CityMood for the active pulse set of a city
// plus ambient signals. The caller is responsible for filtering the set to
// non-expired pulses first.
func AggregateMood(city string, active []Pulse, ambient AmbientSnapshot, now time.Time) CityMood {
	mood := CityMood{
		City:        city,
		PulseCount:  len(active),
		Intensity:   intensityFor(active, ambient, now),
		GeneratedAt: now,
	}

	if len(active) == 0 {
		mood.Headline = fmt.Sprintf("%s is waiting for its first pulse", city)
		mood.Subtext = "Nothing here yet. Share what's happening around you."
		return mood
	}

	mood.MoodScores = scoreBy(active, func(p Pulse) string { return p.Mood })
	mood.TagScores = scoreBy(active, func(p Pulse) string { return string(p.Tag) })
	mood.DominantMood = dominantLabel(active, func(p Pulse) string { return p.Mood })
	mood.DominantTag = Category(dominantLabel(active, func(p Pulse) string { return string(p.Tag) }))
	mood.Emotion = moodEmotions[mood.DominantMood]
	if mood.Emotion == "" {
		mood.Emotion = "mixed"
	}

	mood.Headline = fmt.Sprintf("%s is feeling %s %s", city, mood.Emotion, mood.DominantMood)
	mood.Subtext = fmt.Sprintf("%d pulses, mostly about %s", len(active), mood.DominantTag)

	return mood
}

// scoreBy builds the count/percent distribution for one grouping key.
// Integer percentages sum to exactly 100: the rounding remainder is assigned
// to the largest bucket.
func scoreBy(pulses []Pulse, key func(Pulse) string) []Score {
	counts := make(map[string]int)
	for _, p := range pulses {
		counts[key(p)]++
	}

	scores := make([]Score, 0, len(counts))
	for label, count := range counts {
		scores = append(scores, Score{
			Label:   label,
			Count:   count,
			Percent: count * 100 / len(pulses),
		})
	}

	// Stable order: count descending, then label for determinism.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Count != scores[j].Count {
			return scores[i].Count > scores[j].Count
		}
		return scores[i].Label < scores[j].Label
	})

	total := 0
	for _, s := range scores {
		total += s.Percent
	}
	if len(scores) > 0 {
		scores[0].Percent += 100 - total
	}

	return scores
}

// dominantLabel picks the key with the highest count; ties break toward the
// label with the most recent occurrence.
func dominantLabel(pulses []Pulse, key func(Pulse) string) string {
	counts := make(map[string]int)
	latest := make(map[string]time.Time)
	for _, p := range pulses {
		k := key(p)
		counts[k]++
		if p.CreatedAt.After(latest[k]) {
			latest[k] = p.CreatedAt
		}
	}

	var best string
	for k := range counts {
		if best == "" {
			best = k
			continue
		}
		if counts[k] > counts[best] {
			best = k
		} else if counts[k] == counts[best] && latest[k].After(latest[best]) {
			best = k
		}
	}
	return best
}

// intensityFor derives the activity tier from a weighted score over recent
// pulse volume, ambient event count and anomaly signals. Monotonic: every
// term is non-negative.
func intensityFor(active []Pulse, ambient AmbientSnapshot, now time.Time) Intensity {
	recent := 0
	for _, p := range active {
		if now.Sub(p.CreatedAt) <= recentActivityWindow {
			recent++
		}
	}

	score := recent*2 + ambient.EventsCount
	if trafficAnomaly(ambient.TrafficLevel) {
		score += 3
	}
	if weatherAnomaly(ambient.WeatherCondition) {
		score += 2
	}

	switch {
	case score >= intensityIntenseScore:
		return IntensityIntense
	case score >= intensityBuzzingScore:
		return IntensityBuzzing
	case score >= intensityActiveScore:
		return IntensityActive
	default:
		return IntensityQuiet
	}
}

func trafficAnomaly(level string) bool {
	switch level {
	case "heavy", "severe", "gridlock":
		return true
	}
	return false
}

func weatherAnomaly(condition string) bool {
	switch condition {
	case "storm", "thunderstorm", "snow", "hail", "tornado":
		return true
	}
	return false
}
