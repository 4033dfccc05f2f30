package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Category is the kind of city signal a pulse reports. The category drives
// how long the pulse stays visible.
type Category string

const (
	CategoryTraffic Category = "Traffic"
	CategoryWeather Category = "Weather"
	CategoryEvents  Category = "Events"
	CategoryGeneral Category = "General"
)

// MaxMessageLength is the maximum pulse message length in code points.
const MaxMessageLength = 240

// categoryMoods is the fixed emoji vocabulary allowed per category.
var categoryMoods = map[Category][]string{
	CategoryTraffic: {"🚗", "🚦", "😤", "🐌"},
	CategoryWeather: {"☀️", "🌧️", "⛈️", "🌫️", "❄️"},
	CategoryEvents:  {"🎉", "🎵", "🏟️", "🔥"},
	CategoryGeneral: {"😊", "😐", "😮", "😢", "❤️"},
}

// ValidCategory reports whether c is one of the known category tags.
func ValidCategory(c Category) bool {
	_, ok := categoryMoods[c]
	return ok
}

// ValidMood reports whether mood is allowed for the given category.
func ValidMood(c Category, mood string) bool {
	for _, m := range categoryMoods[c] {
		if m == mood {
			return true
		}
	}
	return false
}

// Coordinate is an optional geographic point attached to a pulse.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Poll is an optional prediction sub-structure attached to a pulse.
type Poll struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Votes    []int    `json:"votes"`
}

// Pulse is a single user-authored, mood-tagged, time-limited post. Pulses
// are immutable once created; visibility transitions are computed, never
// stored.
type Pulse struct {
	ID           int64       `json:"id"`
	City         string      `json:"city"`
	Neighborhood string      `json:"neighborhood,omitempty"`
	Mood         string      `json:"mood"`
	Tag          Category    `json:"tag"`
	Message      string      `json:"message"`
	Author       string      `json:"author"`
	UserID       string      `json:"userId,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
	Location     *Coordinate `json:"location,omitempty"`
	Poll         *Poll       `json:"poll,omitempty"`
}

// Validate checks the structural invariants of a stored pulse. Rows from the
// store or the change feed must pass here before any core logic consumes
// them.
func (p *Pulse) Validate() error {
	if p.ID == 0 {
		return fmt.Errorf("pulse has no id")
	}
	if p.City == "" {
		return fmt.Errorf("pulse %d: city is required", p.ID)
	}
	if !ValidCategory(p.Tag) {
		return fmt.Errorf("pulse %d: unknown category %q", p.ID, p.Tag)
	}
	if p.Mood == "" {
		return fmt.Errorf("pulse %d: mood is required", p.ID)
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("pulse %d: createdAt is required", p.ID)
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(p.CreatedAt) {
		return fmt.Errorf("pulse %d: expiresAt must be after createdAt", p.ID)
	}
	if utf8.RuneCountInString(p.Message) > MaxMessageLength {
		return fmt.Errorf("pulse %d: message exceeds %d characters", p.ID, MaxMessageLength)
	}
	return nil
}

// Draft is an unvalidated pulse submission from a user or the seeder.
type Draft struct {
	City         string      `json:"city"`
	Neighborhood string      `json:"neighborhood,omitempty"`
	Mood         string      `json:"mood"`
	Tag          Category    `json:"tag"`
	Message      string      `json:"message"`
	Author       string      `json:"author"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
	Location     *Coordinate `json:"location,omitempty"`
	Poll         *Poll       `json:"poll,omitempty"`
}

// FieldError is a single field's validation failure, surfaced as an inline
// error and never sent past the gate.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidateDraft performs the required-field checks on a draft. The message
// body itself is additionally checked by the ContentGate.
func ValidateDraft(d Draft) []FieldError {
	var errs []FieldError

	if d.City == "" {
		errs = append(errs, FieldError{"city", "required"})
	}
	if d.Tag == "" {
		errs = append(errs, FieldError{"tag", "required"})
	} else if !ValidCategory(d.Tag) {
		errs = append(errs, FieldError{"tag", fmt.Sprintf("unknown category %q", d.Tag)})
	}
	if d.Mood == "" {
		errs = append(errs, FieldError{"mood", "required"})
	} else if ValidCategory(d.Tag) && !ValidMood(d.Tag, d.Mood) {
		errs = append(errs, FieldError{"mood", fmt.Sprintf("mood %q is not allowed for category %q", d.Mood, d.Tag)})
	}
	if d.Message == "" {
		errs = append(errs, FieldError{"message", "required"})
	} else if utf8.RuneCountInString(d.Message) > MaxMessageLength {
		errs = append(errs, FieldError{"message", fmt.Sprintf("max length %d", MaxMessageLength)})
	}
	if d.Poll != nil {
		if d.Poll.Question == "" {
			errs = append(errs, FieldError{"poll.question", "required"})
		}
		if len(d.Poll.Options) < 2 {
			errs = append(errs, FieldError{"poll.options", "at least two options required"})
		}
	}

	return errs
}
