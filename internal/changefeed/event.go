package changefeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/citypulse/citypulse/internal/domain"
)

// feedEvent is the raw JSON envelope from the change feed.
type feedEvent struct {
	Seq       int64        `json:"seq"`
	Kind      string       `json:"kind"`
	City      string       `json:"city"`
	PulseID   int64        `json:"pulseId,omitempty"`
	Pulse     *pulseRecord `json:"pulse,omitempty"`
	EmittedAt string       `json:"emittedAt,omitempty"`
}

// pulseRecord is the duck-typed pulse row as delivered by the store's push
// channel. It is coerced into the strict domain.Pulse shape before any core
// logic sees it.
type pulseRecord struct {
	ID           int64        `json:"id"`
	City         string       `json:"city"`
	Neighborhood string       `json:"neighborhood,omitempty"`
	Mood         string       `json:"mood"`
	Tag          string       `json:"tag"`
	Message      string       `json:"message"`
	Author       string       `json:"author"`
	UserID       string       `json:"userId,omitempty"`
	CreatedAt    string       `json:"createdAt"`
	ExpiresAt    string       `json:"expiresAt,omitempty"`
	Lat          *float64     `json:"lat,omitempty"`
	Lng          *float64     `json:"lng,omitempty"`
	Poll         *domain.Poll `json:"poll,omitempty"`
}

func parseEvent(data []byte) (*feedEvent, error) {
	var event feedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	switch event.Kind {
	case "insert":
		if event.Pulse == nil {
			return nil, fmt.Errorf("insert event %d has no pulse", event.Seq)
		}
	case "delete":
		if event.PulseID == 0 && event.Pulse != nil {
			event.PulseID = event.Pulse.ID
		}
		if event.PulseID == 0 {
			return nil, fmt.Errorf("delete event %d has no pulse id", event.Seq)
		}
	}

	return &event, nil
}

// toDomain coerces the record into a validated Pulse.
func (rec *pulseRecord) toDomain() (*domain.Pulse, error) {
	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pulse %d: parse createdAt: %w", rec.ID, err)
	}

	p := &domain.Pulse{
		ID:           rec.ID,
		City:         rec.City,
		Neighborhood: rec.Neighborhood,
		Mood:         rec.Mood,
		Tag:          domain.Category(rec.Tag),
		Message:      rec.Message,
		Author:       rec.Author,
		UserID:       rec.UserID,
		CreatedAt:    createdAt.UTC(),
	}

	if rec.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, rec.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("pulse %d: parse expiresAt: %w", rec.ID, err)
		}
		t := expiresAt.UTC()
		p.ExpiresAt = &t
	}

	if rec.Lat != nil && rec.Lng != nil {
		p.Location = &domain.Coordinate{Lat: *rec.Lat, Lng: *rec.Lng}
	}
	p.Poll = rec.Poll

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
