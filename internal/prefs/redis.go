package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/citypulse/citypulse/internal/domain"
)

// Store implements domain.PrefsStore on Redis. Keys are scoped per user so
// cross-user state stays fully independent.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, addr, password string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func onboardingKey(userID string) string { return "onboarding:" + userID }
func lastCityKey(userID string) string   { return "lastcity:" + userID }

// OnboardingCompleted reports whether the user has ever completed their
// first pulse.
func (s *Store) OnboardingCompleted(ctx context.Context, userID string) (bool, error) {
	v, err := s.client.Get(ctx, onboardingKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get onboarding flag: %w", err)
	}
	return v == "1", nil
}

// SetOnboardingCompleted persists the completed flag. Idempotent.
func (s *Store) SetOnboardingCompleted(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, onboardingKey(userID), "1", 0).Err(); err != nil {
		return fmt.Errorf("set onboarding flag: %w", err)
	}
	return nil
}

// LastCity retrieves the user's last selected city, or nil when none has
// been saved.
func (s *Store) LastCity(ctx context.Context, userID string) (*domain.CityPref, error) {
	v, err := s.client.Get(ctx, lastCityKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last city: %w", err)
	}

	var pref domain.CityPref
	if err := json.Unmarshal([]byte(v), &pref); err != nil {
		return nil, fmt.Errorf("unmarshal last city: %w", err)
	}
	return &pref, nil
}

// SetLastCity persists the user's last selected city.
func (s *Store) SetLastCity(ctx context.Context, userID string, pref domain.CityPref) error {
	payload, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("marshal last city: %w", err)
	}
	if err := s.client.Set(ctx, lastCityKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set last city: %w", err)
	}
	return nil
}
