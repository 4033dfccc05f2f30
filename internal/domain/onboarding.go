package domain

import (
	"context"
	"sync"
)

// ShowFirstPulsePrompt decides whether to show the first-time-user prompt.
// Pure function of state: show only when identity is ready, the post count
// has been resolved and is exactly zero, the persisted completed flag is
// false, and the prompt has not already been shown this session.
func ShowFirstPulsePrompt(identityReady, countKnown bool, postCount int, completed, shownThisSession bool) bool {
	return identityReady &&
		countKnown &&
		postCount == 0 &&
		!completed &&
		!shownThisSession
}

// OnboardingTracker combines the pure prompt rule with the persisted
// completed flag and the session-scoped shown flag. The completed flag is
// persisted idempotently the moment a user's post count turns positive, so
// the prompt never reappears in a later session even after session-only
// state is cleared.
type OnboardingTracker struct {
	prefs PrefsStore

	mu    sync.Mutex
	shown map[string]bool
}

func NewOnboardingTracker(prefs PrefsStore) *OnboardingTracker {
	return &OnboardingTracker{
		prefs: prefs,
		shown: make(map[string]bool),
	}
}

// ShouldPrompt evaluates the prompt rule for a user and, when it returns
// true, marks the prompt shown for the rest of the session.
func (t *OnboardingTracker) ShouldPrompt(ctx context.Context, userID string, postCount int, countKnown bool) (bool, error) {
	if userID == "" {
		return false, nil
	}

	completed, err := t.prefs.OnboardingCompleted(ctx, userID)
	if err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	show := ShowFirstPulsePrompt(true, countKnown, postCount, completed, t.shown[userID])
	if show {
		t.shown[userID] = true
	}
	return show, nil
}

// ObservePostCount records a freshly resolved post count. A positive count
// persists the completed flag; repeat calls are no-ops.
func (t *OnboardingTracker) ObservePostCount(ctx context.Context, userID string, count int) error {
	if userID == "" || count <= 0 {
		return nil
	}

	completed, err := t.prefs.OnboardingCompleted(ctx, userID)
	if err != nil {
		return err
	}
	if completed {
		return nil
	}
	return t.prefs.SetOnboardingCompleted(ctx, userID)
}

// Complete persists the completed flag directly, for the explicit
// completion endpoint. Idempotent.
func (t *OnboardingTracker) Complete(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	return t.prefs.SetOnboardingCompleted(ctx, userID)
}
