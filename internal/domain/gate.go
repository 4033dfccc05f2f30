package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultBannedTerms is the starting moderation word list. Deployments
// override it through configuration; the gate's contract is what matters
// here, not the list contents.
var DefaultBannedTerms = []string{
	"spamlink",
	"buy followers",
	"crypto pump",
	"free money",
}

// Verdict is the outcome of a ContentGate check.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ContentGate accepts or rejects a draft message against the moderation
// policy. It is a pure synchronous check run before any network call; the
// server-side gate remains authoritative.
type ContentGate struct {
	pattern *regexp.Regexp
}

// NewContentGate compiles the disallowed-term list into a single
// case-insensitive word-boundary pattern. An empty list yields a gate that
// only rejects empty messages.
func NewContentGate(bannedTerms []string) (*ContentGate, error) {
	g := &ContentGate{}

	if len(bannedTerms) > 0 {
		escaped := make([]string, len(bannedTerms))
		for i, term := range bannedTerms {
			escaped[i] = regexp.QuoteMeta(term)
		}

		expr := `(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile moderation pattern: %w", err)
		}
		g.pattern = pattern
	}

	return g, nil
}

// Check validates a message body. The message is trimmed before matching so
// surrounding whitespace can neither hide a term nor sneak an empty message
// through.
func (g *ContentGate) Check(message string) Verdict {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Verdict{Allowed: false, Reason: "message is empty"}
	}

	if g.pattern != nil && g.pattern.MatchString(trimmed) {
		return Verdict{Allowed: false, Reason: "message contains disallowed content"}
	}

	return Verdict{Allowed: true}
}
