package enrich

import (
	"context"
	"strings"
	"time"
)

// DetailLevel selects how expansive a summary the provider should produce.
type DetailLevel string

const (
	DetailShort    DetailLevel = "short"
	DetailDetailed DetailLevel = "detailed"
)

// ParseDetailLevel converts a configuration string into a DetailLevel.
func ParseDetailLevel(value string) (DetailLevel, bool) {
	switch DetailLevel(strings.ToLower(strings.TrimSpace(value))) {
	case DetailShort:
		return DetailShort, true
	case DetailDetailed:
		return DetailDetailed, true
	}
	return "", false
}

// Provider is one interchangeable summarization backend. Implementations
// must be safe for concurrent use and must classify failures through the
// services error taxonomy so the scheduler's retry policy can discriminate
// rate limits and server errors from content rejection.
type Provider interface {
	Summarize(ctx context.Context, text string, detail DetailLevel, instructions string) (string, error)
	Name() string
}

// HealthChecker is implemented by providers that support a connectivity
// probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// retryAfterCarrier is implemented by provider errors that carry an
// explicit server-requested delay.
type retryAfterCarrier interface {
	RetryAfter() time.Duration
}

// truncationMarker is appended whenever transcript text is cut to fit the
// provider context budget. Truncation is always explicit, never silent.
const truncationMarker = "\n\n[transcript truncated]"

// truncate cuts text to at most budget runes, appending the truncation
// marker. A non-positive budget disables truncation.
func truncate(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget]) + truncationMarker
}
