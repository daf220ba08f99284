// Package transcript coalesces raw caption fragments into stable segments.
//
// Caption sources deliver near-duplicate fragments with almost identical
// start offsets (rolling captions repeat the tail of the previous line).
// Merge folds those into one segment so the persisted transcript and the
// text sent for enrichment stay free of stutter. All functions are pure.
package transcript

import (
	"math"
	"strings"

	"recap/internal/store"
)

// startThreshold is the maximum start-offset distance, in seconds, at which
// a fragment is treated as a continuation of the current segment.
const startThreshold = 0.1

// Fragment is one raw caption unit as delivered by the source.
type Fragment struct {
	Text     string
	Start    float64
	Duration float64
}

// Merge walks fragments in order and greedily coalesces runs whose start
// offsets fall within startThreshold of the segment being built. Text is
// joined with single spaces and durations are summed. Input order is
// preserved; the function never reorders or drops fragments.
func Merge(fragments []Fragment) []store.Segment {
	if len(fragments) == 0 {
		return nil
	}
	segments := make([]store.Segment, 0, len(fragments))
	current := store.Segment{
		Text:     strings.TrimSpace(fragments[0].Text),
		Start:    fragments[0].Start,
		Duration: fragments[0].Duration,
	}
	last := fragments[0].Start
	for _, fragment := range fragments[1:] {
		if math.Abs(fragment.Start-last) < startThreshold {
			current.Text = joinText(current.Text, fragment.Text)
			current.Duration += fragment.Duration
		} else {
			segments = append(segments, current)
			current = store.Segment{
				Text:     strings.TrimSpace(fragment.Text),
				Start:    fragment.Start,
				Duration: fragment.Duration,
			}
		}
		last = fragment.Start
	}
	return append(segments, current)
}

// InferDuration derives a whole-item duration, in seconds, from the merged
// transcript when the source supplied no duration hint. It returns the end
// of the final segment rounded up to a whole second, or 0 for an empty
// transcript.
func InferDuration(segments []store.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	last := segments[len(segments)-1]
	return math.Ceil(last.Start + last.Duration)
}

// Text flattens a merged transcript into the single string handed to the
// enrichment provider.
func Text(segments []store.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment.Text != "" {
			parts = append(parts, segment.Text)
		}
	}
	return strings.Join(parts, " ")
}

func joinText(current, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return current
	}
	if current == "" {
		return next
	}
	return current + " " + next
}
