package store

import (
	"strings"
	"time"
)

// SummaryState represents the enrichment lifecycle of one entity.
type SummaryState string

const (
	SummaryPending    SummaryState = "pending"
	SummaryInProgress SummaryState = "in_progress"
	SummaryCompleted  SummaryState = "completed"
	SummaryFailed     SummaryState = "failed"
)

var summaryStates = map[SummaryState]struct{}{
	SummaryPending:    {},
	SummaryInProgress: {},
	SummaryCompleted:  {},
	SummaryFailed:     {},
}

// ParseSummaryState converts a string into a known SummaryState.
func ParseSummaryState(value string) (SummaryState, bool) {
	normalized := SummaryState(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := summaryStates[normalized]
	return normalized, ok
}

// Account is the metered owner of entities and runs. Consumed counts items
// enriched in the current period; LastReset records the last period
// rollover. AnchorDay is the day-of-month the paid subscription began for
// monthly-anniversary plans, nil for calendar-period plans.
type Account struct {
	ID        string
	PlanTier  string
	Consumed  int
	LastReset time.Time
	AnchorDay *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Segment is one merged transcript segment. Start and Duration are in
// seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Entity is the durable enriched record produced by the pipeline. The
// natural key is (Account, ContentID, RunScope); RunScope carries the run
// token for invocations where repeat content across independent runs must
// stay distinguishable and is empty otherwise.
type Entity struct {
	ID              int64
	Account         string
	ContentID       string
	RunScope        string
	RunToken        string
	Title           string
	ChannelName     string
	ChannelURL      string
	ChannelID       string
	ChannelLabel    string
	Transcript      []Segment
	DurationSeconds float64
	Summary         string
	SummaryState    SummaryState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DigestStatus tracks the derived digest document for a run.
type DigestStatus string

const (
	DigestNone      DigestStatus = "none"
	DigestPending   DigestStatus = "pending"
	DigestGenerated DigestStatus = "generated"
	DigestFailed    DigestStatus = "failed"
)

// RunRecord summarizes one completed pipeline invocation.
type RunRecord struct {
	RunToken        string
	Account         string
	Kind            string
	ItemCount       int
	DurationSeconds float64
	Digest          DigestStatus
	CompletedAt     time.Time
}

// Channel is one subscribed source channel for an account, used by
// attribution matching when persisting entities.
type Channel struct {
	ID         int64
	Account    string
	Name       string
	URL        string
	ExternalID string
}
