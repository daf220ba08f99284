// Package fetch retrieves raw content items for a set of locators. It is
// the bulk source collaborator the pipeline calls behind the Fetcher
// interface: channel locators resolve through the channel's RSS feed, URL
// locators through the watch page, and captions through the timedtext
// endpoint.
package fetch

import (
	"context"
	"time"

	"recap/internal/transcript"
)

// LocatorKind distinguishes channel references from direct URLs.
type LocatorKind string

const (
	LocatorChannel LocatorKind = "channel"
	LocatorURL     LocatorKind = "url"
)

// Locator identifies one source plus an upper bound on items to retrieve
// from it. Limit 0 means the fetcher default.
type Locator struct {
	Kind      LocatorKind
	ChannelID string
	URL       string
	Limit     int
}

// Window bounds fetched items by publication date. Zero values leave the
// corresponding side open.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) contains(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// Options adjust one fetch invocation.
type Options struct {
	DateWindow      Window
	IncludeCaptions bool
}

// Item is one raw fetched unit, transient between the fetcher and the
// transcript merger. Attribution fields are hints for channel matching.
type Item struct {
	ContentID    string
	Title        string
	Thumbnail    string
	ChannelName  string
	ChannelURL   string
	ChannelID    string
	Fragments    []transcript.Fragment
	DurationHint float64
	PublishedAt  time.Time
}

// Fetcher is the bulk source contract the pipeline consumes. A nil or
// error result means the source is unavailable; an empty result is a valid
// "nothing new" outcome.
type Fetcher interface {
	Fetch(ctx context.Context, locators []Locator, perLocatorLimit int, opts Options) ([]Item, error)
}
