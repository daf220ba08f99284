// Package attribution matches a fetched item's raw channel hints against
// an account's subscribed channels when persisting entities.
package attribution

import (
	"strings"

	"golang.org/x/text/cases"

	"recap/internal/store"
)

// Hint carries the raw channel attribution delivered with a fetched item.
type Hint struct {
	Name       string
	URL        string
	ExternalID string
}

// Match resolves a hint against the subscribed channel set. Priority
// order: exact external-id equality, then URL containment in either
// direction, then case-folded name containment in either direction. First
// match wins; nil means no match and the caller keeps the hint name as a
// free-text label only.
func Match(hint Hint, channels []*store.Channel) *store.Channel {
	externalID := strings.TrimSpace(hint.ExternalID)
	if externalID != "" {
		for _, channel := range channels {
			if channel.ExternalID != "" && channel.ExternalID == externalID {
				return channel
			}
		}
	}
	hintURL := normalizeURL(hint.URL)
	if hintURL != "" {
		for _, channel := range channels {
			channelURL := normalizeURL(channel.URL)
			if channelURL == "" {
				continue
			}
			if strings.Contains(hintURL, channelURL) || strings.Contains(channelURL, hintURL) {
				return channel
			}
		}
	}
	hintName := foldName(hint.Name)
	if hintName != "" {
		for _, channel := range channels {
			channelName := foldName(channel.Name)
			if channelName == "" {
				continue
			}
			if strings.Contains(hintName, channelName) || strings.Contains(channelName, hintName) {
				return channel
			}
		}
	}
	return nil
}

// A cases.Caser is stateful, so build one per call instead of sharing.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// normalizeURL strips scheme, www prefix, and trailing slashes so
// containment checks compare the meaningful part of the address.
func normalizeURL(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimPrefix(trimmed, "www.")
	return strings.TrimRight(trimmed, "/")
}
