package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
	"recap/internal/transcript"
)

// Client implements Fetcher against feed, watch-page, and caption
// endpoints. Safe for concurrent use.
type Client struct {
	cfg        config.Fetch
	parser     *gofeed.Parser
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
			c.parser.Client = client
		}
	}
}

// NewClient constructs a fetch client from configuration.
func NewClient(cfg config.Fetch, logger *slog.Logger, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	httpClient := &http.Client{Timeout: timeout}
	parser := gofeed.NewParser()
	parser.Client = httpClient
	parser.UserAgent = cfg.UserAgent
	client := &Client{
		cfg:        cfg,
		parser:     parser,
		httpClient: httpClient,
		logger:     logging.NewComponentLogger(logger, "fetch"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ Fetcher = (*Client)(nil)

// Fetch implements Fetcher. Any locator failure fails the whole fetch;
// the caller releases its reservation on error.
func (c *Client) Fetch(ctx context.Context, locators []Locator, perLocatorLimit int, opts Options) ([]Item, error) {
	items := make([]Item, 0, len(locators))
	for _, locator := range locators {
		limit := locator.Limit
		if limit <= 0 {
			limit = perLocatorLimit
		}
		if limit <= 0 {
			limit = c.cfg.DefaultLimit
		}
		switch locator.Kind {
		case LocatorChannel:
			fetched, err := c.fetchChannel(ctx, locator, limit, opts)
			if err != nil {
				return nil, err
			}
			items = append(items, fetched...)
		case LocatorURL:
			item, err := c.fetchURL(ctx, locator, opts)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			return nil, services.Wrap(services.ErrValidation, "fetch", "fetch",
				fmt.Sprintf("unknown locator kind %q", locator.Kind), nil)
		}
	}
	return items, nil
}

func (c *Client) fetchChannel(ctx context.Context, locator Locator, limit int, opts Options) ([]Item, error) {
	if locator.ChannelID == "" {
		id, err := ParseChannelID(locator.URL)
		if err != nil {
			return nil, err
		}
		locator.ChannelID = id
	}
	feedURL := c.cfg.FeedBaseURL + "?channel_id=" + url.QueryEscape(locator.ChannelID)
	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrFetchUnavailable, "fetch", "channel_feed",
			fmt.Sprintf("feed for %s", locator.ChannelID), err)
	}
	channelURL := strings.TrimSpace(feed.Link)
	channelName := strings.TrimSpace(feed.Title)

	items := make([]Item, 0, limit)
	for _, entry := range feed.Items {
		if len(items) >= limit {
			break
		}
		published := time.Time{}
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		}
		if !opts.DateWindow.contains(published) {
			continue
		}
		videoID := feedVideoID(entry)
		if videoID == "" {
			continue
		}
		item := Item{
			ContentID:   videoID,
			Title:       strings.TrimSpace(entry.Title),
			Thumbnail:   feedThumbnail(entry),
			ChannelName: channelName,
			ChannelURL:  channelURL,
			ChannelID:   locator.ChannelID,
			PublishedAt: published,
		}
		if opts.IncludeCaptions {
			fragments, err := c.fetchCaptions(ctx, videoID)
			if err != nil {
				// Missing captions degrade the item, they do not fail
				// the whole fetch.
				c.logger.Warn("captions unavailable",
					logging.String(logging.FieldContentID, videoID),
					logging.Error(err))
			} else {
				item.Fragments = fragments
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) fetchURL(ctx context.Context, locator Locator, opts Options) (Item, error) {
	videoID, err := ParseVideoID(locator.URL)
	if err != nil {
		return Item{}, err
	}
	watchURL := c.cfg.WatchBaseURL + "?v=" + url.QueryEscape(videoID)
	body, err := c.get(ctx, watchURL)
	if err != nil {
		return Item{}, services.Wrap(services.ErrFetchUnavailable, "fetch", "watch_page", videoID, err)
	}
	defer body.Close()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Item{}, services.Wrap(services.ErrFetchUnavailable, "fetch", "watch_page",
			fmt.Sprintf("parse page for %s", videoID), err)
	}

	item := Item{
		ContentID:   videoID,
		Title:       metaContent(doc, `meta[property="og:title"]`),
		Thumbnail:   metaContent(doc, `meta[property="og:image"]`),
		ChannelName: attrValue(doc, `link[itemprop="name"]`, "content"),
		ChannelURL:  attrValue(doc, `span[itemprop="author"] link[itemprop="url"]`, "href"),
	}
	if item.ChannelURL != "" {
		if id, err := ParseChannelID(item.ChannelURL); err == nil {
			item.ChannelID = id
		}
	}
	if raw := metaContent(doc, `meta[itemprop="duration"]`); raw != "" {
		item.DurationHint = parseISODuration(raw)
	}
	if raw := metaContent(doc, `meta[itemprop="datePublished"]`); raw != "" {
		if published, err := time.Parse("2006-01-02", raw); err == nil {
			item.PublishedAt = published
		}
	}
	if opts.IncludeCaptions {
		fragments, err := c.fetchCaptions(ctx, videoID)
		if err != nil {
			c.logger.Warn("captions unavailable",
				logging.String(logging.FieldContentID, videoID),
				logging.Error(err))
		} else {
			item.Fragments = fragments
		}
	}
	return item, nil
}

// timedTextDoc is the caption XML served by the timedtext endpoint.
type timedTextDoc struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func (c *Client) fetchCaptions(ctx context.Context, videoID string) ([]transcript.Fragment, error) {
	captionsURL := c.cfg.CaptionsBaseURL + "?lang=" + url.QueryEscape(c.cfg.CaptionLanguage) +
		"&v=" + url.QueryEscape(videoID)
	body, err := c.get(ctx, captionsURL)
	if err != nil {
		return nil, services.Wrap(services.ErrFetchUnavailable, "fetch", "captions", videoID, err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, services.Wrap(services.ErrFetchUnavailable, "fetch", "captions", videoID, err)
	}
	var doc timedTextDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, services.Wrap(services.ErrFetchUnavailable, "fetch", "captions",
			fmt.Sprintf("decode captions for %s", videoID), err)
	}
	fragments := make([]transcript.Fragment, 0, len(doc.Texts))
	for _, text := range doc.Texts {
		value := strings.TrimSpace(html.UnescapeString(text.Value))
		if value == "" {
			continue
		}
		fragments = append(fragments, transcript.Fragment{
			Text:     value,
			Start:    text.Start,
			Duration: text.Dur,
		})
	}
	return fragments, nil
}

func (c *Client) get(ctx context.Context, requestURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func feedVideoID(entry *gofeed.Item) string {
	if ext, ok := entry.Extensions["yt"]; ok {
		if ids, ok := ext["videoId"]; ok && len(ids) > 0 {
			return strings.TrimSpace(ids[0].Value)
		}
	}
	// Fall back to the entry GUID, which the feed formats as "yt:video:ID".
	if idx := strings.LastIndex(entry.GUID, ":"); idx >= 0 {
		return strings.TrimSpace(entry.GUID[idx+1:])
	}
	return ""
}

func feedThumbnail(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	if media, ok := entry.Extensions["media"]; ok {
		for _, group := range media["group"] {
			for _, thumb := range group.Children["thumbnail"] {
				if thumbURL := strings.TrimSpace(thumb.Attrs["url"]); thumbURL != "" {
					return thumbURL
				}
			}
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	return attrValue(doc, selector, "content")
}

func attrValue(doc *goquery.Document, selector, attr string) string {
	value, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value)
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// ParseVideoID extracts the video id from a watch, share, shorts, or embed
// URL.
func ParseVideoID(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "fetch", "parse_video_id", "empty url", nil)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "fetch", "parse_video_id", trimmed, err)
	}
	candidate := ""
	switch {
	case parsed.Query().Get("v") != "":
		candidate = parsed.Query().Get("v")
	case strings.Contains(parsed.Host, "youtu.be"):
		candidate = strings.Trim(parsed.Path, "/")
	case strings.HasPrefix(parsed.Path, "/shorts/"):
		candidate = strings.Trim(strings.TrimPrefix(parsed.Path, "/shorts/"), "/")
	case strings.HasPrefix(parsed.Path, "/embed/"):
		candidate = strings.Trim(strings.TrimPrefix(parsed.Path, "/embed/"), "/")
	}
	candidate = strings.TrimSpace(candidate)
	if !videoIDPattern.MatchString(candidate) {
		return "", services.Wrap(services.ErrValidation, "fetch", "parse_video_id",
			fmt.Sprintf("no video id in %q", trimmed), nil)
	}
	return candidate, nil
}

// ParseChannelID extracts the external channel id from a /channel/ URL.
func ParseChannelID(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if idx := strings.Index(trimmed, "/channel/"); idx >= 0 {
		id := strings.Trim(trimmed[idx+len("/channel/"):], "/")
		if slash := strings.IndexByte(id, '/'); slash >= 0 {
			id = id[:slash]
		}
		if id != "" {
			return id, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "fetch", "parse_channel_id",
		fmt.Sprintf("no channel id in %q", trimmed), nil)
}

// parseISODuration converts an ISO 8601 duration such as PT1H2M3S into
// seconds. Malformed input yields 0.
func parseISODuration(raw string) float64 {
	raw = strings.TrimSpace(strings.ToUpper(raw))
	if !strings.HasPrefix(raw, "PT") {
		return 0
	}
	raw = strings.TrimPrefix(raw, "PT")
	var seconds float64
	for _, unit := range []struct {
		suffix string
		factor float64
	}{{"H", 3600}, {"M", 60}, {"S", 1}} {
		idx := strings.Index(raw, unit.suffix)
		if idx < 0 {
			continue
		}
		value, err := strconv.ParseFloat(raw[:idx], 64)
		if err != nil {
			return 0
		}
		seconds += value * unit.factor
		raw = raw[idx+1:]
	}
	return seconds
}
