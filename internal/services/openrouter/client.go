// Package openrouter implements the enrichment provider contract against
// the OpenRouter chat completion API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"recap/internal/enrich"
	"recap/internal/services"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings required to talk to OpenRouter.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client wraps the OpenRouter chat completion API. It performs a single
// request per call; the enrichment scheduler owns the retry policy and
// relies on the error classification done here.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.cfg.BaseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient constructs an OpenRouter client using the supplied
// configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

var (
	_ enrich.Provider      = (*Client)(nil)
	_ enrich.HealthChecker = (*Client)(nil)
)

// Name implements enrich.Provider.
func (c *Client) Name() string { return "openrouter" }

// Summarize implements enrich.Provider. Safe for concurrent use.
func (c *Client) Summarize(ctx context.Context, text string, detail enrich.DetailLevel, instructions string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "openrouter", "summarize", "transcript text required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "openrouter", "summarize", "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt(detail, instructions)},
			{Role: "user", Content: text},
		},
		Temperature: 0,
	}
	return c.completionContent(ctx, payload, "summarize")
}

// HealthCheck issues a fast ping to verify the API key and model are
// usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "openrouter", "health", "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Respond with the single word OK."},
			{Role: "user", Content: "OK?"},
		},
		Temperature: 0,
	}
	_, err := c.completionContent(ctx, payload, "health")
	return err
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		// Some providers return the streaming schema even when
		// stream=false, so tolerate it as a fallback.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) completionContent(ctx context.Context, payload chatCompletionRequest, op string) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "/chat/completions")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "openrouter", op, "build url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "openrouter", op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "openrouter", op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", services.Wrap(services.ErrProviderUnavailable, "openrouter", op, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrProviderUnavailable, "openrouter", op, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError("openrouter", op, resp, body)
	}
	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrProviderUnavailable, "openrouter", op, "decode response", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrContentRejected, "openrouter", op,
			fmt.Sprintf("api error: %s", strings.TrimSpace(completion.Error.Message)), nil)
	}
	for _, choice := range completion.Choices {
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, nil
		}
	}
	return "", services.Wrap(services.ErrProviderUnavailable, "openrouter", op, "empty completion content", nil)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// httpStatusError classifies provider status codes into the services error
// taxonomy: 429 is a rate limit, 408 and 5xx mean the provider is
// unavailable, and any other 4xx is a content rejection that must not be
// retried.
type httpStatusError struct {
	provider   string
	op         string
	statusCode int
	body       string
	retryAfter time.Duration
}

func statusError(provider, op string, resp *http.Response, body []byte) error {
	retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
	return &httpStatusError{
		provider:   provider,
		op:         op,
		statusCode: resp.StatusCode,
		body:       strings.TrimSpace(string(body)),
		retryAfter: retryAfter,
	}
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: %s: http %d: %s", e.provider, e.op, e.statusCode, e.body)
}

func (e *httpStatusError) Unwrap() error {
	switch {
	case e.statusCode == http.StatusTooManyRequests:
		return services.ErrRateLimited
	case e.statusCode == http.StatusRequestTimeout, e.statusCode >= http.StatusInternalServerError:
		return services.ErrProviderUnavailable
	default:
		return services.ErrContentRejected
	}
}

// RetryAfter returns the server-requested delay, zero when absent.
func (e *httpStatusError) RetryAfter() time.Duration { return e.retryAfter }

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
