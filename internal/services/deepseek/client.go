// Package deepseek implements the enrichment provider contract against the
// DeepSeek chat completion API.
package deepseek

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
	defaultBaseURL     = "https://api.deepseek.com"
	defaultModel       = "deepseek-chat"
	defaultHTTPTimeout = 60 * time.Second
)

// Client wraps the DeepSeek chat completion API. One request per call; the
// scheduler owns retries and depends on the error classification here.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the DeepSeek client.
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
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient constructs a DeepSeek API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
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
func (c *Client) Name() string { return "deepseek" }

// Summarize implements enrich.Provider. Safe for concurrent use.
func (c *Client) Summarize(ctx context.Context, text string, detail enrich.DetailLevel, instructions string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "deepseek", "summarize", "transcript text required", nil)
	}
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "deepseek", "summarize", "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt(detail, instructions)},
			{Role: "user", Content: text},
		},
		Temperature: 0,
	}
	return c.completionContent(ctx, payload, "summarize")
}

// HealthCheck verifies the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "deepseek", "health", "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.model,
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
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) completionContent(ctx context.Context, payload chatCompletionRequest, op string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/chat/completions")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "deepseek", op, "build url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "deepseek", op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "deepseek", op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", services.Wrap(services.ErrProviderUnavailable, "deepseek", op, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrProviderUnavailable, "deepseek", op, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", classifyStatus(resp, body, op)
	}
	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrProviderUnavailable, "deepseek", op, "decode response", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrContentRejected, "deepseek", op,
			fmt.Sprintf("api error: %s", strings.TrimSpace(completion.Error.Message)), nil)
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrProviderUnavailable, "deepseek", op, "empty choices", nil)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrProviderUnavailable, "deepseek", op, "empty completion content", nil)
	}
	return content, nil
}

// statusError splits provider status codes the same way every provider
// must: 429 is a rate limit, 408 and 5xx mean unavailable, any other 4xx
// is a content rejection.
type statusError struct {
	op         string
	statusCode int
	body       string
	retryAfter time.Duration
}

func classifyStatus(resp *http.Response, body []byte, op string) error {
	var retryAfter time.Duration
	if value := strings.TrimSpace(resp.Header.Get("Retry-After")); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			retryAfter = time.Duration(seconds) * time.Second
		} else if when, err := http.ParseTime(value); err == nil {
			if delay := time.Until(when); delay > 0 {
				retryAfter = delay
			}
		}
	}
	return &statusError{
		op:         op,
		statusCode: resp.StatusCode,
		body:       strings.TrimSpace(string(body)),
		retryAfter: retryAfter,
	}
}

func (e *statusError) Error() string {
	return fmt.Sprintf("deepseek: %s: http %d: %s", e.op, e.statusCode, e.body)
}

func (e *statusError) Unwrap() error {
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
func (e *statusError) RetryAfter() time.Duration { return e.retryAfter }
