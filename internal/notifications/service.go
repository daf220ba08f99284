package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recap/internal/config"
	"recap/internal/store"
)

const userAgent = "Recap/0.1"

// Service is the push-notification surface the pipeline talks to. Delivery
// is best effort: a failure here never rolls back settlement or persisted
// entities.
type Service interface {
	NotifyRunCompleted(ctx context.Context, record *store.RunRecord, failed int) error
	NotifyRunFailed(ctx context.Context, account, kind string, cause error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		cfg:      cfg,
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	cfg      config.Notifications
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, record *store.RunRecord, failed int) error {
	if !n.cfg.RunCompleted || record == nil {
		return nil
	}
	var title, message string
	if failed == 0 {
		title = "Recap - Run Complete"
		message = fmt.Sprintf("%s run finished: %d items summarized", record.Kind, record.ItemCount)
	} else {
		title = "Recap - Run Complete (with errors)"
		message = fmt.Sprintf("%s run finished: %d summarized, %d failed", record.Kind, record.ItemCount, failed)
	}
	if hours := record.DurationSeconds / 3600; hours >= 1 {
		message = fmt.Sprintf("%s (%.1fh of content)", message, hours)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"recap", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, account, kind string, cause error) error {
	if !n.cfg.RunFailed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString(strings.TrimSpace(kind))
	builder.WriteString(" run failed")
	if account = strings.TrimSpace(account); account != "" {
		builder.WriteString(" for ")
		builder.WriteString(account)
	}
	builder.WriteString(": ")
	if cause != nil {
		builder.WriteString(strings.TrimSpace(cause.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Recap - Run Failed",
		message:  builder.String(),
		tags:     []string{"recap", "run", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Recap - Test",
		message:  "Notification system test",
		tags:     []string{"recap", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, *store.RunRecord, int) error { return nil }

func (noopService) NotifyRunFailed(context.Context, string, string, error) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
