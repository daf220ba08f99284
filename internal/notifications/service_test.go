package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"recap/internal/config"
	"recap/internal/notifications"
	"recap/internal/store"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.Topic = ""
	svc := notifications.NewService(cfg.Notifications)
	record := &store.RunRecord{Kind: "digest", ItemCount: 3}
	if err := svc.NotifyRunCompleted(context.Background(), record, 0); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func captureServer(t *testing.T) (*httptest.Server, *struct {
	title    string
	tags     string
	priority string
	body     string
	calls    int
}) {
	t.Helper()
	captured := &struct {
		title    string
		tags     string
		priority string
		body     string
		calls    int
	}{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		captured.calls++
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		captured.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestNotifyRunCompletedFormatsPayload(t *testing.T) {
	server, captured := captureServer(t)
	cfg := config.Default()
	cfg.Notifications.Topic = server.URL
	cfg.Notifications.RequestTimeout = 5
	svc := notifications.NewService(cfg.Notifications)

	record := &store.RunRecord{Kind: "digest", ItemCount: 9, DurationSeconds: 7200}
	if err := svc.NotifyRunCompleted(context.Background(), record, 1); err != nil {
		t.Fatalf("notification returned error: %v", err)
	}
	if captured.title != "Recap - Run Complete (with errors)" {
		t.Fatalf("title = %q", captured.title)
	}
	if captured.body != "digest run finished: 9 summarized, 1 failed (2.0h of content)" {
		t.Fatalf("body = %q", captured.body)
	}
	if captured.tags != "recap,run,completed" {
		t.Fatalf("tags = %q", captured.tags)
	}
	if captured.priority != "" {
		t.Fatalf("priority = %q", captured.priority)
	}
}

func TestNotifyRunFailedUsesHighPriority(t *testing.T) {
	server, captured := captureServer(t)
	cfg := config.Default()
	cfg.Notifications.Topic = server.URL
	svc := notifications.NewService(cfg.Notifications)

	err := svc.NotifyRunFailed(context.Background(), "acct-1", "channel", errors.New("source fetch unavailable"))
	if err != nil {
		t.Fatalf("notification returned error: %v", err)
	}
	if captured.priority != "high" {
		t.Fatalf("priority = %q", captured.priority)
	}
	if captured.body != "channel run failed for acct-1: source fetch unavailable" {
		t.Fatalf("body = %q", captured.body)
	}
}

func TestSuppressedEventsSkipDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.Topic = server.URL
	cfg.Notifications.RunCompleted = false
	cfg.Notifications.RunFailed = false
	svc := notifications.NewService(cfg.Notifications)

	record := &store.RunRecord{Kind: "digest", ItemCount: 2}
	if err := svc.NotifyRunCompleted(context.Background(), record, 0); err != nil {
		t.Fatalf("suppressed completion errored: %v", err)
	}
	if err := svc.NotifyRunFailed(context.Background(), "acct-1", "url", errors.New("x")); err != nil {
		t.Fatalf("suppressed failure errored: %v", err)
	}
}

func TestDeliveryErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.Topic = server.URL
	svc := notifications.NewService(cfg.Notifications)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected delivery error to surface")
	}
}
