package deepseek

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recap/internal/enrich"
	"recap/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestSummarize(t *testing.T) {
	var gotPath, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"content":"the summary"}}]}`))
	})

	summary, err := client.Summarize(context.Background(), "transcript", enrich.DetailShort, "")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "the summary" {
		t.Fatalf("summary = %q", summary)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth = %q", gotAuth)
	}
}

func TestSummarizeStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		retryable bool
	}{
		{name: "rate limit", status: http.StatusTooManyRequests, want: services.ErrRateLimited, retryable: true},
		{name: "server error", status: http.StatusInternalServerError, want: services.ErrProviderUnavailable, retryable: true},
		{name: "timeout status", status: http.StatusRequestTimeout, want: services.ErrProviderUnavailable, retryable: true},
		{name: "content rejection", status: http.StatusUnprocessableEntity, want: services.ErrContentRejected, retryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.Summarize(context.Background(), "transcript", enrich.DetailShort, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("classification = %v, want %v", err, tt.want)
			}
			if services.IsRetryable(err) != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", services.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestSummarizeCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Summarize(context.Background(), "transcript", enrich.DetailShort, "")
	var carrier interface{ RetryAfter() time.Duration }
	if !errors.As(err, &carrier) || carrier.RetryAfter() != 5*time.Second {
		t.Fatalf("expected 5s retry-after, got %v", err)
	}
}

func TestSummarizeRequiresAPIKey(t *testing.T) {
	client := NewClient("")
	_, err := client.Summarize(context.Background(), "transcript", enrich.DetailShort, "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSummarizeEmptyContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"  "}}]}`))
	})

	_, err := client.Summarize(context.Background(), "transcript", enrich.DetailShort, "")
	if !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected provider-unavailable for empty content, got %v", err)
	}
}
