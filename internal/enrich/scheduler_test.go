package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
)

type fakeProvider struct {
	mu        sync.Mutex
	attempts  map[string]int
	failWith  map[string]error
	failUntil map[string]int
	lastText  map[string]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		attempts:  make(map[string]int),
		failWith:  make(map[string]error),
		failUntil: make(map[string]int),
		lastText:  make(map[string]string),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Summarize(_ context.Context, text string, _ DetailLevel, _ string) (string, error) {
	key := text
	if idx := strings.IndexByte(text, ' '); idx > 0 {
		key = text[:idx]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[key]++
	p.lastText[key] = text
	if err, ok := p.failWith[key]; ok {
		return "", err
	}
	if until, ok := p.failUntil[key]; ok && p.attempts[key] <= until {
		return "", services.Wrap(services.ErrRateLimited, "fake", "summarize", "slow down", nil)
	}
	return "summary of " + key, nil
}

func (p *fakeProvider) attemptCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[key]
}

type sleepRecorder struct {
	mu     sync.Mutex
	slept  []time.Duration
	cancel context.CancelFunc
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return ctx.Err()
}

func testItems(n int) []Item {
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("item-%02d", i)
		items = append(items, Item{Key: key, Text: key + " transcript text"})
	}
	return items
}

func testEnrichmentConfig() config.Enrichment {
	return config.Enrichment{
		BulkChunkSize:   10,
		CustomChunkSize: 5,
		MaxAttempts:     3,
		CooldownSeconds: 1,
		ContextBudget:   48000,
		DetailLevel:     "short",
	}
}

func TestRunIsolatesSingleFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.failWith["item-03"] = services.Wrap(services.ErrProviderUnavailable, "fake", "summarize", "boom", nil)
	recorder := &sleepRecorder{}
	scheduler := NewScheduler(provider, testEnrichmentConfig(), logging.NewNop(),
		WithChunkSize(5), WithSleeper(recorder.sleep))

	results := scheduler.Run(context.Background(), testItems(10), "")
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	completed, failed := 0, 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		} else {
			completed++
		}
	}
	if completed != 9 || failed != 1 {
		t.Fatalf("expected 9 completed and 1 failed, got %d/%d", completed, failed)
	}
	if !errors.Is(results["item-03"].Err, services.ErrProviderUnavailable) {
		t.Fatalf("unexpected failure error: %v", results["item-03"].Err)
	}
	if got := provider.attemptCount("item-03"); got != 3 {
		t.Fatalf("expected 3 attempts for failing item, got %d", got)
	}
	if got := provider.attemptCount("item-00"); got != 1 {
		t.Fatalf("expected 1 attempt for healthy item, got %d", got)
	}
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	provider := newFakeProvider()
	provider.failUntil["item-00"] = 2
	recorder := &sleepRecorder{}
	scheduler := NewScheduler(provider, testEnrichmentConfig(), logging.NewNop(),
		WithSleeper(recorder.sleep))

	results := scheduler.Run(context.Background(), testItems(1), "")
	if results["item-00"].Err != nil {
		t.Fatalf("expected recovery, got %v", results["item-00"].Err)
	}
	if got := provider.attemptCount("item-00"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRunNeverRetriesContentRejection(t *testing.T) {
	provider := newFakeProvider()
	provider.failWith["item-00"] = services.Wrap(services.ErrContentRejected, "fake", "summarize", "bad request", nil)
	recorder := &sleepRecorder{}
	scheduler := NewScheduler(provider, testEnrichmentConfig(), logging.NewNop(),
		WithSleeper(recorder.sleep))

	results := scheduler.Run(context.Background(), testItems(1), "")
	if !errors.Is(results["item-00"].Err, services.ErrContentRejected) {
		t.Fatalf("unexpected error: %v", results["item-00"].Err)
	}
	if got := provider.attemptCount("item-00"); got != 1 {
		t.Fatalf("content rejection must not retry, got %d attempts", got)
	}
}

func TestRunCoolsDownBetweenChunks(t *testing.T) {
	provider := newFakeProvider()
	recorder := &sleepRecorder{}
	scheduler := NewScheduler(provider, testEnrichmentConfig(), logging.NewNop(),
		WithChunkSize(5), WithSleeper(recorder.sleep))

	scheduler.Run(context.Background(), testItems(10), "")
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.slept) != 1 || recorder.slept[0] != time.Second {
		t.Fatalf("expected one 1s cooldown between two chunks, got %v", recorder.slept)
	}
}

func TestRunCancellationFailsRemainingItems(t *testing.T) {
	provider := newFakeProvider()
	ctx, cancel := context.WithCancel(context.Background())
	recorder := &sleepRecorder{cancel: cancel}
	scheduler := NewScheduler(provider, testEnrichmentConfig(), logging.NewNop(),
		WithChunkSize(5), WithSleeper(recorder.sleep))

	results := scheduler.Run(ctx, testItems(10), "")
	if len(results) != 10 {
		t.Fatalf("expected a result for every item, got %d", len(results))
	}
	for i := 5; i < 10; i++ {
		key := fmt.Sprintf("item-%02d", i)
		if !errors.Is(results[key].Err, context.Canceled) {
			t.Fatalf("expected cancellation for %s, got %v", key, results[key].Err)
		}
	}
}

func TestRunTruncatesOverBudgetText(t *testing.T) {
	provider := newFakeProvider()
	cfg := testEnrichmentConfig()
	cfg.ContextBudget = 20
	scheduler := NewScheduler(provider, cfg, logging.NewNop(),
		WithSleeper((&sleepRecorder{}).sleep))

	items := []Item{{Key: "item-00", Text: "item-00 " + strings.Repeat("x", 100)}}
	scheduler.Run(context.Background(), items, "")
	provider.mu.Lock()
	sent := provider.lastText["item-00"]
	provider.mu.Unlock()
	if !strings.HasSuffix(sent, truncationMarker) {
		t.Fatalf("expected truncation marker, got %q", sent)
	}
	if len([]rune(sent)) != 20+len([]rune(truncationMarker)) {
		t.Fatalf("unexpected truncated length: %d", len([]rune(sent)))
	}
}

type retryAfterError struct{ after time.Duration }

func (e retryAfterError) Error() string { return "rate limited" }

func (e retryAfterError) Unwrap() error { return services.ErrRateLimited }

func (e retryAfterError) RetryAfter() time.Duration { return e.after }

func TestRetryDelay(t *testing.T) {
	plain := services.Wrap(services.ErrProviderUnavailable, "fake", "summarize", "boom", nil)
	if got := retryDelay(1, plain); got != retryBaseDelay {
		t.Fatalf("attempt 1 delay = %v", got)
	}
	if got := retryDelay(2, plain); got != 2*retryBaseDelay {
		t.Fatalf("attempt 2 delay = %v", got)
	}
	if got := retryDelay(10, plain); got != retryMaxDelay {
		t.Fatalf("expected capped delay, got %v", got)
	}
	if got := retryDelay(1, retryAfterError{after: 3 * time.Second}); got != 3*time.Second {
		t.Fatalf("expected server-requested delay, got %v", got)
	}
	if got := retryDelay(1, retryAfterError{after: time.Minute}); got != retryMaxDelay {
		t.Fatalf("expected capped server delay, got %v", got)
	}
}

func TestTruncateKeepsShortText(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("truncate altered under-budget text: %q", got)
	}
	if got := truncate("whatever", 0); got != "whatever" {
		t.Fatalf("zero budget must disable truncation: %q", got)
	}
}
