package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// Item is one unit of work for the scheduler, keyed by the entity's
// content id.
type Item struct {
	Key  string
	Text string
}

// Result is the settled outcome for one item: a summary or the error that
// exhausted its retries.
type Result struct {
	Summary string
	Err     error
}

// Scheduler fans summarization requests out across fixed-size chunks. All
// requests in a chunk run concurrently; the scheduler waits for every one
// to settle before starting the next chunk and sleeps a fixed cooldown in
// between to respect provider rate limits. One item's failure never
// cancels its siblings.
type Scheduler struct {
	provider    Provider
	logger      *slog.Logger
	chunkSize   int
	cooldown    time.Duration
	maxAttempts int
	budget      int
	detail      DetailLevel
	sleep       func(ctx context.Context, d time.Duration) error
}

// SchedulerOption adjusts scheduler construction.
type SchedulerOption func(*Scheduler)

// WithChunkSize overrides the configured chunk size. Smaller chunks trade
// throughput for tighter fault containment.
func WithChunkSize(size int) SchedulerOption {
	return func(s *Scheduler) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithSleeper replaces the inter-chunk and backoff sleep, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewScheduler creates a scheduler over the given provider using the
// enrichment configuration for chunk size, cooldown, retry budget, and
// context budget.
func NewScheduler(provider Provider, cfg config.Enrichment, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	detail, ok := ParseDetailLevel(cfg.DetailLevel)
	if !ok {
		detail = DetailShort
	}
	scheduler := &Scheduler{
		provider:    provider,
		logger:      logging.NewComponentLogger(logger, "enrich"),
		chunkSize:   cfg.BulkChunkSize,
		cooldown:    time.Duration(cfg.CooldownSeconds) * time.Second,
		maxAttempts: cfg.MaxAttempts,
		budget:      cfg.ContextBudget,
		detail:      detail,
		sleep:       sleepContext,
	}
	if scheduler.chunkSize <= 0 {
		scheduler.chunkSize = 10
	}
	if scheduler.maxAttempts <= 0 {
		scheduler.maxAttempts = 3
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	return scheduler
}

// Run processes items chunk by chunk and returns a result per item key.
// The returned map always holds an entry for every input item. Run only
// fails wholesale when the context is cancelled between chunks; individual
// request failures are recorded per item.
func (s *Scheduler) Run(ctx context.Context, items []Item, instructions string) map[string]Result {
	results := make(map[string]Result, len(items))
	if len(items) == 0 {
		return results
	}
	var mu sync.Mutex
	for start := 0; start < len(items); start += s.chunkSize {
		if start > 0 && s.cooldown > 0 {
			if err := s.sleep(ctx, s.cooldown); err != nil {
				s.failRemaining(results, &mu, items[start:], err)
				return results
			}
		}
		end := start + s.chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]
		s.logger.Debug("dispatching chunk",
			logging.Int("size", len(chunk)),
			logging.Int("offset", start),
			logging.String(logging.FieldProvider, s.provider.Name()))

		var wg sync.WaitGroup
		for _, item := range chunk {
			wg.Add(1)
			go func(item Item) {
				defer wg.Done()
				summary, err := s.summarizeWithRetry(ctx, item, instructions)
				mu.Lock()
				results[item.Key] = Result{Summary: summary, Err: err}
				mu.Unlock()
			}(item)
		}
		wg.Wait()
	}
	return results
}

// summarizeWithRetry issues one request with the automatic retry policy:
// up to maxAttempts attempts, exponential backoff with a cap, retried only
// for rate limits, server errors, and connection failures. Content
// rejection and context cancellation fail immediately.
func (s *Scheduler) summarizeWithRetry(ctx context.Context, item Item, instructions string) (string, error) {
	text := truncate(item.Text, s.budget)
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		summary, err := s.provider.Summarize(ctx, text, s.detail, instructions)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || attempt == s.maxAttempts {
			break
		}
		delay := retryDelay(attempt, err)
		s.logger.Warn("request failed, retrying",
			logging.String(logging.FieldContentID, item.Key),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return "", sleepErr
		}
	}
	s.logger.Error("request exhausted retries",
		logging.String(logging.FieldContentID, item.Key),
		logging.Error(lastErr))
	return "", lastErr
}

func (s *Scheduler) failRemaining(results map[string]Result, mu *sync.Mutex, items []Item, err error) {
	mu.Lock()
	defer mu.Unlock()
	for _, item := range items {
		if _, done := results[item.Key]; !done {
			results[item.Key] = Result{Err: err}
		}
	}
}

// retryDelay doubles the base delay per attempt up to a cap, or honors the
// server-requested delay when the error carries one.
func retryDelay(attempt int, err error) time.Duration {
	var carrier retryAfterCarrier
	if errors.As(err, &carrier) {
		if after := carrier.RetryAfter(); after > 0 {
			if after > retryMaxDelay {
				return retryMaxDelay
			}
			return after
		}
	}
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
