package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"recap/internal/enrich"
	"recap/internal/fetch"
	"recap/internal/ledger"
	"recap/internal/logging"
	"recap/internal/pipeline"
	"recap/internal/services"
	"recap/internal/store"
	"recap/internal/testsupport"
	"recap/internal/transcript"
)

type fakeFetcher struct {
	items    []fetch.Item
	err      error
	calls    int
	lastOpts fetch.Options
}

func (f *fakeFetcher) Fetch(_ context.Context, _ []fetch.Locator, _ int, opts fetch.Options) ([]fetch.Item, error) {
	f.calls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// fakeProvider keys attempts by the first token of the text, which the
// test fixtures set to the content id.
type fakeProvider struct {
	mu       sync.Mutex
	attempts map[string]int
	failWith map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		attempts: make(map[string]int),
		failWith: make(map[string]error),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Summarize(_ context.Context, text string, _ enrich.DetailLevel, _ string) (string, error) {
	key, _, _ := strings.Cut(text, " ")
	p.mu.Lock()
	p.attempts[key]++
	err := p.failWith[key]
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "summary of " + key, nil
}

func (p *fakeProvider) attemptCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[key]
}

type fakeNotifier struct {
	completed []*store.RunRecord
	failed    []string
}

func (n *fakeNotifier) NotifyRunCompleted(_ context.Context, record *store.RunRecord, _ int) error {
	n.completed = append(n.completed, record)
	return nil
}

func (n *fakeNotifier) NotifyRunFailed(_ context.Context, account, _ string, _ error) error {
	n.failed = append(n.failed, account)
	return nil
}

func (n *fakeNotifier) TestNotification(context.Context) error { return nil }

type fixture struct {
	store    *store.Store
	quota    *ledger.Ledger
	fetcher  *fakeFetcher
	provider *fakeProvider
	notifier *fakeNotifier
	pipeline *pipeline.Pipeline
}

func newFixture(t *testing.T, limit int, fetcher *fakeFetcher, provider *fakeProvider) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.MaxAttempts = 1
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewAccount(t, st, "acct-1", "pro", nil)

	logger := logging.NewNop()
	quota := ledger.New(st, ledger.StaticOracle{
		Plan: ledger.Plan{Tier: "pro", Period: ledger.PeriodDaily, Limit: limit},
	}, logger)
	notifier := &fakeNotifier{}

	p, err := pipeline.New(pipeline.Deps{
		Quota:      quota,
		Fetcher:    fetcher,
		Entities:   st,
		Reconciler: pipeline.NewReconciler(quota, st, logger),
		Provider:   provider,
		Notifier:   notifier,
		Enrichment: cfg.Enrichment,
		Fetch:      cfg.Fetch,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &fixture{store: st, quota: quota, fetcher: fetcher, provider: provider, notifier: notifier, pipeline: p}
}

func testItem(id string) fetch.Item {
	return fetch.Item{
		ContentID:   id,
		Title:       "Video " + id,
		ChannelName: "Tech Weekly",
		ChannelURL:  "https://example.com/channel/UCtech",
		ChannelID:   "UCtech",
		Fragments: []transcript.Fragment{
			{Text: id + " opening remarks", Start: 0, Duration: 4},
			{Text: "closing remarks", Start: 30, Duration: 4},
		},
		DurationHint: 120,
	}
}

func testItems(n int) []fetch.Item {
	items := make([]fetch.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, testItem(fmt.Sprintf("video-%03d", i)))
	}
	return items
}

func consumed(t *testing.T, st *store.Store, account string) int {
	t.Helper()
	record, err := st.GetAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if record == nil {
		t.Fatalf("account %s not found", account)
	}
	return record.Consumed
}

func TestExecuteDigestRun(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems(3)}
	fx := newFixture(t, 10, fetcher, newFakeProvider())

	outcome, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Kind:     pipeline.RunDigest,
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 5}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(outcome.Produced) != 3 {
		t.Fatalf("produced = %d, want 3", len(outcome.Produced))
	}
	if len(outcome.FailedContentIDs) != 0 {
		t.Fatalf("failed = %v, want none", outcome.FailedContentIDs)
	}
	if outcome.Record == nil {
		t.Fatal("expected run record")
	}
	if outcome.Record.ItemCount != 3 {
		t.Errorf("record item count = %d, want 3", outcome.Record.ItemCount)
	}
	if outcome.Record.Digest != store.DigestPending {
		t.Errorf("record digest = %q, want pending", outcome.Record.Digest)
	}
	if got := consumed(t, fx.store, "acct-1"); got != 3 {
		t.Errorf("consumed = %d, want 3", got)
	}

	// Digest entities are scoped to the run token.
	entity, err := fx.store.GetEntity(context.Background(), "acct-1", "video-000", outcome.RunToken)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if entity == nil {
		t.Fatal("expected persisted entity under run scope")
	}
	if entity.SummaryState != store.SummaryCompleted {
		t.Errorf("summary state = %q, want completed", entity.SummaryState)
	}
	if entity.Summary != "summary of video-000" {
		t.Errorf("summary = %q", entity.Summary)
	}

	if len(fx.notifier.completed) != 1 {
		t.Errorf("completed notifications = %d, want 1", len(fx.notifier.completed))
	}
}

func TestExecutePartialEnrichmentFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.failWith["video-003"] = services.Wrap(services.ErrContentRejected, "fake", "summarize", "rejected", nil)
	fetcher := &fakeFetcher{items: testItems(10)}
	fx := newFixture(t, 20, fetcher, provider)

	outcome, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Kind:     pipeline.RunDigest,
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 10}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(outcome.Produced) != 9 {
		t.Fatalf("produced = %d, want 9", len(outcome.Produced))
	}
	if len(outcome.FailedContentIDs) != 1 || outcome.FailedContentIDs[0] != "video-003" {
		t.Fatalf("failed = %v, want [video-003]", outcome.FailedContentIDs)
	}
	if outcome.Record == nil || outcome.Record.ItemCount != 9 {
		t.Fatalf("record = %+v, want item count 9", outcome.Record)
	}
	if got := consumed(t, fx.store, "acct-1"); got != 9 {
		t.Errorf("consumed = %d, want 9", got)
	}

	entity, err := fx.store.GetEntity(context.Background(), "acct-1", "video-003", outcome.RunToken)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if entity == nil || entity.SummaryState != store.SummaryFailed {
		t.Fatalf("failed entity state = %+v, want failed", entity)
	}
}

func TestExecuteAllItemsFailedRefundsInFull(t *testing.T) {
	provider := newFakeProvider()
	provider.failWith["video-000"] = services.Wrap(services.ErrContentRejected, "fake", "summarize", "rejected", nil)
	provider.failWith["video-001"] = services.Wrap(services.ErrContentRejected, "fake", "summarize", "rejected", nil)
	fetcher := &fakeFetcher{items: testItems(2)}
	fx := newFixture(t, 10, fetcher, provider)

	outcome, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Kind:     pipeline.RunChannel,
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 2}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Record != nil {
		t.Errorf("record = %+v, want none when nothing was produced", outcome.Record)
	}
	if len(outcome.FailedContentIDs) != 2 {
		t.Errorf("failed = %v, want both items", outcome.FailedContentIDs)
	}
	if got := consumed(t, fx.store, "acct-1"); got != 0 {
		t.Errorf("consumed = %d after full refund, want 0", got)
	}
}

func TestExecuteInsufficientCapacity(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems(5)}
	fx := newFixture(t, 10, fetcher, newFakeProvider())
	if err := fx.store.AddConsumed(context.Background(), "acct-1", 8); err != nil {
		t.Fatalf("AddConsumed: %v", err)
	}

	_, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 5}},
	})
	if !errors.Is(err, services.ErrInsufficientCapacity) {
		t.Fatalf("err = %v, want insufficient capacity", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times before reservation", fetcher.calls)
	}
	if got := consumed(t, fx.store, "acct-1"); got != 8 {
		t.Errorf("consumed = %d, want 8", got)
	}
	if len(fx.notifier.failed) != 1 {
		t.Errorf("failure notifications = %d, want 1", len(fx.notifier.failed))
	}
}

func TestExecuteFetchFailureReleasesTicket(t *testing.T) {
	fetcher := &fakeFetcher{err: services.Wrap(services.ErrFetchUnavailable, "fetch", "channel", "feed down", nil)}
	fx := newFixture(t, 10, fetcher, newFakeProvider())

	_, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 5}},
	})
	if !errors.Is(err, services.ErrFetchUnavailable) {
		t.Fatalf("err = %v, want fetch unavailable", err)
	}
	if got := consumed(t, fx.store, "acct-1"); got != 0 {
		t.Errorf("consumed = %d after release, want 0", got)
	}
}

func TestExecuteEmptyFetchIsNotAnError(t *testing.T) {
	fetcher := &fakeFetcher{}
	fx := newFixture(t, 10, fetcher, newFakeProvider())

	outcome, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 5}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(outcome.Produced) != 0 || outcome.Record != nil {
		t.Fatalf("outcome = %+v, want zero output and no record", outcome)
	}
	if got := consumed(t, fx.store, "acct-1"); got != 0 {
		t.Errorf("consumed = %d after full release, want 0", got)
	}
	if len(fx.notifier.completed) != 0 {
		t.Errorf("completed notifications = %d, want 0", len(fx.notifier.completed))
	}
}

func TestExecuteForwardsFetchOptions(t *testing.T) {
	fetcher := &fakeFetcher{}
	fx := newFixture(t, 10, fetcher, newFakeProvider())
	window := fetch.Window{From: time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)}

	_, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:      "acct-1",
		Locators:     []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 5}},
		DateWindow:   window,
		SkipCaptions: true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fetcher.lastOpts.IncludeCaptions {
		t.Error("IncludeCaptions = true, want false when captions are skipped")
	}
	if !fetcher.lastOpts.DateWindow.From.Equal(window.From) {
		t.Errorf("DateWindow.From = %v, want %v", fetcher.lastOpts.DateWindow.From, window.From)
	}
}

func TestExecuteSkipsAlreadySummarized(t *testing.T) {
	provider := newFakeProvider()
	fetcher := &fakeFetcher{items: testItems(2)}
	fx := newFixture(t, 10, fetcher, provider)

	// Channel runs share a run scope, so the second invocation sees the
	// first run's summaries.
	request := pipeline.Request{
		Account:  "acct-1",
		Kind:     pipeline.RunChannel,
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 2}},
	}
	if _, err := fx.pipeline.Execute(context.Background(), request); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	outcome, err := fx.pipeline.Execute(context.Background(), request)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if got := provider.attemptCount("video-000"); got != 1 {
		t.Errorf("provider attempts = %d, want 1 (second run reuses summary)", got)
	}
	if len(outcome.Produced) != 2 {
		t.Errorf("produced = %d, want 2 (existing summaries still count)", len(outcome.Produced))
	}
	// Quota reflects both runs because both produced completed entities.
	if got := consumed(t, fx.store, "acct-1"); got != 4 {
		t.Errorf("consumed = %d, want 4", got)
	}
}

func TestExecuteInstructionsForceRegeneration(t *testing.T) {
	provider := newFakeProvider()
	fetcher := &fakeFetcher{items: testItems(1)}
	fx := newFixture(t, 10, fetcher, provider)

	request := pipeline.Request{
		Account:  "acct-1",
		Kind:     pipeline.RunChannel,
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 1}},
	}
	if _, err := fx.pipeline.Execute(context.Background(), request); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	request.Instructions = "focus on the numbers"
	if _, err := fx.pipeline.Execute(context.Background(), request); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if got := provider.attemptCount("video-000"); got != 2 {
		t.Errorf("provider attempts = %d, want 2 (instructions regenerate)", got)
	}
}

func TestExecuteMatchesSubscribedChannel(t *testing.T) {
	fetcher := &fakeFetcher{items: testItems(1)}
	fx := newFixture(t, 10, fetcher, newFakeProvider())
	if err := fx.store.AddChannel(context.Background(), &store.Channel{
		Account:    "acct-1",
		Name:       "Tech Weekly Official",
		URL:        "https://example.com/channel/UCtech",
		ExternalID: "UCtech",
	}); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	outcome, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account:  "acct-1",
		Kind:     pipeline.RunChannel,
		Locators: []fetch.Locator{{Kind: fetch.LocatorChannel, ChannelID: "UCtech", Limit: 1}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entity, err := fx.store.GetEntity(context.Background(), "acct-1", "video-000", "")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if entity.ChannelID != "UCtech" || entity.ChannelName != "Tech Weekly Official" {
		t.Errorf("attribution = (%q, %q), want matched channel", entity.ChannelID, entity.ChannelName)
	}
	if entity.ChannelLabel != "Tech Weekly" {
		t.Errorf("channel label = %q, want raw fetched name", entity.ChannelLabel)
	}
	if len(outcome.Produced) != 1 {
		t.Errorf("produced = %d, want 1", len(outcome.Produced))
	}
}

func TestExecuteValidatesRequest(t *testing.T) {
	fx := newFixture(t, 10, &fakeFetcher{}, newFakeProvider())

	if _, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Locators: []fetch.Locator{{Kind: fetch.LocatorURL, URL: "https://example.com/watch?v=abc123"}},
	}); !errors.Is(err, services.ErrValidation) {
		t.Errorf("missing account: err = %v, want validation", err)
	}
	if _, err := fx.pipeline.Execute(context.Background(), pipeline.Request{
		Account: "acct-1",
	}); !errors.Is(err, services.ErrValidation) {
		t.Errorf("missing locators: err = %v, want validation", err)
	}
}

func TestParseRunKind(t *testing.T) {
	cases := []struct {
		in   string
		want pipeline.RunKind
		ok   bool
	}{
		{"digest", pipeline.RunDigest, true},
		{" URL ", pipeline.RunURL, true},
		{"Channel", pipeline.RunChannel, true},
		{"bulk", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := pipeline.ParseRunKind(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseRunKind(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
