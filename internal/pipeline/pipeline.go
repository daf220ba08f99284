package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"recap/internal/attribution"
	"recap/internal/config"
	"recap/internal/enrich"
	"recap/internal/fetch"
	"recap/internal/ledger"
	"recap/internal/logging"
	"recap/internal/notifications"
	"recap/internal/services"
	"recap/internal/store"
	"recap/internal/transcript"
)

// RunKind names the shape of one pipeline invocation.
type RunKind string

const (
	// RunDigest is the scheduled bulk run over an account's subscribed
	// channels. Entities are scoped to the run token so repeat content
	// across independent digests stays distinguishable.
	RunDigest RunKind = "digest"
	// RunChannel is an ad-hoc analysis of one or more channels.
	RunChannel RunKind = "channel"
	// RunURL is a single direct-URL enrichment.
	RunURL RunKind = "url"
)

// ParseRunKind converts a string into a known RunKind.
func ParseRunKind(value string) (RunKind, bool) {
	switch RunKind(strings.ToLower(strings.TrimSpace(value))) {
	case RunDigest:
		return RunDigest, true
	case RunChannel:
		return RunChannel, true
	case RunURL:
		return RunURL, true
	}
	return "", false
}

// EntityStore is the slice of persistence the pipeline needs for entities
// and channel attribution.
type EntityStore interface {
	UpsertEntity(ctx context.Context, entity *store.Entity) (int64, error)
	GetEntity(ctx context.Context, account, contentID, runScope string) (*store.Entity, error)
	SetSummaryState(ctx context.Context, id int64, state store.SummaryState) error
	SetSummary(ctx context.Context, id int64, summary string, state store.SummaryState) error
	ChannelsByAccount(ctx context.Context, account string) ([]*store.Channel, error)
}

var _ EntityStore = (*store.Store)(nil)

// Request describes one pipeline invocation.
type Request struct {
	Account      string
	Kind         RunKind
	Locators     []fetch.Locator
	Instructions string
	DateWindow   fetch.Window
	SkipCaptions bool
}

// Outcome reports what one invocation produced. Produced holds entities
// whose summary reached the completed state; FailedContentIDs lists items
// whose enrichment exhausted retries.
type Outcome struct {
	RunToken         string
	Produced         []*store.Entity
	FailedContentIDs []string
	Record           *store.RunRecord
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Quota      Quota
	Fetcher    fetch.Fetcher
	Entities   EntityStore
	Reconciler *Reconciler
	Provider   enrich.Provider
	Notifier   notifications.Service
	Enrichment config.Enrichment
	Fetch      config.Fetch
	Logger     *slog.Logger
}

// Pipeline orchestrates one metered batch-enrichment run from reservation
// through settlement.
type Pipeline struct {
	quota      Quota
	fetcher    fetch.Fetcher
	entities   EntityStore
	reconciler *Reconciler
	provider   enrich.Provider
	notifier   notifications.Service
	enrichCfg  config.Enrichment
	fetchCfg   config.Fetch
	logger     *slog.Logger
	newToken   func() string
}

// New assembles a pipeline from its collaborators.
func New(deps Deps) (*Pipeline, error) {
	if deps.Quota == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "quota is required", nil)
	}
	if deps.Fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "fetcher is required", nil)
	}
	if deps.Entities == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "entity store is required", nil)
	}
	if deps.Reconciler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "reconciler is required", nil)
	}
	if deps.Provider == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "enrichment provider is required", nil)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(config.Notifications{})
	}
	return &Pipeline{
		quota:      deps.Quota,
		fetcher:    deps.Fetcher,
		entities:   deps.Entities,
		reconciler: deps.Reconciler,
		provider:   deps.Provider,
		notifier:   notifier,
		enrichCfg:  deps.Enrichment,
		fetchCfg:   deps.Fetch,
		logger:     logging.NewComponentLogger(deps.Logger, "pipeline"),
		newToken:   uuid.NewString,
	}, nil
}

// Execute runs the full state machine for one invocation. Capacity and
// fetch failures surface as the returned error with the ticket released;
// per-item enrichment failures degrade the individual entity and never
// fail the batch. An empty fetch is a valid zero-output outcome.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if req.Account == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "execute", "account is required", nil)
	}
	if len(req.Locators) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "execute", "at least one locator is required", nil)
	}
	kind := req.Kind
	if kind == "" {
		kind = RunChannel
	}

	token := p.newToken()
	ctx = services.WithAccount(ctx, req.Account)
	ctx = services.WithRunToken(ctx, token)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("run starting", logging.String("kind", string(kind)))

	estimate := p.estimate(req.Locators)
	ticket, err := p.quota.Reserve(ctx, req.Account, estimate)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientCapacity) {
			logger.Warn("reservation refused", logging.Int("estimate", estimate))
		}
		p.notifyFailure(ctx, logger, req.Account, kind, err)
		return nil, err
	}

	items, err := p.fetcher.Fetch(ctx, req.Locators, 0, fetch.Options{
		DateWindow:      req.DateWindow,
		IncludeCaptions: !req.SkipCaptions,
	})
	if err != nil {
		p.release(ctx, logger, ticket)
		p.notifyFailure(ctx, logger, req.Account, kind, err)
		return nil, err
	}
	if len(items) == 0 {
		logger.Info("nothing new", logging.Int("estimate", estimate))
		p.release(ctx, logger, ticket)
		return &Outcome{RunToken: token}, nil
	}
	if len(items) > estimate {
		// Reservation only ever caps billing, never work.
		logger.Info("fetch exceeded estimate",
			logging.Int("estimate", estimate),
			logging.Int("fetched", len(items)))
	}

	persisted, pending := p.persist(ctx, logger, req, kind, token, items)
	results := p.enrichPending(ctx, logger, persisted, pending, req.Instructions, kind)

	outcome := &Outcome{RunToken: token}
	for _, entity := range persisted {
		if result, ok := results[entity.ContentID]; ok {
			if result.Err != nil {
				outcome.FailedContentIDs = append(outcome.FailedContentIDs, entity.ContentID)
				continue
			}
		}
		if entity.SummaryState == store.SummaryCompleted {
			outcome.Produced = append(outcome.Produced, entity)
		}
	}

	record, err := p.reconciler.Settle(ctx, ticket, &RunSummary{
		Token:      token,
		Account:    req.Account,
		Kind:       kind,
		Produced:   outcome.Produced,
		Unproduced: outcome.FailedContentIDs,
	})
	if err != nil {
		return outcome, err
	}
	outcome.Record = record

	if record != nil {
		if err := p.notifier.NotifyRunCompleted(ctx, record, len(outcome.FailedContentIDs)); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}
	logger.Info("run finished",
		logging.Int("produced", len(outcome.Produced)),
		logging.Int("failed", len(outcome.FailedContentIDs)))
	return outcome, nil
}

// estimate sizes the reservation before fetching: each URL locator counts
// one item, each channel locator its limit or the fetcher default.
func (p *Pipeline) estimate(locators []fetch.Locator) int {
	total := 0
	for _, locator := range locators {
		switch {
		case locator.Kind == fetch.LocatorURL:
			total++
		case locator.Limit > 0:
			total += locator.Limit
		case p.fetchCfg.DefaultLimit > 0:
			total += p.fetchCfg.DefaultLimit
		default:
			total++
		}
	}
	return total
}

// persist merges each item's fragments and upserts the entity. It returns
// every entity persisted this run plus the subset still needing enrichment.
// A per-item persistence failure drops only that item.
func (p *Pipeline) persist(ctx context.Context, logger *slog.Logger, req Request, kind RunKind, token string, items []fetch.Item) ([]*store.Entity, []enrich.Item) {
	channels, err := p.entities.ChannelsByAccount(ctx, req.Account)
	if err != nil {
		logger.Warn("channel lookup failed, attribution disabled", logging.Error(err))
	}
	runScope := ""
	if kind == RunDigest {
		runScope = token
	}

	persisted := make([]*store.Entity, 0, len(items))
	var pending []enrich.Item
	for _, item := range items {
		segments := transcript.Merge(item.Fragments)
		duration := item.DurationHint
		if duration == 0 {
			duration = transcript.InferDuration(segments)
		}

		entity := &store.Entity{
			Account:         req.Account,
			ContentID:       item.ContentID,
			RunScope:        runScope,
			RunToken:        token,
			Title:           item.Title,
			ChannelLabel:    item.ChannelName,
			Transcript:      segments,
			DurationSeconds: duration,
		}
		if match := attribution.Match(attribution.Hint{
			Name:       item.ChannelName,
			URL:        item.ChannelURL,
			ExternalID: item.ChannelID,
		}, channels); match != nil {
			entity.ChannelName = match.Name
			entity.ChannelURL = match.URL
			entity.ChannelID = match.ExternalID
		}

		existing, err := p.entities.GetEntity(ctx, req.Account, item.ContentID, runScope)
		if err != nil {
			logger.Warn("entity lookup failed",
				logging.String(logging.FieldContentID, item.ContentID),
				logging.Error(err))
			continue
		}
		if existing != nil {
			entity.Summary = existing.Summary
			entity.SummaryState = existing.SummaryState
		}
		if _, err := p.entities.UpsertEntity(ctx, entity); err != nil {
			logger.Warn("entity persist failed",
				logging.String(logging.FieldContentID, item.ContentID),
				logging.Error(err))
			continue
		}
		persisted = append(persisted, entity)

		// A custom-instruction run always regenerates, even over an
		// existing summary; otherwise only unsummarized content is sent.
		if existing == nil || existing.Summary == "" || req.Instructions != "" {
			text := transcript.Text(segments)
			if text == "" {
				logger.Warn("no transcript text, skipping enrichment",
					logging.String(logging.FieldContentID, item.ContentID))
				continue
			}
			pending = append(pending, enrich.Item{Key: item.ContentID, Text: text})
		}
	}
	return persisted, pending
}

// enrichPending marks pending entities in progress, fans the batch out to
// the provider, and records each terminal state back on the persisted
// entities and the store.
func (p *Pipeline) enrichPending(ctx context.Context, logger *slog.Logger, persisted []*store.Entity, pending []enrich.Item, instructions string, kind RunKind) map[string]enrich.Result {
	if len(pending) == 0 {
		return nil
	}
	byContentID := make(map[string]*store.Entity, len(persisted))
	for _, entity := range persisted {
		byContentID[entity.ContentID] = entity
	}
	for _, item := range pending {
		entity, ok := byContentID[item.Key]
		if !ok {
			continue
		}
		entity.SummaryState = store.SummaryInProgress
		if err := p.entities.SetSummaryState(ctx, entity.ID, store.SummaryInProgress); err != nil {
			logger.Warn("summary state update failed",
				logging.String(logging.FieldContentID, item.Key),
				logging.Error(err))
		}
	}

	chunk := p.enrichCfg.CustomChunkSize
	if kind == RunDigest {
		chunk = p.enrichCfg.BulkChunkSize
	}
	scheduler := enrich.NewScheduler(p.provider, p.enrichCfg, logger, enrich.WithChunkSize(chunk))
	results := scheduler.Run(ctx, pending, instructions)

	for key, result := range results {
		entity, ok := byContentID[key]
		if !ok {
			continue
		}
		if result.Err != nil {
			entity.SummaryState = store.SummaryFailed
			if err := p.entities.SetSummaryState(ctx, entity.ID, store.SummaryFailed); err != nil {
				logger.Warn("summary state update failed",
					logging.String(logging.FieldContentID, key),
					logging.Error(err))
			}
			continue
		}
		entity.Summary = result.Summary
		entity.SummaryState = store.SummaryCompleted
		if err := p.entities.SetSummary(ctx, entity.ID, result.Summary, store.SummaryCompleted); err != nil {
			logger.Warn("summary persist failed",
				logging.String(logging.FieldContentID, key),
				logging.Error(err))
		}
	}
	return results
}

func (p *Pipeline) release(ctx context.Context, logger *slog.Logger, ticket *ledger.Ticket) {
	if err := p.quota.Release(ctx, ticket); err != nil {
		logger.Warn("ticket release failed", logging.Error(err))
	}
}

func (p *Pipeline) notifyFailure(ctx context.Context, logger *slog.Logger, account string, kind RunKind, cause error) {
	if err := p.notifier.NotifyRunFailed(ctx, account, string(kind), cause); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}
