package pipeline

import (
	"context"
	"log/slog"
	"time"

	"recap/internal/ledger"
	"recap/internal/logging"
	"recap/internal/services"
	"recap/internal/store"
)

// Quota is the reservation contract the pipeline spends against. Both the
// account ledger and the guest ledger satisfy it.
type Quota interface {
	Reserve(ctx context.Context, key string, amount int) (*ledger.Ticket, error)
	Settle(ctx context.Context, ticket *ledger.Ticket, actual int) error
	Release(ctx context.Context, ticket *ledger.Ticket) error
}

var (
	_ Quota = (*ledger.Ledger)(nil)
	_ Quota = (*ledger.GuestLedger)(nil)
)

// RunStore is the slice of persistence the reconciler needs.
type RunStore interface {
	InsertRun(ctx context.Context, record *store.RunRecord) error
}

// Reconciler settles the reservation against the run's actual output and
// assembles the run record.
type Reconciler struct {
	quota  Quota
	runs   RunStore
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler over the given quota and run store.
func NewReconciler(quota Quota, runs RunStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		quota:  quota,
		runs:   runs,
		logger: logging.NewComponentLogger(logger, "reconciler"),
		now:    time.Now,
	}
}

// Settle charges exactly the produced count against the ticket and records
// the run. A run with no produced entities is a no-op: the ticket is
// refunded in full and no record is created.
func (r *Reconciler) Settle(ctx context.Context, ticket *ledger.Ticket, run *RunSummary) (*store.RunRecord, error) {
	if run == nil || len(run.Produced) == 0 {
		if err := r.quota.Settle(ctx, ticket, 0); err != nil {
			return nil, err
		}
		return nil, nil
	}
	actual := len(run.Produced)
	if err := r.quota.Settle(ctx, ticket, actual); err != nil {
		return nil, err
	}

	digest := store.DigestNone
	if run.Kind == RunDigest {
		digest = store.DigestPending
	}
	record := &store.RunRecord{
		RunToken:        run.Token,
		Account:         run.Account,
		Kind:            string(run.Kind),
		ItemCount:       actual,
		DurationSeconds: totalDuration(run.Produced),
		Digest:          digest,
		CompletedAt:     r.now().UTC(),
	}
	if err := r.runs.InsertRun(ctx, record); err != nil {
		// Quota already reflects real work; surface the persistence
		// failure without attempting to unwind the settlement.
		return nil, services.Wrap(services.ErrTransient, "reconciler", "settle", "record run", err)
	}
	r.logger.Info("run settled",
		logging.String(logging.FieldRunToken, run.Token),
		logging.String(logging.FieldAccount, run.Account),
		logging.Int("produced", actual),
		logging.Int("failed", len(run.Unproduced)))
	return record, nil
}

// RunSummary is the reconciler's input: what one invocation produced and
// what it requested but could not produce.
type RunSummary struct {
	Token      string
	Account    string
	Kind       RunKind
	Produced   []*store.Entity
	Unproduced []string
}

func totalDuration(entities []*store.Entity) float64 {
	var total float64
	for _, entity := range entities {
		total += entity.DurationSeconds
	}
	return total
}
