package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"recap/internal/logging"
	"recap/internal/services"
	"recap/internal/store"
)

// Period is a plan's reset cadence.
type Period string

const (
	// PeriodDaily resets at local midnight.
	PeriodDaily Period = "daily"
	// PeriodMonthly resets on the subscription anniversary day-of-month,
	// clamped to the last day of shorter months.
	PeriodMonthly Period = "monthly"
)

// Plan is the resolved billing plan for an account.
type Plan struct {
	Tier   string
	Period Period
	Limit  int
}

// BillingOracle resolves the active plan for an account. The ledger consults
// it for limit and period only and never manages billing state itself.
type BillingOracle interface {
	PlanOf(ctx context.Context, account string) (Plan, error)
}

// UsageStore is the slice of the persistence layer the account ledger needs.
// All counter mutations must be atomic at the store.
type UsageStore interface {
	GetAccount(ctx context.Context, id string) (*store.Account, error)
	AddConsumed(ctx context.Context, id string, delta int) error
	ResetPeriod(ctx context.Context, id string, boundary, now time.Time) (bool, error)
}

// Ticket records one reservation. It is consumed exactly once by Settle or
// Release; a second settlement fails with services.ErrTicketSettled.
type Ticket struct {
	Account     string
	Amount      int
	PeriodStart time.Time
	CreatedAt   time.Time

	mu      sync.Mutex
	settled bool
}

func (t *Ticket) consume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return false
	}
	t.settled = true
	return true
}

type options struct {
	now      func() time.Time
	location *time.Location
}

// Option adjusts ledger construction, mainly for tests.
type Option func(*options)

// WithClock overrides the time source used for period boundaries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation overrides the location used to compute local midnight.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

func newOptions(opts []Option) options {
	resolved := options{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(&resolved)
	}
	return resolved
}

// Ledger meters capacity for authenticated accounts.
type Ledger struct {
	usage  UsageStore
	oracle BillingOracle
	logger *slog.Logger
	opts   options
}

// New creates an account ledger backed by the given store and oracle.
func New(usage UsageStore, oracle BillingOracle, logger *slog.Logger, opts ...Option) *Ledger {
	return &Ledger{
		usage:  usage,
		oracle: oracle,
		logger: logging.NewComponentLogger(logger, "ledger"),
		opts:   newOptions(opts),
	}
}

// RemainingCapacity returns the capacity still available in the current
// period, floored at zero.
func (l *Ledger) RemainingCapacity(ctx context.Context, account string) (int, error) {
	record, plan, err := l.load(ctx, account)
	if err != nil {
		return 0, err
	}
	return remaining(plan.Limit, record.Consumed), nil
}

// Reserve atomically charges amount against the account's current period and
// returns a ticket for later settlement. The amount is an upper-bound
// estimate; Settle refunds whatever the run did not use.
func (l *Ledger) Reserve(ctx context.Context, account string, amount int) (*Ticket, error) {
	if amount <= 0 {
		return nil, services.Wrap(services.ErrValidation, "ledger", "reserve",
			fmt.Sprintf("reservation amount must be positive, got %d", amount), nil)
	}
	record, plan, err := l.load(ctx, account)
	if err != nil {
		return nil, err
	}
	if amount > remaining(plan.Limit, record.Consumed) {
		return nil, services.Wrap(services.ErrInsufficientCapacity, "ledger", "reserve",
			fmt.Sprintf("account %s has %d of %d remaining, requested %d",
				account, remaining(plan.Limit, record.Consumed), plan.Limit, amount), nil)
	}
	if err := l.usage.AddConsumed(ctx, account, amount); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ledger", "reserve", "failed to record reservation", err)
	}
	now := l.opts.now()
	l.logger.Debug("reserved capacity",
		logging.String(logging.FieldAccount, account),
		logging.Int("amount", amount),
		logging.String("plan", plan.Tier))
	return &Ticket{
		Account:     account,
		Amount:      amount,
		PeriodStart: periodStart(now, plan.Period, anchorDay(record), l.opts.location),
		CreatedAt:   now,
	}, nil
}

// Settle consumes the ticket against the actual item count, refunding any
// over-reservation. An actual count above the reservation is never billed;
// the original reservation is the hard ceiling for the invocation.
func (l *Ledger) Settle(ctx context.Context, ticket *Ticket, actual int) error {
	return settle(ctx, l.logger, l.usage.AddConsumed, ticket, actual)
}

// Release refunds the full reservation. Used when an invocation fails
// before producing any useful output.
func (l *Ledger) Release(ctx context.Context, ticket *Ticket) error {
	return l.Settle(ctx, ticket, 0)
}

// load fetches the account and its plan and applies any pending period
// rollover before the caller's operation.
func (l *Ledger) load(ctx context.Context, account string) (*store.Account, Plan, error) {
	record, err := l.usage.GetAccount(ctx, account)
	if err != nil {
		return nil, Plan{}, services.Wrap(services.ErrTransient, "ledger", "load", "failed to load account", err)
	}
	if record == nil {
		return nil, Plan{}, services.Wrap(services.ErrNotFound, "ledger", "load",
			fmt.Sprintf("account %s not found", account), nil)
	}
	plan, err := l.oracle.PlanOf(ctx, account)
	if err != nil {
		return nil, Plan{}, services.Wrap(services.ErrConfiguration, "ledger", "load", "failed to resolve plan", err)
	}
	now := l.opts.now()
	boundary := periodStart(now, plan.Period, anchorDay(record), l.opts.location)
	if record.LastReset.Before(boundary) {
		reset, err := l.usage.ResetPeriod(ctx, account, boundary, now)
		if err != nil {
			return nil, Plan{}, services.Wrap(services.ErrTransient, "ledger", "load", "failed to roll over period", err)
		}
		if reset {
			l.logger.Info("period rolled over",
				logging.String(logging.FieldAccount, account),
				logging.String("period", string(plan.Period)))
		}
		record.Consumed = 0
		record.LastReset = now
	}
	return record, plan, nil
}

type addConsumedFunc func(ctx context.Context, key string, delta int) error

func settle(ctx context.Context, logger *slog.Logger, addConsumed addConsumedFunc, ticket *Ticket, actual int) error {
	if ticket == nil {
		return services.Wrap(services.ErrValidation, "ledger", "settle", "nil reservation ticket", nil)
	}
	if actual < 0 {
		return services.Wrap(services.ErrValidation, "ledger", "settle",
			fmt.Sprintf("actual amount must be non-negative, got %d", actual), nil)
	}
	if !ticket.consume() {
		return services.Wrap(services.ErrTicketSettled, "ledger", "settle",
			fmt.Sprintf("ticket for %s already settled", ticket.Account), nil)
	}
	if actual > ticket.Amount {
		logger.Warn("actual count exceeded reservation, not billed",
			logging.String(logging.FieldAccount, ticket.Account),
			logging.Int("reserved", ticket.Amount),
			logging.Int("actual", actual))
		actual = ticket.Amount
	}
	diff := ticket.Amount - actual
	if diff > 0 {
		if err := addConsumed(ctx, ticket.Account, -diff); err != nil {
			return services.Wrap(services.ErrTransient, "ledger", "settle", "failed to refund reservation", err)
		}
	}
	logger.Debug("settled reservation",
		logging.String(logging.FieldAccount, ticket.Account),
		logging.Int("reserved", ticket.Amount),
		logging.Int("actual", actual),
		logging.Int("refunded", diff))
	return nil
}

func remaining(limit, consumed int) int {
	if consumed >= limit {
		return 0
	}
	return limit - consumed
}

func anchorDay(record *store.Account) int {
	if record.AnchorDay == nil {
		return 1
	}
	return *record.AnchorDay
}
