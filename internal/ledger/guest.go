package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
	"recap/internal/store"
)

// GuestUsageStore is the slice of the persistence layer the guest ledger
// needs. Rows expire after the configured TTL and are purged lazily.
type GuestUsageStore interface {
	GetGuestUsage(ctx context.Context, fingerprint string, now time.Time) (*store.GuestUsage, error)
	AddGuestConsumed(ctx context.Context, fingerprint string, delta int, now time.Time, ttl time.Duration) error
	ResetGuestPeriod(ctx context.Context, fingerprint string, boundary, now time.Time) (bool, error)
}

// Fingerprint derives the opaque guest key from the caller's IP and client
// identity. Raw values never reach storage.
func Fingerprint(ip, clientID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ip) + "|" + strings.TrimSpace(clientID)))
	return hex.EncodeToString(sum[:16])
}

// GuestLedger meters capacity for unauthenticated callers under a fixed
// daily limit. It shares the Reserve/Settle/Release contract with Ledger.
type GuestLedger struct {
	usage  GuestUsageStore
	limit  int
	ttl    time.Duration
	logger *slog.Logger
	opts   options
}

// NewGuestLedger creates a guest ledger with the configured daily limit and
// row TTL.
func NewGuestLedger(usage GuestUsageStore, cfg config.Guest, logger *slog.Logger, opts ...Option) *GuestLedger {
	return &GuestLedger{
		usage:  usage,
		limit:  cfg.DailyLimit,
		ttl:    time.Duration(cfg.TTLHours) * time.Hour,
		logger: logging.NewComponentLogger(logger, "guest-ledger"),
		opts:   newOptions(opts),
	}
}

// RemainingCapacity returns the guest's remaining daily capacity.
func (g *GuestLedger) RemainingCapacity(ctx context.Context, fingerprint string) (int, error) {
	consumed, err := g.load(ctx, fingerprint)
	if err != nil {
		return 0, err
	}
	return remaining(g.limit, consumed), nil
}

// Reserve charges amount against the guest's daily limit and returns a
// ticket for settlement.
func (g *GuestLedger) Reserve(ctx context.Context, fingerprint string, amount int) (*Ticket, error) {
	if amount <= 0 {
		return nil, services.Wrap(services.ErrValidation, "guest-ledger", "reserve",
			fmt.Sprintf("reservation amount must be positive, got %d", amount), nil)
	}
	consumed, err := g.load(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if amount > remaining(g.limit, consumed) {
		return nil, services.Wrap(services.ErrInsufficientCapacity, "guest-ledger", "reserve",
			fmt.Sprintf("guest has %d of %d remaining, requested %d",
				remaining(g.limit, consumed), g.limit, amount), nil)
	}
	now := g.opts.now()
	if err := g.usage.AddGuestConsumed(ctx, fingerprint, amount, now, g.ttl); err != nil {
		return nil, services.Wrap(services.ErrTransient, "guest-ledger", "reserve", "failed to record reservation", err)
	}
	g.logger.Debug("reserved guest capacity", logging.Int("amount", amount))
	return &Ticket{
		Account:     fingerprint,
		Amount:      amount,
		PeriodStart: periodStart(now, PeriodDaily, 0, g.opts.location),
		CreatedAt:   now,
	}, nil
}

// Settle consumes the ticket against the actual item count, refunding any
// over-reservation.
func (g *GuestLedger) Settle(ctx context.Context, ticket *Ticket, actual int) error {
	return settle(ctx, g.logger, g.addConsumed, ticket, actual)
}

// Release refunds the full reservation.
func (g *GuestLedger) Release(ctx context.Context, ticket *Ticket) error {
	return g.Settle(ctx, ticket, 0)
}

func (g *GuestLedger) addConsumed(ctx context.Context, fingerprint string, delta int) error {
	return g.usage.AddGuestConsumed(ctx, fingerprint, delta, g.opts.now(), g.ttl)
}

func (g *GuestLedger) load(ctx context.Context, fingerprint string) (int, error) {
	now := g.opts.now()
	usage, err := g.usage.GetGuestUsage(ctx, fingerprint, now)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "guest-ledger", "load", "failed to load guest usage", err)
	}
	if usage == nil {
		return 0, nil
	}
	boundary := periodStart(now, PeriodDaily, 0, g.opts.location)
	if usage.LastReset.Before(boundary) {
		if _, err := g.usage.ResetGuestPeriod(ctx, fingerprint, boundary, now); err != nil {
			return 0, services.Wrap(services.ErrTransient, "guest-ledger", "load", "failed to roll over guest period", err)
		}
		return 0, nil
	}
	return usage.Consumed, nil
}

var _ GuestUsageStore = (*store.Store)(nil)
