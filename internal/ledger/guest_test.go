package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/services"
)

func testGuestLedger(usage *fakeUsage, limit int, now time.Time) *GuestLedger {
	cfg := config.Guest{DailyLimit: limit, TTLHours: 48}
	return NewGuestLedger(usage, cfg, logging.NewNop(),
		WithClock(func() time.Time { return now }),
		WithLocation(time.UTC))
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Fingerprint("203.0.113.9", "client-1")
	b := Fingerprint("203.0.113.9", "client-1")
	c := Fingerprint("203.0.113.9", "client-2")
	if a != b {
		t.Fatal("fingerprint not stable for identical input")
	}
	if a == c {
		t.Fatal("fingerprint collides across clients")
	}
	if a == "203.0.113.9|client-1" {
		t.Fatal("fingerprint leaks raw input")
	}
}

func TestGuestReserveAndSettle(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	usage := newFakeUsage()
	ledger := testGuestLedger(usage, 3, now)
	fingerprint := Fingerprint("203.0.113.9", "client-1")

	ctx := context.Background()
	ticket, err := ledger.Reserve(ctx, fingerprint, 2)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := ledger.Settle(ctx, ticket, 1); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	got, err := ledger.RemainingCapacity(ctx, fingerprint)
	if err != nil {
		t.Fatalf("RemainingCapacity failed: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
}

func TestGuestInsufficientCapacity(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	usage := newFakeUsage()
	ledger := testGuestLedger(usage, 3, now)
	fingerprint := Fingerprint("203.0.113.9", "client-1")

	ctx := context.Background()
	if _, err := ledger.Reserve(ctx, fingerprint, 3); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	_, err := ledger.Reserve(ctx, fingerprint, 1)
	if !errors.Is(err, services.ErrInsufficientCapacity) {
		t.Fatalf("expected insufficient capacity, got %v", err)
	}
}

func TestGuestUnknownFingerprintHasFullLimit(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := testGuestLedger(newFakeUsage(), 3, now)

	got, err := ledger.RemainingCapacity(context.Background(), Fingerprint("203.0.113.9", "client-1"))
	if err != nil {
		t.Fatalf("RemainingCapacity failed: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected full limit for fresh guest, got %d", got)
	}
}

func TestGuestDailyRollover(t *testing.T) {
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	usage := newFakeUsage()
	fingerprint := Fingerprint("203.0.113.9", "client-1")

	ctx := context.Background()
	ledger := testGuestLedger(usage, 3, start)
	if _, err := ledger.Reserve(ctx, fingerprint, 3); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	nextDay := start.AddDate(0, 0, 1)
	ledger = testGuestLedger(usage, 3, nextDay)
	got, err := ledger.RemainingCapacity(ctx, fingerprint)
	if err != nil {
		t.Fatalf("RemainingCapacity failed: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected full limit after midnight, got %d", got)
	}
}
