package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GuestUsage is the TTL-expiring usage row backing the guest ledger.
type GuestUsage struct {
	Fingerprint string
	Consumed    int
	LastReset   time.Time
	ExpiresAt   time.Time
}

// GetGuestUsage fetches guest usage by fingerprint, treating expired rows as
// absent. Expired rows are purged lazily by AddGuestConsumed.
func (s *Store) GetGuestUsage(ctx context.Context, fingerprint string, now time.Time) (*GuestUsage, error) {
	row := s.queryRow(ctx,
		`SELECT fingerprint, consumed, last_reset, expires_at FROM guest_usage WHERE fingerprint = ?`,
		fingerprint,
	)
	usage, err := scanGuestUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get guest usage: %w", err)
	}
	if !usage.ExpiresAt.After(now) {
		return nil, nil
	}
	return usage, nil
}

// AddGuestConsumed applies an atomic delta to a guest's consumed counter,
// creating the row when needed and refreshing its expiry. Negative totals
// clamp to zero.
func (s *Store) AddGuestConsumed(ctx context.Context, fingerprint string, delta int, now time.Time, ttl time.Duration) error {
	if fingerprint == "" {
		return errors.New("guest fingerprint required")
	}
	expires := formatTime(now.Add(ttl))
	query := fmt.Sprintf(
		`INSERT INTO guest_usage (fingerprint, consumed, last_reset, expires_at)
         VALUES (?, %s(?, 0), ?, ?)
         ON CONFLICT (fingerprint) DO UPDATE SET
             consumed = %s(guest_usage.consumed + ?, 0),
             expires_at = ?`,
		s.dialect.greatest(), s.dialect.greatest(),
	)
	err := s.exec(ctx, query, fingerprint, delta, formatTime(now), expires, delta, expires)
	if err != nil {
		return fmt.Errorf("add guest consumed: %w", err)
	}
	return nil
}

// ResetGuestPeriod zeroes a guest's consumed counter when its last reset
// still predates the supplied boundary.
func (s *Store) ResetGuestPeriod(ctx context.Context, fingerprint string, boundary, now time.Time) (bool, error) {
	affected, err := s.execRows(ctx,
		`UPDATE guest_usage SET consumed = 0, last_reset = ? WHERE fingerprint = ? AND last_reset < ?`,
		formatTime(now), fingerprint, formatTime(boundary),
	)
	if err != nil {
		return false, fmt.Errorf("reset guest period: %w", err)
	}
	return affected > 0, nil
}

// PurgeExpiredGuests removes guest rows whose TTL has lapsed.
func (s *Store) PurgeExpiredGuests(ctx context.Context, now time.Time) (int64, error) {
	affected, err := s.execRows(ctx,
		`DELETE FROM guest_usage WHERE expires_at <= ?`,
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired guests: %w", err)
	}
	return affected, nil
}

func scanGuestUsage(scanner interface{ Scan(dest ...any) error }) (*GuestUsage, error) {
	var (
		fingerprint string
		consumed    int
		lastReset   sql.NullString
		expiresAt   sql.NullString
	)
	if err := scanner.Scan(&fingerprint, &consumed, &lastReset, &expiresAt); err != nil {
		return nil, err
	}
	usage := &GuestUsage{Fingerprint: fingerprint, Consumed: consumed}
	if t, err := parseTimeString(lastReset.String); err == nil {
		usage.LastReset = t
	}
	if t, err := parseTimeString(expiresAt.String); err == nil {
		usage.ExpiresAt = t
	}
	return usage, nil
}
