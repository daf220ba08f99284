package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const accountColumns = "id, plan_tier, consumed, last_reset, anchor_day, created_at, updated_at"

// CreateAccount inserts a new account with a zeroed usage counter.
func (s *Store) CreateAccount(ctx context.Context, id, planTier string, anchorDay *int) (*Account, error) {
	if id == "" {
		return nil, errors.New("account id required")
	}
	now := formatTime(time.Now())
	err := s.exec(ctx,
		`INSERT INTO accounts (id, plan_tier, consumed, last_reset, anchor_day, created_at, updated_at)
         VALUES (?, ?, 0, ?, ?, ?, ?)`,
		id, planTier, now, nullableInt(anchorDay), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetAccount(ctx, id)
}

// GetAccount fetches an account by identifier. Returns nil when absent.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// SetPlan updates the account's plan tier and anniversary anchor day.
func (s *Store) SetPlan(ctx context.Context, id, planTier string, anchorDay *int) error {
	affected, err := s.execRows(ctx,
		`UPDATE accounts SET plan_tier = ?, anchor_day = ?, updated_at = ? WHERE id = ?`,
		planTier, nullableInt(anchorDay), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set plan: account %s not found", id)
	}
	return nil
}

// AddConsumed applies an atomic delta to the account's consumed counter,
// floored at zero. This is the only way consumed is ever mutated outside a
// period reset, so concurrent invocations can never lose updates.
func (s *Store) AddConsumed(ctx context.Context, id string, delta int) error {
	query := fmt.Sprintf(
		`UPDATE accounts SET consumed = %s(consumed + ?, 0), updated_at = ? WHERE id = ?`,
		s.dialect.greatest(),
	)
	affected, err := s.execRows(ctx, query, delta, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("add consumed: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("add consumed: account %s not found", id)
	}
	return nil
}

// ResetPeriod zeroes the consumed counter and advances last_reset, but only
// when last_reset still predates the supplied boundary. Two concurrent
// rollover checks therefore reset at most once.
func (s *Store) ResetPeriod(ctx context.Context, id string, boundary, now time.Time) (bool, error) {
	affected, err := s.execRows(ctx,
		`UPDATE accounts SET consumed = 0, last_reset = ?, updated_at = ? WHERE id = ? AND last_reset < ?`,
		formatTime(now), formatTime(now), id, formatTime(boundary),
	)
	if err != nil {
		return false, fmt.Errorf("reset period: %w", err)
	}
	return affected > 0, nil
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		id        string
		planTier  sql.NullString
		consumed  int
		lastReset sql.NullString
		anchorDay sql.NullInt64
		createdAt sql.NullString
		updatedAt sql.NullString
	)
	if err := scanner.Scan(&id, &planTier, &consumed, &lastReset, &anchorDay, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	account := &Account{
		ID:       id,
		PlanTier: planTier.String,
		Consumed: consumed,
	}
	if anchorDay.Valid {
		day := int(anchorDay.Int64)
		account.AnchorDay = &day
	}
	if t, err := parseTimeString(lastReset.String); err == nil {
		account.LastReset = t
	}
	if t, err := parseTimeString(createdAt.String); err == nil {
		account.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt.String); err == nil {
		account.UpdatedAt = t
	}
	return account, nil
}
