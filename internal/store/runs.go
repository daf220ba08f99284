package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = "run_token, account, kind, item_count, duration_seconds, digest_status, completed_at"

// InsertRun records a completed pipeline invocation. Run tokens are
// generated per invocation, so an insert conflict means the reconciler ran
// twice; the second insert is rejected.
func (s *Store) InsertRun(ctx context.Context, record *RunRecord) error {
	if record == nil {
		return errors.New("run record is nil")
	}
	if record.RunToken == "" {
		return errors.New("run token required")
	}
	digest := record.Digest
	if digest == "" {
		digest = DigestNone
	}
	err := s.exec(ctx,
		`INSERT INTO runs (run_token, account, kind, item_count, duration_seconds, digest_status, completed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.RunToken, record.Account, record.Kind,
		record.ItemCount, record.DurationSeconds, string(digest),
		formatTime(record.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SetDigestStatus updates the derived digest document status for a run.
func (s *Store) SetDigestStatus(ctx context.Context, runToken string, status DigestStatus) error {
	affected, err := s.execRows(ctx,
		`UPDATE runs SET digest_status = ? WHERE run_token = ?`,
		string(status), runToken,
	)
	if err != nil {
		return fmt.Errorf("set digest status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set digest status: run %s not found", runToken)
	}
	return nil
}

// GetRun fetches a run record by token. Returns nil when absent.
func (s *Store) GetRun(ctx context.Context, runToken string) (*RunRecord, error) {
	row := s.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_token = ?`, runToken)
	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

// RunsByAccount lists an account's runs, newest first.
func (s *Store) RunsByAccount(ctx context.Context, account string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE account = ? ORDER BY completed_at DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("runs by account: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*RunRecord, error) {
	var (
		runToken    string
		account     string
		kind        sql.NullString
		itemCount   int
		duration    sql.NullFloat64
		digest      sql.NullString
		completedAt sql.NullString
	)
	if err := scanner.Scan(&runToken, &account, &kind, &itemCount, &duration, &digest, &completedAt); err != nil {
		return nil, err
	}
	record := &RunRecord{
		RunToken:        runToken,
		Account:         account,
		Kind:            kind.String,
		ItemCount:       itemCount,
		DurationSeconds: duration.Float64,
		Digest:          DigestStatus(digest.String),
	}
	if t, err := parseTimeString(completedAt.String); err == nil {
		record.CompletedAt = t
	}
	return record, nil
}
