package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const entityColumns = "id, account, content_id, run_scope, run_token, title, channel_name, channel_url, channel_external_id, channel_label, transcript_json, duration_seconds, summary, summary_state, created_at, updated_at"

// UpsertEntity inserts an entity or, when the natural key
// (account, content_id, run_scope) already exists, refreshes its metadata
// and run token. Last writer wins on metadata; the existing summary and
// summary state are preserved so the caller can decide separately whether to
// re-enrich. Returns the entity id.
func (s *Store) UpsertEntity(ctx context.Context, entity *Entity) (int64, error) {
	if entity == nil {
		return 0, errors.New("entity is nil")
	}
	if entity.Account == "" || entity.ContentID == "" {
		return 0, errors.New("entity requires account and content id")
	}
	transcriptJSON, err := json.Marshal(entity.Transcript)
	if err != nil {
		return 0, fmt.Errorf("marshal transcript: %w", err)
	}
	state := entity.SummaryState
	if state == "" {
		state = SummaryPending
	}
	now := formatTime(time.Now())

	var id int64
	err = s.retryOnBusy(ensureContext(ctx), func() error {
		return s.queryRow(ctx,
			`INSERT INTO entities (
                account, content_id, run_scope, run_token, title,
                channel_name, channel_url, channel_external_id, channel_label,
                transcript_json, duration_seconds, summary, summary_state,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (account, content_id, run_scope) DO UPDATE SET
                run_token = excluded.run_token,
                title = excluded.title,
                channel_name = excluded.channel_name,
                channel_url = excluded.channel_url,
                channel_external_id = excluded.channel_external_id,
                channel_label = excluded.channel_label,
                transcript_json = excluded.transcript_json,
                duration_seconds = excluded.duration_seconds,
                updated_at = excluded.updated_at
            RETURNING id`,
			entity.Account, entity.ContentID, entity.RunScope, entity.RunToken,
			nullableString(entity.Title),
			nullableString(entity.ChannelName), nullableString(entity.ChannelURL),
			nullableString(entity.ChannelID), nullableString(entity.ChannelLabel),
			string(transcriptJSON), entity.DurationSeconds,
			nullableString(entity.Summary), string(state),
			now, now,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert entity: %w", err)
	}
	entity.ID = id
	return id, nil
}

// GetEntity fetches an entity by natural key. Returns nil when absent.
func (s *Store) GetEntity(ctx context.Context, account, contentID, runScope string) (*Entity, error) {
	row := s.queryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE account = ? AND content_id = ? AND run_scope = ?`,
		account, contentID, runScope,
	)
	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return entity, nil
}

// SetSummaryState transitions an entity's enrichment state.
func (s *Store) SetSummaryState(ctx context.Context, id int64, state SummaryState) error {
	affected, err := s.execRows(ctx,
		`UPDATE entities SET summary_state = ?, updated_at = ? WHERE id = ?`,
		string(state), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set summary state: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set summary state: entity %d not found", id)
	}
	return nil
}

// SetSummary records the summary text together with its terminal state.
func (s *Store) SetSummary(ctx context.Context, id int64, summary string, state SummaryState) error {
	affected, err := s.execRows(ctx,
		`UPDATE entities SET summary = ?, summary_state = ?, updated_at = ? WHERE id = ?`,
		nullableString(summary), string(state), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set summary: entity %d not found", id)
	}
	return nil
}

// EntitiesByRunToken lists the entities produced by one pipeline run,
// oldest first.
func (s *Store) EntitiesByRunToken(ctx context.Context, runToken string) ([]*Entity, error) {
	rows, err := s.query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE run_token = ? ORDER BY id`,
		runToken,
	)
	if err != nil {
		return nil, fmt.Errorf("entities by run token: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// EntitiesByAccount lists an account's entities, newest first.
func (s *Store) EntitiesByAccount(ctx context.Context, account string, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE account = ? ORDER BY id DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("entities by account: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func collectEntities(rows *sql.Rows) ([]*Entity, error) {
	var entities []*Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

func scanEntity(scanner interface{ Scan(dest ...any) error }) (*Entity, error) {
	var (
		id             int64
		account        string
		contentID      string
		runScope       string
		runToken       sql.NullString
		title          sql.NullString
		channelName    sql.NullString
		channelURL     sql.NullString
		channelExtID   sql.NullString
		channelLabel   sql.NullString
		transcriptJSON sql.NullString
		duration       sql.NullFloat64
		summary        sql.NullString
		summaryState   string
		createdAt      sql.NullString
		updatedAt      sql.NullString
	)
	if err := scanner.Scan(
		&id, &account, &contentID, &runScope, &runToken, &title,
		&channelName, &channelURL, &channelExtID, &channelLabel,
		&transcriptJSON, &duration, &summary, &summaryState,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	entity := &Entity{
		ID:              id,
		Account:         account,
		ContentID:       contentID,
		RunScope:        runScope,
		RunToken:        runToken.String,
		Title:           title.String,
		ChannelName:     channelName.String,
		ChannelURL:      channelURL.String,
		ChannelID:       channelExtID.String,
		ChannelLabel:    channelLabel.String,
		DurationSeconds: duration.Float64,
		Summary:         summary.String,
		SummaryState:    SummaryState(summaryState),
	}
	if transcriptJSON.Valid && transcriptJSON.String != "" {
		if err := json.Unmarshal([]byte(transcriptJSON.String), &entity.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
	}
	if t, err := parseTimeString(createdAt.String); err == nil {
		entity.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt.String); err == nil {
		entity.UpdatedAt = t
	}
	return entity, nil
}
