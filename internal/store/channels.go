package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddChannel records a subscribed source channel for an account. Full
// subscription management lives outside this system; the pipeline only
// needs the set for attribution matching.
func (s *Store) AddChannel(ctx context.Context, channel *Channel) error {
	if channel == nil {
		return errors.New("channel is nil")
	}
	if channel.Account == "" {
		return errors.New("channel requires an account")
	}
	if channel.Name == "" && channel.URL == "" && channel.ExternalID == "" {
		return errors.New("channel requires a name, url, or external id")
	}
	err := s.exec(ctx,
		`INSERT INTO channels (account, name, url, external_id) VALUES (?, ?, ?, ?)`,
		channel.Account, channel.Name, channel.URL, channel.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

// ChannelsByAccount lists the account's subscribed channels.
func (s *Store) ChannelsByAccount(ctx context.Context, account string) ([]*Channel, error) {
	rows, err := s.query(ctx,
		`SELECT id, account, name, url, external_id FROM channels WHERE account = ? ORDER BY id`,
		account,
	)
	if err != nil {
		return nil, fmt.Errorf("channels by account: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		var (
			channel    Channel
			name       sql.NullString
			url        sql.NullString
			externalID sql.NullString
		)
		if err := rows.Scan(&channel.ID, &channel.Account, &name, &url, &externalID); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channel.Name = name.String
		channel.URL = url.String
		channel.ExternalID = externalID.String
		channels = append(channels, &channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}
