package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetConfig stores a key/value pair in the config table, replacing any
// existing value.
func (s *DoltStore) SetConfig(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("config key is required")
	}
	_, err := s.execContext(ctx,
		"INSERT INTO config (`key`, `value`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `value` = VALUES(`value`)",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// GetConfig returns the value for a key, or empty string when unset.
func (s *DoltStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.queryRowContext(ctx, func(row *sql.Row) error { return row.Scan(&value) },
		"SELECT `value` FROM config WHERE `key` = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}
