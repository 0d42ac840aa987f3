package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/jackc/pgx/v5"
)

// FindAPIKeyByHash returns the active key with the given sha256 hex digest,
// or nil.
func (s *Store) FindAPIKeyByHash(ctx context.Context, keyHash string) (*domain.UserAPIKey, error) {
	var k domain.UserAPIKey
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, key_hash, is_active, last_used_at, created_at
		FROM user_api_keys
		WHERE key_hash = $1 AND is_active
	`, keyHash).Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.IsActive, &k.LastUsedAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindAPIKeyByHash: %w", err)
	}
	return &k, nil
}

// TouchAPIKey records that a key was just used.
func (s *Store) TouchAPIKey(ctx context.Context, keyID string) error {
	if _, err := s.db.Exec(ctx, `UPDATE user_api_keys SET last_used_at = NOW() WHERE id = $1`, keyID); err != nil {
		return fmt.Errorf("TouchAPIKey: %w", err)
	}
	return nil
}
