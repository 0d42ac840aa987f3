package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// InsertSkippedMessage records a message the model judged not to be a
// transaction.
func (s *Store) InsertSkippedMessage(ctx context.Context, m domain.SkippedMessage) (domain.SkippedMessage, error) {
	var parsed []byte
	if len(m.ParsedData) > 0 {
		parsed = m.ParsedData
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO skipped_messages (user_id, raw_text, source, reason, parsed_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, m.UserID, m.RawText, m.Source, m.Reason, parsed).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return m, fmt.Errorf("InsertSkippedMessage: %w", err)
	}
	return m, nil
}
