package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/jackc/pgx/v5"
)

// UsageRetentionMonths is how long usage rows are kept.
const UsageRetentionMonths = 12

// Month formats t as the usage period key.
func Month(t time.Time) string {
	return t.Format("2006-01")
}

// RetentionCutoff returns the oldest month kept when cleaning up at now.
func RetentionCutoff(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Month(first.AddDate(0, -UsageRetentionMonths, 0))
}

// UsageLimits are the defaults written into a user's first row of a month.
type UsageLimits struct {
	AIParses     int
	Transactions int
}

func (s *Store) ensureUsage(ctx context.Context, userID, month string, limits UsageLimits) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_tracking (user_id, month, ai_parses_limit, transactions_limit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, month) DO NOTHING
	`, userID, month, limits.AIParses, limits.Transactions)
	return err
}

// GetUsage returns the user's usage for month, creating the row if needed.
func (s *Store) GetUsage(ctx context.Context, userID, month string, limits UsageLimits) (domain.UsageRecord, error) {
	if err := s.ensureUsage(ctx, userID, month, limits); err != nil {
		return domain.UsageRecord{}, fmt.Errorf("GetUsage: ensure row: %w", err)
	}
	var u domain.UsageRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, month, ai_parses_used, ai_parses_limit,
		       transactions_count, transactions_limit, updated_at
		FROM usage_tracking
		WHERE user_id = $1 AND month = $2
	`, userID, month).Scan(&u.ID, &u.UserID, &u.Month, &u.AIParsesUsed, &u.AIParsesLimit,
		&u.TransactionsCount, &u.TransactionsLimit, &u.UpdatedAt)
	if err != nil {
		return u, fmt.Errorf("GetUsage: %w", err)
	}
	return u, nil
}

// IncrementAIParses consumes one model parse if the monthly limit allows it.
// The check and the increment are one statement, so concurrent requests
// cannot overshoot the limit.
func (s *Store) IncrementAIParses(ctx context.Context, userID, month string, limits UsageLimits) (domain.UsageCheck, error) {
	if err := s.ensureUsage(ctx, userID, month, limits); err != nil {
		return domain.UsageCheck{}, fmt.Errorf("IncrementAIParses: ensure row: %w", err)
	}

	var check domain.UsageCheck
	err := s.db.QueryRow(ctx, `
		UPDATE usage_tracking
		SET ai_parses_used = ai_parses_used + 1, updated_at = NOW()
		WHERE user_id = $1 AND month = $2 AND ai_parses_used < ai_parses_limit
		RETURNING ai_parses_used, ai_parses_limit
	`, userID, month).Scan(&check.Used, &check.Limit)
	if err == nil {
		check.Allowed = true
		return check, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return check, fmt.Errorf("IncrementAIParses: %w", err)
	}

	u, err := s.GetUsage(ctx, userID, month, limits)
	if err != nil {
		return check, fmt.Errorf("IncrementAIParses: %w", err)
	}
	return domain.UsageCheck{Allowed: false, Used: u.AIParsesUsed, Limit: u.AIParsesLimit}, nil
}

// IncrementTransactions counts n persisted transactions for the month.
func (s *Store) IncrementTransactions(ctx context.Context, userID, month string, n int, limits UsageLimits) (domain.UsageCheck, error) {
	if err := s.ensureUsage(ctx, userID, month, limits); err != nil {
		return domain.UsageCheck{}, fmt.Errorf("IncrementTransactions: ensure row: %w", err)
	}

	var check domain.UsageCheck
	err := s.db.QueryRow(ctx, `
		UPDATE usage_tracking
		SET transactions_count = transactions_count + $3, updated_at = NOW()
		WHERE user_id = $1 AND month = $2
		RETURNING transactions_count, transactions_limit
	`, userID, month, n).Scan(&check.Used, &check.Limit)
	if err != nil {
		return check, fmt.Errorf("IncrementTransactions: %w", err)
	}
	check.Allowed = check.Used <= check.Limit
	return check, nil
}

// CleanupOldUsage deletes usage rows for months before cutoff (YYYY-MM) and
// returns how many were removed.
func (s *Store) CleanupOldUsage(ctx context.Context, cutoff string) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM usage_tracking WHERE month < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("CleanupOldUsage: %w", err)
	}
	return cmd.RowsAffected(), nil
}
