package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `
	id, user_id, date::text, time, amount, description, category_id,
	account_id, type, payment_method, source, confidence, raw_text,
	parsed_data, transfer_to_account_id, transfer_id, transfer_side,
	notes, reconciled, duplicate_status, duplicate_of, applied_rules,
	created_at`

// InsertTransaction stores tx and returns it with its generated id.
func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	applied, err := json.Marshal(tx.AppliedRules)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("InsertTransaction: marshal applied rules: %w", err)
	}
	if tx.AppliedRules == nil {
		applied = nil
	}

	var parsed []byte
	if len(tx.ParsedData) > 0 {
		parsed = tx.ParsedData
	}

	status := tx.DuplicateStatus
	if status == "" {
		status = domain.DuplicateNone
	}

	query := `
		INSERT INTO transactions (
			user_id, date, time, amount, description, category_id,
			account_id, type, payment_method, source, confidence, raw_text,
			parsed_data, transfer_to_account_id, transfer_id, transfer_side,
			notes, reconciled, duplicate_status, duplicate_of, applied_rules
		)
		VALUES (
			$1, $2::date, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)
		RETURNING ` + transactionColumns

	row := s.db.QueryRow(ctx, query,
		tx.UserID, tx.Date, tx.Time, tx.Amount, tx.Description, tx.CategoryID,
		tx.AccountID, string(tx.Type), tx.PaymentMethod, tx.Source, tx.Confidence, tx.RawText,
		parsed, tx.TransferToAccountID, tx.TransferID, nullIfEmpty(string(tx.TransferSide)),
		tx.Notes, tx.Reconciled, string(status), tx.DuplicateOf, applied,
	)
	out, err := scanTransaction(row)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("InsertTransaction: %w", err)
	}
	return out, nil
}

// FindExactDuplicate returns the id of the earliest transaction with the same
// user, raw text and source, or "".
func (s *Store) FindExactDuplicate(ctx context.Context, userID, rawText, source string) (string, error) {
	query := `
		SELECT id FROM transactions
		WHERE user_id = $1 AND raw_text = $2 AND source = $3
		ORDER BY created_at ASC
		LIMIT 1
	`
	id, err := s.scanID(ctx, query, userID, rawText, source)
	if err != nil {
		return "", fmt.Errorf("FindExactDuplicate: %w", err)
	}
	return id, nil
}

// FindNearDuplicate returns the id of the earliest transaction with the same
// user, date, amount and account, or "".
func (s *Store) FindNearDuplicate(ctx context.Context, userID, date string, amount int64, accountID string) (string, error) {
	query := `
		SELECT id FROM transactions
		WHERE user_id = $1 AND date = $2::date AND amount = $3 AND account_id = $4
		ORDER BY created_at ASC
		LIMIT 1
	`
	id, err := s.scanID(ctx, query, userID, date, amount, accountID)
	if err != nil {
		return "", fmt.Errorf("FindNearDuplicate: %w", err)
	}
	return id, nil
}

// ListTransactions returns the user's most recent transactions.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, time DESC, created_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) scanID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		tx       domain.Transaction
		txType   string
		side     *string
		status   string
		parsed   []byte
		applied  []byte
		category *string
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Date, &tx.Time, &tx.Amount, &tx.Description, &category,
		&tx.AccountID, &txType, &tx.PaymentMethod, &tx.Source, &tx.Confidence, &tx.RawText,
		&parsed, &tx.TransferToAccountID, &tx.TransferID, &side,
		&tx.Notes, &tx.Reconciled, &status, &tx.DuplicateOf, &applied,
		&tx.CreatedAt,
	)
	if err != nil {
		return tx, fmt.Errorf("scan transaction: %w", err)
	}
	tx.CategoryID = category
	tx.Type = domain.TransactionType(txType)
	tx.TransferSide = domain.TransferSide(domain.Deref(side))
	tx.DuplicateStatus = domain.DuplicateStatus(status)
	if len(parsed) > 0 {
		tx.ParsedData = json.RawMessage(parsed)
	}
	if len(applied) > 0 && string(applied) != "null" {
		if err := json.Unmarshal(applied, &tx.AppliedRules); err != nil {
			return tx, fmt.Errorf("transaction %s: decode applied rules: %w", tx.ID, err)
		}
	}
	return tx, nil
}
