package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `
	id, user_id, name, institution, last_four, account_type, balance,
	is_active, created_at`

// AccountQuery describes the account a message refers to. Empty fields are
// unconstrained.
type AccountQuery struct {
	UserID      string
	Institution string
	LastFour    string
	Kind        domain.AccountKind
}

// LookupChain returns the progressively looser queries tried by FindAccount:
// institution+last four+kind, institution+last four, institution+kind, then
// institution alone. Steps that would repeat an earlier one are dropped.
// Without an institution only the last-four steps remain.
func LookupChain(q AccountQuery) []AccountQuery {
	candidates := []AccountQuery{
		q,
		{UserID: q.UserID, Institution: q.Institution, LastFour: q.LastFour},
		{UserID: q.UserID, Institution: q.Institution, Kind: q.Kind},
		{UserID: q.UserID, Institution: q.Institution},
	}

	var chain []AccountQuery
	seen := make(map[AccountQuery]bool)
	for _, c := range candidates {
		if c.Institution == "" && c.LastFour == "" {
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		chain = append(chain, c)
	}
	return chain
}

// where renders the filter of one lookup step.
func (q AccountQuery) where() (string, []any) {
	clauses := []string{"user_id = $1", "is_active"}
	args := []any{q.UserID}

	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if q.Institution != "" {
		add("lower(institution) = lower(?)", q.Institution)
	}
	if q.LastFour != "" {
		add("last_four = ?", q.LastFour)
	}
	if q.Kind != "" {
		add("account_type = ?", string(q.Kind))
	}
	return strings.Join(clauses, " AND "), args
}

// FindAccount walks LookupChain(q) and returns the first active account that
// matches, or nil.
func (s *Store) FindAccount(ctx context.Context, q AccountQuery) (*domain.Account, error) {
	for _, step := range LookupChain(q) {
		where, args := step.where()
		acc, err := s.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where+
			` ORDER BY created_at ASC LIMIT 1`, args...)
		if err != nil {
			return nil, fmt.Errorf("FindAccount: %w", err)
		}
		if acc != nil {
			return acc, nil
		}
	}
	return nil, nil
}

// FindAccountByKind returns the user's oldest active account of the given
// kind, or nil.
func (s *Store) FindAccountByKind(ctx context.Context, userID string, kind domain.AccountKind) (*domain.Account, error) {
	acc, err := s.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE user_id = $1 AND is_active AND account_type = $2
		ORDER BY created_at ASC LIMIT 1`, userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("FindAccountByKind: %w", err)
	}
	return acc, nil
}

// GetAccount returns one of the user's accounts by id, or nil.
func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	acc, err := s.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acc, nil
}

// ListAccounts returns all of the user's accounts.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// GetBalance returns the stored balance of an account.
func (s *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("GetBalance: account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("GetBalance: %w", err)
	}
	return balance, nil
}

// PatchBalance writes next only while the stored balance still equals
// expected. It reports whether the row was updated.
func (s *Store) PatchBalance(ctx context.Context, accountID string, expected, next int64) (bool, error) {
	cmd, err := s.db.Exec(ctx, `UPDATE accounts SET balance = $3 WHERE id = $1 AND balance = $2`,
		accountID, expected, next)
	if err != nil {
		return false, fmt.Errorf("PatchBalance: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *Store) queryAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	acc, err := scanAccount(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		acc  domain.Account
		kind string
	)
	err := row.Scan(&acc.ID, &acc.UserID, &acc.Name, &acc.Institution, &acc.LastFour, &kind,
		&acc.Balance, &acc.IsActive, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acc, err
		}
		return acc, fmt.Errorf("scan account: %w", err)
	}
	acc.Kind = domain.AccountKind(kind)
	return acc, nil
}
