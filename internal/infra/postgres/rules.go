package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `
	id, user_id, name, is_active, priority, rule_type, condition_logic,
	conditions, actions, match_phone, transfer_to_account_id,
	prompt_text, ai_prompt, deleted_at, created_at, updated_at`

// Active rules in evaluation order. created_at breaks priority ties so the
// order is stable between calls.
const activeRulesWhere = `
	WHERE user_id = $1 AND is_active AND deleted_at IS NULL`

const ruleOrder = `
	ORDER BY priority DESC, created_at ASC, id ASC`

// ListActiveRules returns the user's active, non-deleted rules by descending
// priority.
func (s *Store) ListActiveRules(ctx context.Context, userID string) ([]domain.AutomationRule, error) {
	rules, err := s.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules`+activeRulesWhere+ruleOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: %w", err)
	}
	return rules, nil
}

// ListAccountDetectionRules returns the user's active account_detection rules.
func (s *Store) ListAccountDetectionRules(ctx context.Context, userID string) ([]domain.AutomationRule, error) {
	rules, err := s.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules`+activeRulesWhere+
		` AND rule_type = 'account_detection'`+ruleOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccountDetectionRules: %w", err)
	}
	return rules, nil
}

// ListTransferRules returns the user's active rules carrying a phone mapping.
func (s *Store) ListTransferRules(ctx context.Context, userID string) ([]domain.AutomationRule, error) {
	rules, err := s.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules`+activeRulesWhere+
		` AND match_phone IS NOT NULL AND match_phone <> ''`+ruleOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("ListTransferRules: %w", err)
	}
	return rules, nil
}

// FindTransferRuleByPhone returns the highest-priority active rule whose
// match_phone equals phone, or nil.
func (s *Store) FindTransferRuleByPhone(ctx context.Context, userID, phone string) (*domain.AutomationRule, error) {
	rules, err := s.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules`+activeRulesWhere+
		` AND match_phone = $2`+ruleOrder+` LIMIT 1`, userID, phone)
	if err != nil {
		return nil, fmt.Errorf("FindTransferRuleByPhone: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &rules[0], nil
}

// ListRules returns every non-deleted rule of the user, active or not.
func (s *Store) ListRules(ctx context.Context, userID string) ([]domain.AutomationRule, error) {
	rules, err := s.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules
		WHERE user_id = $1 AND deleted_at IS NULL`+ruleOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	return rules, nil
}

// InsertRule stores a rule and returns it with its generated id and
// timestamps.
func (s *Store) InsertRule(ctx context.Context, r domain.AutomationRule) (domain.AutomationRule, error) {
	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return domain.AutomationRule{}, fmt.Errorf("InsertRule: marshal conditions: %w", err)
	}
	acts, err := json.Marshal(r.Actions)
	if err != nil {
		return domain.AutomationRule{}, fmt.Errorf("InsertRule: marshal actions: %w", err)
	}

	query := `
		INSERT INTO automation_rules (
			user_id, name, is_active, priority, rule_type, condition_logic,
			conditions, actions, match_phone, transfer_to_account_id,
			prompt_text, ai_prompt
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + ruleColumns

	row := s.db.QueryRow(ctx, query,
		r.UserID, r.Name, r.IsActive, r.Priority, string(r.RuleType), string(r.Logic()),
		conds, acts, r.MatchPhone, r.TransferToAccountID,
		r.PromptText, r.AIPrompt,
	)
	out, err := scanRule(row)
	if err != nil {
		return domain.AutomationRule{}, fmt.Errorf("InsertRule: %w", err)
	}
	return out, nil
}

// SoftDeleteRule marks a rule deleted. Rules are never removed because
// transaction provenance refers to them.
func (s *Store) SoftDeleteRule(ctx context.Context, userID, ruleID string) error {
	query := `
		UPDATE automation_rules
		SET deleted_at = NOW(), is_active = false, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	cmd, err := s.db.Exec(ctx, query, ruleID, userID)
	if err != nil {
		return fmt.Errorf("SoftDeleteRule: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("SoftDeleteRule: rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func scanRule(row pgx.Row) (domain.AutomationRule, error) {
	var (
		r              domain.AutomationRule
		ruleType       string
		logic          string
		conds, actions []byte
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.Name, &r.IsActive, &r.Priority, &ruleType, &logic,
		&conds, &actions, &r.MatchPhone, &r.TransferToAccountID,
		&r.PromptText, &r.AIPrompt, &r.DeletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scan rule: %w", err)
	}
	r.RuleType = domain.RuleType(ruleType)
	r.ConditionLogic = domain.ConditionLogic(logic)

	if len(conds) > 0 {
		if err := json.Unmarshal(conds, &r.Conditions); err != nil {
			return r, fmt.Errorf("rule %s: decode conditions: %w", r.ID, err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return r, fmt.Errorf("rule %s: decode actions: %w", r.ID, err)
		}
	}
	return r, nil
}
