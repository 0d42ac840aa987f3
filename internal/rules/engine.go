package rules

import (
	"context"
	"sort"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
)

// RuleSource provides read access to a user's automation rules.
type RuleSource interface {
	// ListActiveRules returns active, non-deleted rules ordered by priority descending.
	ListActiveRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)

	// ListAccountDetectionRules returns only active account_detection rules, by priority.
	ListAccountDetectionRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)

	// ListTransferRules returns active rules that carry a phone mapping.
	ListTransferRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)

	// FindTransferRuleByPhone resolves the active rule mapped to phone, or nil.
	FindTransferRuleByPhone(ctx context.Context, userID, phone string) (*domain.AutomationRule, error)
}

// Engine evaluates rule lists against transactions. It holds no rules itself;
// callers pass the list they resolved for the current message.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a rule engine that reports misconfigured rules to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// SortRules orders rules by priority descending. Equal priorities keep their
// input order.
func SortRules(rules []domain.AutomationRule) []domain.AutomationRule {
	sorted := make([]domain.AutomationRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}

// Apply folds the post-parse rules over tx. Every matching rule is applied in
// priority order against the state left by the previous ones. A rule whose
// actions would leave an unlinked transfer is skipped with its effects
// discarded. The returned provenance is nil when no rule fired. tx itself is
// not modified.
func (e *Engine) Apply(ctx context.Context, tx domain.Transaction, rules []domain.AutomationRule) (domain.Transaction, []domain.AppliedRule) {
	out := tx.Clone()
	var provenance []domain.AppliedRule

	for _, rule := range SortRules(rules) {
		if !rule.Evaluable() || rule.RuleType == domain.RuleAccountDetection {
			continue
		}

		ok, err := Match(SubjectFromTransaction(out), rule.Conditions, rule.Logic())
		if err != nil {
			e.log.Warn().Err(err).
				Str("rule_id", rule.ID).
				Str("rule_name", rule.Name).
				Msg("Skipping misconfigured rule")
			continue
		}
		if !ok {
			continue
		}

		next := out.Clone()
		applied := ApplyActions(&next, EffectiveActions(rule))
		if next.Type == domain.TypeTransfer && !next.IsLinkedTransfer() {
			e.log.Warn().
				Str("rule_id", rule.ID).
				Str("rule_name", rule.Name).
				Msg("Skipping rule that sets type transfer without a link target")
			continue
		}
		out = next

		provenance = append(provenance, domain.AppliedRule{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			ActionsApplied: applied,
		})

		e.log.Debug().
			Str("rule_id", rule.ID).
			Str("rule_name", rule.Name).
			Msg("Rule applied")
	}

	if len(provenance) > 0 {
		out.AppliedRules = append(out.AppliedRules, provenance...)
	}
	return out, provenance
}

// DetectAccount runs the pre-parse pass: the first account_detection rule, by
// priority, whose conditions hold for rawText. Returns nil when none match.
func (e *Engine) DetectAccount(ctx context.Context, rawText string, rules []domain.AutomationRule) *domain.AutomationRule {
	subject := RawTextSubject(rawText)
	for _, rule := range SortRules(rules) {
		if !rule.Evaluable() || rule.RuleType != domain.RuleAccountDetection {
			continue
		}
		ok, err := Match(subject, rule.Conditions, rule.Logic())
		if err != nil {
			e.log.Warn().Err(err).
				Str("rule_id", rule.ID).
				Str("rule_name", rule.Name).
				Msg("Skipping misconfigured account detection rule")
			continue
		}
		if ok {
			r := rule
			return &r
		}
	}
	return nil
}

// GeneralRules drops account_detection rules from rules.
func GeneralRules(rules []domain.AutomationRule) []domain.AutomationRule {
	out := make([]domain.AutomationRule, 0, len(rules))
	for _, r := range rules {
		if r.RuleType != domain.RuleAccountDetection {
			out = append(out, r)
		}
	}
	return out
}
