package rules

import (
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// AccountRulePriority is the priority given to generated account detection rules.
const AccountRulePriority = 100

// GenerateAccountRules builds one account_detection rule per active non-cash
// account, keyed on its institution and last four digits. The rules are
// returned unsaved.
func GenerateAccountRules(userID string, accounts []domain.Account) []domain.AutomationRule {
	var out []domain.AutomationRule
	for _, acc := range accounts {
		if acc.Kind == domain.KindCash || !acc.IsActive {
			continue
		}

		var keywords []string
		if acc.Institution != "" {
			keywords = append(keywords, acc.Institution)
		}
		if acc.LastFour != nil && *acc.LastFour != "" {
			keywords = append(keywords, *acc.LastFour)
		}
		if len(keywords) == 0 {
			continue
		}

		out = append(out, domain.AutomationRule{
			UserID:         userID,
			Name:           fmt.Sprintf("Account: %s", acc.Name),
			IsActive:       true,
			Priority:       AccountRulePriority,
			RuleType:       domain.RuleAccountDetection,
			ConditionLogic: domain.LogicAnd,
			Conditions:     domain.Conditions{RawTextContains: keywords},
			Actions:        domain.Actions{SetAccount: acc.ID},
		})
	}
	return out
}

// Defaults applied to model-generated rules that leave fields out.
const (
	DefaultGeneratedName     = "Unnamed Rule"
	DefaultGeneratedPriority = 50
)

// GeneratedRule is the loose shape a rule-generation model returns; pointer
// fields distinguish "absent" from zero values.
type GeneratedRule struct {
	Name           string                `json:"name"`
	IsActive       *bool                 `json:"is_active"`
	Priority       *int                  `json:"priority"`
	RuleType       domain.RuleType       `json:"rule_type"`
	ConditionLogic domain.ConditionLogic `json:"condition_logic"`
	Conditions     domain.Conditions     `json:"conditions"`
	Actions        domain.Actions        `json:"actions"`
}

// Normalize fills defaults and returns an unsaved rule owned by userID.
func (g GeneratedRule) Normalize(userID, prompt string) domain.AutomationRule {
	r := domain.AutomationRule{
		UserID:         userID,
		Name:           g.Name,
		IsActive:       true,
		Priority:       DefaultGeneratedPriority,
		RuleType:       g.RuleType,
		ConditionLogic: g.ConditionLogic,
		Conditions:     g.Conditions,
		Actions:        g.Actions,
	}
	if r.Name == "" {
		r.Name = DefaultGeneratedName
	}
	if g.IsActive != nil {
		r.IsActive = *g.IsActive
	}
	if g.Priority != nil {
		r.Priority = *g.Priority
	}
	if r.RuleType == "" {
		r.RuleType = domain.RuleGeneral
	}
	if r.ConditionLogic == "" {
		r.ConditionLogic = domain.LogicOr
	}
	if prompt != "" {
		r.AIPrompt = domain.StringPtr(prompt)
	}
	return r
}
