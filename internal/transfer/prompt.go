package transfer

import (
	"fmt"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// BuildTransferPromptSection lists the user's phone-to-account mappings so the
// parsing model can recognise internal transfers. Returns "" when there are
// none.
func BuildTransferPromptSection(transferRules []domain.AutomationRule) string {
	var lines []string
	for _, r := range transferRules {
		if r.MatchPhone == nil || *r.MatchPhone == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- *%s → %s (internal transfer)", NormalizePhone(*r.MatchPhone), r.Name))
	}
	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("KNOWN TRANSFERS:\n")
	b.WriteString("Money sent to these destinations moves between the user's own accounts. ")
	b.WriteString("Set category to \"transfer\" when the message sends money to one of them.\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// BuildAutomationRulesPromptSection renders the user's general rules as hints
// for the parsing model. Transfer rules and rules with no conditions or no
// actions are left out.
func BuildAutomationRulesPromptSection(rules []domain.AutomationRule) string {
	var lines []string
	for _, r := range rules {
		if r.MatchPhone != nil || r.RuleType == domain.RuleAccountDetection {
			continue
		}
		conds := describeConditions(r.Conditions)
		acts := describeActions(r.Actions)
		if len(conds) == 0 || len(acts) == 0 {
			continue
		}
		joiner := " AND "
		if r.Logic() == domain.LogicOr {
			joiner = " OR "
		}
		lines = append(lines, fmt.Sprintf("- %s: if %s then %s", r.Name, strings.Join(conds, joiner), strings.Join(acts, ", ")))
	}
	if len(lines) == 0 {
		return ""
	}
	return "USER AUTOMATION RULES (apply when relevant):\n" + strings.Join(lines, "\n")
}

func describeConditions(c domain.Conditions) []string {
	var out []string
	if len(c.DescriptionContains) > 0 {
		out = append(out, fmt.Sprintf("description contains [%s]", strings.Join(c.DescriptionContains, ", ")))
	}
	if c.DescriptionRegex != "" {
		out = append(out, fmt.Sprintf("description matches /%s/", c.DescriptionRegex))
	}
	if len(c.RawTextContains) > 0 {
		out = append(out, fmt.Sprintf("text contains [%s]", strings.Join(c.RawTextContains, ", ")))
	}
	if c.AmountBetween != nil {
		out = append(out, fmt.Sprintf("amount between %s-%s", formatAmount(c.AmountBetween[0]), formatAmount(c.AmountBetween[1])))
	}
	if c.AmountEquals != nil {
		out = append(out, fmt.Sprintf("amount equals %s", formatAmount(*c.AmountEquals)))
	}
	if len(c.Source) > 0 {
		out = append(out, fmt.Sprintf("source is [%s]", strings.Join(c.Source, ", ")))
	}
	return out
}

func describeActions(a domain.Actions) []string {
	var out []string
	if a.SetType != "" {
		out = append(out, fmt.Sprintf("type is %s", a.SetType))
	}
	if a.SetCategory.Present && !a.SetCategory.Clears() {
		out = append(out, fmt.Sprintf("category is %s", a.SetCategory.Value))
	}
	if a.AddNote != "" {
		out = append(out, fmt.Sprintf("note %q", a.AddNote))
	}
	return out
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
