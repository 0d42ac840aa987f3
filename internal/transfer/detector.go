package transfer

import (
	"regexp"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

var transferVerbs = []string{"transferiste", "enviaste", "transferencia"}

// Phone patterns are tried in order; the first one that matches wins.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\ba\s+\*(\d{10})\b`),
	regexp.MustCompile(`(?i)\bcuenta\s+\*(\d{10})\b`),
	regexp.MustCompile(`(?i)\ba\s+(\d{10})\s+desde\b`),
}

var originPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdesde\s+(?:tu\s+)?cuenta\s+\*?(\d{4})\b`),
	regexp.MustCompile(`(?i)\bcuenta\s+\*?(\d{4})\s+a\s+la\s+cuenta\b`),
}

// IsTransferMessage reports whether rawText reads like a transfer, or the
// extractor already categorised it as one.
func IsTransferMessage(rawText, category string) bool {
	if strings.EqualFold(strings.TrimSpace(category), domain.CategoryTransfer) {
		return true
	}
	lower := strings.ToLower(rawText)
	for _, verb := range transferVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// ExtractPhone returns the first ten-digit destination identifier found in
// rawText, or "" when none of the phrasings match.
func ExtractPhone(rawText string) string {
	return firstSubmatch(phonePatterns, rawText)
}

// ExtractOriginSuffix returns the last four digits of the account the money
// left from, or "".
func ExtractOriginSuffix(rawText string) string {
	return firstSubmatch(originPatterns, rawText)
}

func firstSubmatch(patterns []*regexp.Regexp, s string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

// NormalizePhone strips everything but digits so stored mappings like
// "*310 463 3357" compare equal to extracted identifiers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Detection is what the detector learned from one message.
type Detection struct {
	Phone        string
	OriginSuffix string
	Rule         *domain.AutomationRule
}

// DestinationAccountID returns the account the matched rule maps the phone
// to: the rule-level target first, then its link action.
func (d Detection) DestinationAccountID() string {
	if d.Rule == nil {
		return ""
	}
	if d.Rule.TransferToAccountID != nil && *d.Rule.TransferToAccountID != "" {
		return *d.Rule.TransferToAccountID
	}
	return d.Rule.Actions.LinkToAccount
}

// Detect extracts identifiers from rawText and resolves the phone against the
// caller's transfer rules.
func Detect(rawText string, transferRules []domain.AutomationRule) Detection {
	d := Detection{
		Phone:        ExtractPhone(rawText),
		OriginSuffix: ExtractOriginSuffix(rawText),
	}
	if d.Phone != "" {
		d.Rule = FindRuleByPhone(transferRules, d.Phone)
	}
	return d
}

// FindRuleByPhone returns the highest-priority evaluable rule whose
// match_phone equals phone.
func FindRuleByPhone(rules []domain.AutomationRule, phone string) *domain.AutomationRule {
	want := NormalizePhone(phone)
	var best *domain.AutomationRule
	for i := range rules {
		r := rules[i]
		if !r.Evaluable() || r.MatchPhone == nil || NormalizePhone(*r.MatchPhone) != want {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best = &rules[i]
		}
	}
	if best == nil {
		return nil
	}
	found := *best
	return &found
}
