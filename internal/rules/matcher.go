package rules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

// Subject is the part of a transaction (or a raw pre-parse message) that
// conditions are evaluated against. Amount is nil when no numeric amount is
// known yet.
type Subject struct {
	Description string
	RawText     string
	Amount      *int64
	AccountID   string
	Source      string
}

// SubjectFromTransaction builds a match subject from the current state of tx.
func SubjectFromTransaction(tx domain.Transaction) Subject {
	amount := tx.Amount
	return Subject{
		Description: tx.Description,
		RawText:     tx.RawText,
		Amount:      &amount,
		AccountID:   tx.AccountID,
		Source:      tx.Source,
	}
}

// RawTextSubject builds a subject for the pre-parse account detection pass.
func RawTextSubject(rawText string) Subject {
	return Subject{RawText: rawText}
}

// Match reports whether s satisfies every present condition. logic only
// governs keyword lists: "or" needs any keyword, "and" needs all of them.
// A malformed condition returns an error wrapping domain.ErrInvalidRule.
func Match(s Subject, c domain.Conditions, logic domain.ConditionLogic) (bool, error) {
	if len(c.DescriptionContains) > 0 && !containsKeywords(s.Description, c.DescriptionContains, logic) {
		return false, nil
	}

	if c.DescriptionRegex != "" {
		re, err := regexp.Compile("(?i)" + c.DescriptionRegex)
		if err != nil {
			return false, fmt.Errorf("Match: %w: description_regex %q: %v", domain.ErrInvalidRule, c.DescriptionRegex, err)
		}
		if !re.MatchString(s.Description) {
			return false, nil
		}
	}

	if len(c.RawTextContains) > 0 && !containsKeywords(s.RawText, c.RawTextContains, logic) {
		return false, nil
	}

	if c.AmountBetween != nil {
		if s.Amount == nil {
			return false, nil
		}
		v := float64(*s.Amount)
		if v < c.AmountBetween[0] || v > c.AmountBetween[1] {
			return false, nil
		}
	}

	if c.AmountEquals != nil {
		if s.Amount == nil || float64(*s.Amount) != *c.AmountEquals {
			return false, nil
		}
	}

	if c.FromAccount != "" && s.AccountID != c.FromAccount {
		return false, nil
	}

	if len(c.Source) > 0 && (s.Source == "" || !slices.Contains(c.Source, s.Source)) {
		return false, nil
	}

	return true, nil
}

func containsKeywords(text string, keywords []string, logic domain.ConditionLogic) bool {
	text = strings.ToLower(text)
	if logic == domain.LogicAnd {
		for _, k := range keywords {
			if !strings.Contains(text, strings.ToLower(k)) {
				return false
			}
		}
		return true
	}
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
