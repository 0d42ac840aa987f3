package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RuleType selects which pass evaluates a rule.
type RuleType string

const (
	RuleGeneral          RuleType = "general"
	RuleAccountDetection RuleType = "account_detection"
	RuleTransfer         RuleType = "transfer"
)

// ConditionLogic governs how multi-keyword conditions combine.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

// ErrInvalidRule is returned for malformed rule definitions.
var ErrInvalidRule = errors.New("invalid rule")

// AutomationRule is a user-owned rewrite rule.
type AutomationRule struct {
	ID       string `json:"id,omitempty"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	Priority int    `json:"priority"`

	RuleType       RuleType       `json:"rule_type"`
	ConditionLogic ConditionLogic `json:"condition_logic"`
	Conditions     Conditions     `json:"conditions"`
	Actions        Actions        `json:"actions"`

	// MatchPhone is only set on transfer rules.
	MatchPhone          *string `json:"match_phone,omitempty"`
	TransferToAccountID *string `json:"transfer_to_account_id,omitempty"`

	// PromptText is extra guidance forwarded to the parsing model.
	PromptText *string `json:"prompt_text,omitempty"`
	// AIPrompt is the user request the rule was generated from, if any.
	AIPrompt *string `json:"ai_prompt,omitempty"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// Logic returns the rule's condition logic, defaulting to "or".
func (r AutomationRule) Logic() ConditionLogic {
	if r.ConditionLogic == "" {
		return LogicOr
	}
	return r.ConditionLogic
}

// Evaluable reports whether the rule is active and not soft-deleted.
func (r AutomationRule) Evaluable() bool {
	return r.IsActive && r.DeletedAt == nil
}

// Validate checks a rule at the authoring boundary so the evaluation core can
// trust the shape of what it receives.
func (r AutomationRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	switch r.RuleType {
	case RuleGeneral, RuleAccountDetection, RuleTransfer:
	default:
		return fmt.Errorf("%w: unknown rule_type %q", ErrInvalidRule, r.RuleType)
	}
	switch r.ConditionLogic {
	case LogicAnd, LogicOr, "":
	default:
		return fmt.Errorf("%w: unknown condition_logic %q", ErrInvalidRule, r.ConditionLogic)
	}
	if r.MatchPhone != nil && r.RuleType != RuleTransfer {
		return fmt.Errorf("%w: match_phone is only allowed on transfer rules", ErrInvalidRule)
	}
	if err := r.Conditions.Validate(); err != nil {
		return err
	}
	if err := r.Actions.Validate(); err != nil {
		return err
	}
	if r.Actions.SetType == TypeTransfer && r.Actions.LinkToAccount == "" && Deref(r.TransferToAccountID) == "" {
		return fmt.Errorf("%w: set_type transfer needs link_to_account or transfer_to_account_id", ErrInvalidRule)
	}
	return nil
}

// Conditions is the closed set of optional match criteria. A zero field places
// no constraint on the candidate.
type Conditions struct {
	DescriptionContains []string    `json:"description_contains,omitempty"`
	DescriptionRegex    string      `json:"description_regex,omitempty"`
	RawTextContains     []string    `json:"raw_text_contains,omitempty"`
	AmountBetween       *[2]float64 `json:"amount_between,omitempty"`
	AmountEquals        *float64    `json:"amount_equals,omitempty"`
	FromAccount         string      `json:"from_account,omitempty"`
	Source              []string    `json:"source,omitempty"`
}

// Validate rejects conditions the matcher could never evaluate.
func (c Conditions) Validate() error {
	if c.DescriptionRegex != "" {
		if _, err := regexp.Compile("(?i)" + c.DescriptionRegex); err != nil {
			return fmt.Errorf("%w: description_regex: %v", ErrInvalidRule, err)
		}
	}
	if c.AmountBetween != nil && c.AmountBetween[0] > c.AmountBetween[1] {
		return fmt.Errorf("%w: amount_between min %v is greater than max %v",
			ErrInvalidRule, c.AmountBetween[0], c.AmountBetween[1])
	}
	return nil
}

// IsEmpty reports whether no condition field is present.
func (c Conditions) IsEmpty() bool {
	return len(c.DescriptionContains) == 0 && c.DescriptionRegex == "" &&
		len(c.RawTextContains) == 0 && c.AmountBetween == nil &&
		c.AmountEquals == nil && c.FromAccount == "" && len(c.Source) == 0
}

// Actions is the closed set of optional rewrites applied when a rule fires.
type Actions struct {
	SetType       TransactionType `json:"set_type,omitempty"`
	SetCategory   CategoryAction  `json:"set_category,omitzero"`
	SetAccount    string          `json:"set_account,omitempty"`
	LinkToAccount string          `json:"link_to_account,omitempty"`
	AutoReconcile bool            `json:"auto_reconcile,omitempty"`
	AddNote       string          `json:"add_note,omitempty"`
}

// Validate rejects unknown action values.
func (a Actions) Validate() error {
	if a.SetType != "" && !a.SetType.Valid() {
		return fmt.Errorf("%w: unknown set_type %q", ErrInvalidRule, a.SetType)
	}
	return nil
}

// IsEmpty reports whether no action field is present.
func (a Actions) IsEmpty() bool {
	return a.SetType == "" && a.SetCategory.IsZero() && a.SetAccount == "" &&
		a.LinkToAccount == "" && !a.AutoReconcile && a.AddNote == ""
}

// CategoryAction distinguishes an absent set_category from an explicit null,
// which clears the category.
type CategoryAction struct {
	Present bool
	Value   string
}

// SetCategoryTo returns an action that assigns the given category id.
func SetCategoryTo(id string) CategoryAction {
	return CategoryAction{Present: true, Value: id}
}

// ClearCategory returns an action that removes the category.
func ClearCategory() CategoryAction {
	return CategoryAction{Present: true}
}

// IsZero reports whether the action is absent.
func (c CategoryAction) IsZero() bool {
	return !c.Present
}

// Clears reports whether the action removes the category.
func (c CategoryAction) Clears() bool {
	return c.Present && c.Value == ""
}

func (c CategoryAction) MarshalJSON() ([]byte, error) {
	if !c.Present || c.Value == "" {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

func (c *CategoryAction) UnmarshalJSON(data []byte) error {
	c.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		c.Value = ""
		return nil
	}
	if err := json.Unmarshal(data, &c.Value); err != nil {
		return fmt.Errorf("set_category: %w", err)
	}
	return nil
}
