package domain

import (
	"encoding/json"
	"time"
)

// TransactionType is the direction of a money movement. The stored amount is
// always positive; the type carries the sign.
type TransactionType string

const (
	TypeExpense  TransactionType = "expense"
	TypeIncome   TransactionType = "income"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeExpense, TypeIncome, TypeTransfer:
		return true
	}
	return false
}

// TransferSide marks which half of a linked transfer pair an entry is.
// Single-entry transfers leave it empty.
type TransferSide string

const (
	SideNone     TransferSide = ""
	SideOutgoing TransferSide = "outgoing"
	SideIncoming TransferSide = "incoming"
)

// DuplicateStatus is the review state of a possibly repeated transaction.
type DuplicateStatus string

const (
	DuplicateNone          DuplicateStatus = "none"
	DuplicatePendingReview DuplicateStatus = "pending_review"
)

// Transaction is a candidate or persisted ledger entry.
type Transaction struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id"`

	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM

	Amount      int64           `json:"amount"`
	Description string          `json:"description"`
	CategoryID  *string         `json:"category_id,omitempty"`
	AccountID   string          `json:"account_id"`
	Type        TransactionType `json:"type"`

	PaymentMethod string          `json:"payment_method,omitempty"`
	Source        string          `json:"source"`
	Confidence    int             `json:"confidence"`
	RawText       string          `json:"raw_text,omitempty"`
	ParsedData    json.RawMessage `json:"parsed_data,omitempty"`

	TransferToAccountID *string      `json:"transfer_to_account_id,omitempty"`
	TransferID          *string      `json:"transfer_id,omitempty"`
	TransferSide        TransferSide `json:"transfer_side,omitempty"`

	Notes      string `json:"notes,omitempty"`
	Reconciled bool   `json:"reconciled,omitempty"`

	DuplicateStatus DuplicateStatus `json:"duplicate_status,omitempty"`
	DuplicateOf     *string         `json:"duplicate_of,omitempty"`

	AppliedRules []AppliedRule `json:"applied_rules,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Clone returns a deep copy so rule passes never alias pointer fields of the
// input transaction.
func (t Transaction) Clone() Transaction {
	c := t
	c.CategoryID = cloneString(t.CategoryID)
	c.TransferToAccountID = cloneString(t.TransferToAccountID)
	c.TransferID = cloneString(t.TransferID)
	c.DuplicateOf = cloneString(t.DuplicateOf)
	if t.ParsedData != nil {
		c.ParsedData = append(json.RawMessage(nil), t.ParsedData...)
	}
	if t.AppliedRules != nil {
		c.AppliedRules = append([]AppliedRule(nil), t.AppliedRules...)
	}
	return c
}

// IsLinkedTransfer reports whether the entry already carries both halves of
// the transfer link.
func (t Transaction) IsLinkedTransfer() bool {
	return t.TransferToAccountID != nil && *t.TransferToAccountID != "" && t.TransferID != nil && *t.TransferID != ""
}

// AppliedRule is one provenance record: which rule fired and what it changed.
type AppliedRule struct {
	RuleID         string  `json:"rule_id"`
	RuleName       string  `json:"rule_name"`
	ActionsApplied Actions `json:"actions_applied"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the value behind p, or "" when p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
