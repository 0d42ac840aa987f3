package pipeline

import (
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/dvloznov/expense-assistant/internal/transfer"
)

// Message is one inbound financial message.
type Message struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

// Result is the outcome of processing a message.
type Result struct {
	Status       string                 `json:"status"`
	MessageID    string                 `json:"message_id"`
	Transactions []domain.Transaction   `json:"transactions,omitempty"`
	Transfer     *transfer.Info         `json:"transfer,omitempty"`
	Skipped      *domain.SkippedMessage `json:"skipped,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
}

// Resolved carries the ids a preview resolved.
type Resolved struct {
	AccountID  string `json:"account_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

// Preview is the non-persisting parse of a message.
type Preview struct {
	Status   string               `json:"status"`
	Reason   string               `json:"reason,omitempty"`
	Parsed   domain.ParsedExpense `json:"parsed"`
	Resolved Resolved             `json:"resolved"`
	Usage    *domain.UsageCheck   `json:"usage,omitempty"`
}

// Settings tune a Processor.
type Settings struct {
	// DefaultInstitution names the last-resort account institution.
	DefaultInstitution string
	Location           *time.Location
	StoreTimeout       time.Duration
	ModelTimeout       time.Duration
	// Limits seeds the monthly usage row. A zero AIParses limit disables
	// the parse quota check.
	Limits postgres.UsageLimits
}
