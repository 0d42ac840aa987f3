package domain

import (
	"encoding/json"
	"math"
	"time"
)

// ParsedExpense is the record returned by the text-extraction model.
type ParsedExpense struct {
	IsTransaction bool    `json:"is_transaction"`
	SkipReason    *string `json:"skip_reason"`
	Amount        float64 `json:"amount"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	Bank          string  `json:"bank"`
	PaymentType   string  `json:"payment_type"`
	Confidence    int     `json:"confidence"`
	OriginalDate  *string `json:"original_date"` // DD/MM/YYYY
	OriginalTime  *string `json:"original_time"` // HH:MM
	LastFour      *string `json:"last_four"`
	AccountType   *string `json:"account_type"`
}

// AmountMinor rounds the model's amount to an integer of minor units.
func (p ParsedExpense) AmountMinor() int64 {
	return int64(math.Round(math.Abs(p.Amount)))
}

// JSON returns the record as raw JSON for provenance storage.
func (p ParsedExpense) JSON() json.RawMessage {
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}

// SkippedMessage records an inbound message the model judged not to be a
// transaction.
type SkippedMessage struct {
	ID         string          `json:"id,omitempty"`
	UserID     string          `json:"user_id"`
	RawText    string          `json:"raw_text"`
	Source     string          `json:"source,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	ParsedData json.RawMessage `json:"parsed_data,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitzero"`
}

// UsageRecord tracks a user's monthly quota consumption.
type UsageRecord struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Month             string    `json:"month"` // YYYY-MM
	AIParsesUsed      int       `json:"ai_parses_used"`
	AIParsesLimit     int       `json:"ai_parses_limit"`
	TransactionsCount int       `json:"transactions_count"`
	TransactionsLimit int       `json:"transactions_limit"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}

// UsageCheck is the outcome of consuming one unit of a quota.
type UsageCheck struct {
	Allowed bool `json:"allowed"`
	Used    int  `json:"used"`
	Limit   int  `json:"limit"`
}

// Message sources the pipeline knows about.
const (
	SourceAPI      = "api"
	SourceTelegram = "telegram"
	SourceEmail    = "email"
	SourceManual   = "manual"
)
