package domain

import "time"

// AccountKind is the product type of an account.
type AccountKind string

const (
	KindChecking   AccountKind = "checking"
	KindSavings    AccountKind = "savings"
	KindCreditCard AccountKind = "credit_card"
	KindCredit     AccountKind = "credit"
	KindCash       AccountKind = "cash"
)

// Account is a user ledger account. Balance is kept in minor currency units.
type Account struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Institution string      `json:"institution"`
	LastFour    *string     `json:"last_four,omitempty"`
	Kind        AccountKind `json:"type"`
	Balance     int64       `json:"balance"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at,omitzero"`
}

// Category is a user-defined transaction category.
type Category struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Slug   string          `json:"slug"`
	Name   string          `json:"name"`
	Type   TransactionType `json:"type"`
}

// Well-known category slugs the pipeline resolves by name.
const (
	CategoryTransfer = "transfer"
	CategoryMissing  = "missing"
)

// UserAPIKey is a per-user bearer credential. Only the sha256 hex digest of
// the key is stored.
type UserAPIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitzero"`
}
