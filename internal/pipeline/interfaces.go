package pipeline

import (
	"context"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/duplicates"
	"github.com/dvloznov/expense-assistant/internal/gemini"
	infra "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
)

// RuleSource lists the rules a message is evaluated against.
type RuleSource interface {
	ListActiveRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)
	ListAccountDetectionRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)
	ListTransferRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)
}

// AccountStore resolves accounts. Lookups return nil, nil on a miss.
type AccountStore interface {
	FindAccount(ctx context.Context, q postgres.AccountQuery) (*domain.Account, error)
	FindAccountByKind(ctx context.Context, userID string, kind domain.AccountKind) (*domain.Account, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
}

// CategoryStore resolves categories. Lookups return nil, nil on a miss.
type CategoryStore interface {
	FindCategoryBySlug(ctx context.Context, userID, slug string) (*domain.Category, error)
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// TransactionStore persists entries and answers duplicate lookups.
type TransactionStore interface {
	duplicates.TransactionStore
	InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
}

// SkippedStore records messages that are not transactions.
type SkippedStore interface {
	InsertSkippedMessage(ctx context.Context, m domain.SkippedMessage) (domain.SkippedMessage, error)
}

// UsageStore meters the monthly quotas.
type UsageStore interface {
	IncrementAIParses(ctx context.Context, userID, month string, limits postgres.UsageLimits) (domain.UsageCheck, error)
	IncrementTransactions(ctx context.Context, userID, month string, n int, limits postgres.UsageLimits) (domain.UsageCheck, error)
}

// Store groups the persistence collaborators. *postgres.Store satisfies it.
type Store interface {
	RuleSource
	AccountStore
	CategoryStore
	TransactionStore
	SkippedStore
	UsageStore
}

// Parser extracts a ParsedExpense from message text. *gemini.Client
// satisfies it.
type Parser interface {
	ParseExpense(ctx context.Context, text string, pc gemini.PromptContext) (gemini.ParseResult, error)
	Model() string
}

// Poster applies a persisted entry to account balances. *ledger.Ledger
// satisfies it.
type Poster interface {
	Post(ctx context.Context, tx domain.Transaction) error
}

// ParseCache memoizes parse results. *cache.Cache satisfies it.
type ParseCache interface {
	GetParse(userID, text string) (domain.ParsedExpense, bool)
	SetParse(userID, text string, parsed domain.ParsedExpense)
}

// Auditor records model calls. Failures are logged, never fatal.
type Auditor interface {
	RecordParse(ctx context.Context, rec infra.ParseRecord) error
}

// Deps are the collaborators of a Processor. Cache and Auditor are optional.
type Deps struct {
	Store   Store
	Parser  Parser
	Ledger  Poster
	Cache   ParseCache
	Auditor Auditor
}
