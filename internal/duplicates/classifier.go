package duplicates

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/logger"
)

// TransactionStore is the read side of the transaction store the classifier
// needs.
type TransactionStore interface {
	// FindExactDuplicate returns the id of a transaction with the same user,
	// raw text and source, or "" when there is none.
	FindExactDuplicate(ctx context.Context, userID, rawText, source string) (string, error)

	// FindNearDuplicate returns the id of a transaction with the same user,
	// date, amount and account, or "" when there is none.
	FindNearDuplicate(ctx context.Context, userID, date string, amount int64, accountID string) (string, error)
}

// Kind tells which check matched.
type Kind string

const (
	KindExact Kind = "exact"
	KindNear  Kind = "near"
)

// Candidate is the subset of a transaction the checks look at.
type Candidate struct {
	UserID    string
	RawText   string
	Source    string
	Date      string
	Amount    int64
	AccountID string
}

// CandidateFromTransaction builds a Candidate from tx.
func CandidateFromTransaction(tx domain.Transaction) Candidate {
	return Candidate{
		UserID:    tx.UserID,
		RawText:   tx.RawText,
		Source:    tx.Source,
		Date:      tx.Date,
		Amount:    tx.Amount,
		AccountID: tx.AccountID,
	}
}

// Match is a positive classification.
type Match struct {
	DuplicateOf string                 `json:"duplicate_of"`
	Status      domain.DuplicateStatus `json:"status"`
	Kind        Kind                   `json:"kind"`
}

// Classifier flags possible repeats for human review. It never rejects.
type Classifier struct {
	store TransactionStore
}

// NewClassifier creates a Classifier backed by store.
func NewClassifier(store TransactionStore) *Classifier {
	return &Classifier{store: store}
}

// Classify runs the exact check when the candidate has raw text, then the
// near check. It returns nil when neither matches.
func (c *Classifier) Classify(ctx context.Context, cand Candidate) (*Match, error) {
	log := logger.FromContext(ctx)

	if cand.RawText != "" {
		id, err := c.store.FindExactDuplicate(ctx, cand.UserID, cand.RawText, cand.Source)
		if err != nil {
			return nil, fmt.Errorf("Classify: exact lookup: %w", err)
		}
		if id != "" {
			log.Info().Str("duplicate_of", id).Msg("exact duplicate detected")
			return &Match{DuplicateOf: id, Status: domain.DuplicatePendingReview, Kind: KindExact}, nil
		}
	}

	if cand.Date == "" || cand.AccountID == "" {
		return nil, nil
	}

	id, err := c.store.FindNearDuplicate(ctx, cand.UserID, cand.Date, cand.Amount, cand.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Classify: near lookup: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	log.Info().Str("duplicate_of", id).Msg("near duplicate detected")
	return &Match{DuplicateOf: id, Status: domain.DuplicatePendingReview, Kind: KindNear}, nil
}

// Annotate copies m onto tx. A nil match marks tx as not a duplicate.
func Annotate(tx *domain.Transaction, m *Match) {
	if m == nil {
		tx.DuplicateStatus = domain.DuplicateNone
		tx.DuplicateOf = nil
		return
	}
	tx.DuplicateStatus = m.Status
	tx.DuplicateOf = domain.StringPtr(m.DuplicateOf)
}
