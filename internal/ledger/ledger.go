package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
)

// ErrBalanceConflict is returned when an account balance kept changing under
// a posting for every attempt.
var ErrBalanceConflict = errors.New("balance changed concurrently")

// DefaultMaxAttempts bounds the compare-and-swap loop per account update.
// Writers inside one process are already serialized per account, so a
// conflict means another process wrote the balance; by default that fails
// the posting instead of retrying.
const DefaultMaxAttempts = 1

// BalanceStore is the account side of the store the ledger writes to.
type BalanceStore interface {
	// GetBalance returns the current balance of the account in minor units.
	GetBalance(ctx context.Context, accountID string) (int64, error)

	// PatchBalance sets the balance to next only if it still equals expected.
	// It reports false when the stored value no longer matched.
	PatchBalance(ctx context.Context, accountID string, expected, next int64) (bool, error)
}

// Invalidator drops cached balances after a write.
type Invalidator interface {
	InvalidateBalance(accountID string)
}

// Posting is one signed balance change on one account.
type Posting struct {
	AccountID string `json:"account_id"`
	Delta     int64  `json:"delta"`
}

// NewBalance is the pure balance transition.
func NewBalance(old, delta int64) int64 {
	return old + delta
}

// Postings returns the balance changes tx causes, in the order they are
// applied.
//
// One half of a linked transfer pair only touches its own account; the other
// half is posted separately. A linked transfer with no side is a single entry
// and moves money on both accounts.
func Postings(tx domain.Transaction) []Posting {
	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}
	if amount == 0 || tx.AccountID == "" {
		return nil
	}

	switch tx.Type {
	case domain.TypeIncome:
		return []Posting{{AccountID: tx.AccountID, Delta: amount}}
	case domain.TypeTransfer:
		switch tx.TransferSide {
		case domain.SideIncoming:
			return []Posting{{AccountID: tx.AccountID, Delta: amount}}
		case domain.SideOutgoing:
			return []Posting{{AccountID: tx.AccountID, Delta: -amount}}
		}
		out := []Posting{{AccountID: tx.AccountID, Delta: -amount}}
		if dest := domain.Deref(tx.TransferToAccountID); dest != "" && dest != tx.AccountID {
			out = append(out, Posting{AccountID: dest, Delta: amount})
		}
		return out
	default:
		return []Posting{{AccountID: tx.AccountID, Delta: -amount}}
	}
}

// Ledger keeps account balances in step with persisted transactions.
type Ledger struct {
	store       BalanceStore
	cache       Invalidator
	maxAttempts int

	mu    sync.Mutex
	locks map[string]*accountLock
}

// accountLock serializes writers of one account. refs counts the goroutines
// holding or waiting for it; the entry is removed when it drops to zero.
type accountLock struct {
	sync.Mutex
	refs int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithInvalidator sets the cache dropped after every balance write.
func WithInvalidator(inv Invalidator) Option {
	return func(l *Ledger) { l.cache = inv }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// New creates a Ledger writing to store.
func New(store BalanceStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		locks:       make(map[string]*accountLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post applies every posting of tx. Each account is updated independently;
// an error on the second account of a transfer leaves the first applied and
// is returned for the caller to surface.
func (l *Ledger) Post(ctx context.Context, tx domain.Transaction) error {
	log := logger.FromContext(ctx)

	for _, p := range Postings(tx) {
		balance, err := l.apply(ctx, p)
		if err != nil {
			return fmt.Errorf("Post: account %s: %w", p.AccountID, err)
		}
		log.Debug().
			Str("transaction_id", tx.ID).
			Str("account_id", p.AccountID).
			Int64("delta", p.Delta).
			Int64("balance", balance).
			Msg("balance updated")
	}
	return nil
}

func (l *Ledger) apply(ctx context.Context, p Posting) (int64, error) {
	lock := l.acquire(p.AccountID)
	defer l.release(p.AccountID, lock)

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		current, err := l.store.GetBalance(ctx, p.AccountID)
		if err != nil {
			return 0, fmt.Errorf("read balance: %w", err)
		}

		next := NewBalance(current, p.Delta)
		ok, err := l.store.PatchBalance(ctx, p.AccountID, current, next)
		if err != nil {
			return 0, fmt.Errorf("write balance: %w", err)
		}
		if ok {
			if l.cache != nil {
				l.cache.InvalidateBalance(p.AccountID)
			}
			return next, nil
		}

		logConflict(logger.FromContext(ctx), p.AccountID, attempt)
	}
	return 0, ErrBalanceConflict
}

func (l *Ledger) acquire(accountID string) *accountLock {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &accountLock{}
		l.locks[accountID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return lock
}

func (l *Ledger) release(accountID string, lock *accountLock) {
	lock.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, accountID)
	}
}

func logConflict(log zerolog.Logger, accountID string, attempt int) {
	log.Warn().Str("account_id", accountID).Int("attempt", attempt).Msg("balance changed between read and write, retrying")
}
