package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dvloznov/expense-assistant/internal/domain"
)

// DefaultParseTTL is how long a parsed message stays reusable.
const DefaultParseTTL = 24 * time.Hour

// Cache wraps a ristretto cache with typed accessors for the values the
// service caches: account balances and model parse results.
type Cache struct {
	c        *ristretto.Cache
	parseTTL time.Duration
}

// New creates a cache sized for one service instance.
func New() (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("New: create ristretto cache: %w", err)
	}
	return &Cache{c: c, parseTTL: DefaultParseTTL}, nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}

// Wait blocks until buffered writes are visible to Get.
func (c *Cache) Wait() {
	c.c.Wait()
}

// BalanceKey is the cache key of an account balance.
func BalanceKey(accountID string) string {
	return "balance:" + accountID
}

type ownedBalance struct {
	userID  string
	balance int64
}

// GetBalance returns a cached balance. Entries cached for another user are
// treated as a miss.
func (c *Cache) GetBalance(userID, accountID string) (int64, bool) {
	v, ok := c.c.Get(BalanceKey(accountID))
	if !ok {
		return 0, false
	}
	b, ok := v.(ownedBalance)
	if !ok || b.userID != userID {
		return 0, false
	}
	return b.balance, true
}

// SetBalance caches the balance of one of userID's accounts until the next
// write invalidates it.
func (c *Cache) SetBalance(userID, accountID string, balance int64) {
	c.c.Set(BalanceKey(accountID), ownedBalance{userID: userID, balance: balance}, 1)
}

// InvalidateBalance drops a cached balance.
func (c *Cache) InvalidateBalance(accountID string) {
	c.c.Del(BalanceKey(accountID))
}

// ParseKey is the cache key of a parse result: messages that differ only in
// case or surrounding whitespace share a key within one user.
func ParseKey(userID, text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "parse:" + userID + ":" + hex.EncodeToString(sum[:])
}

// GetParse returns a cached parse result.
func (c *Cache) GetParse(userID, text string) (domain.ParsedExpense, bool) {
	v, ok := c.c.Get(ParseKey(userID, text))
	if !ok {
		return domain.ParsedExpense{}, false
	}
	parsed, ok := v.(domain.ParsedExpense)
	return parsed, ok
}

// SetParse caches a parse result.
func (c *Cache) SetParse(userID, text string, parsed domain.ParsedExpense) {
	c.c.SetWithTTL(ParseKey(userID, text), parsed, 1, c.parseTTL)
}
