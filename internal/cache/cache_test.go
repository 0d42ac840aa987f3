package cache

import (
	"testing"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCache_Balance(t *testing.T) {
	c := newTestCache(t)

	_, ok := c.GetBalance("user-1", "acc-1")
	assert.False(t, ok)

	c.SetBalance("user-1", "acc-1", 250000)
	c.Wait()

	got, ok := c.GetBalance("user-1", "acc-1")
	require.True(t, ok)
	assert.Equal(t, int64(250000), got)

	_, ok = c.GetBalance("user-2", "acc-1")
	assert.False(t, ok, "another user's balance is a miss")

	c.InvalidateBalance("acc-1")
	_, ok = c.GetBalance("user-1", "acc-1")
	assert.False(t, ok)
}

func TestCache_Parse(t *testing.T) {
	c := newTestCache(t)
	parsed := domain.ParsedExpense{IsTransaction: true, Amount: 45000, Description: "RAPPI"}

	c.SetParse("user-1", "Compraste $45.000 en RAPPI", parsed)
	c.Wait()

	got, ok := c.GetParse("user-1", "  compraste $45.000 en rappi ")
	require.True(t, ok)
	assert.Equal(t, parsed, got)

	_, ok = c.GetParse("user-2", "Compraste $45.000 en RAPPI")
	assert.False(t, ok, "parse results are per user")
}

func TestParseKey(t *testing.T) {
	assert.Equal(t, ParseKey("u", "Hello"), ParseKey("u", " hello\n"))
	assert.NotEqual(t, ParseKey("u", "hello"), ParseKey("u", "hello!"))
	assert.Contains(t, ParseKey("u", "x"), "parse:u:")
}
