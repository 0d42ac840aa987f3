package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	balances  map[string]int64
	conflicts int
	getErr    map[string]error
}

func newMemStore(balances map[string]int64) *memStore {
	return &memStore{balances: balances, getErr: map[string]error{}}
}

func (s *memStore) GetBalance(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[id]; err != nil {
		return 0, err
	}
	return s.balances[id], nil
}

func (s *memStore) PatchBalance(_ context.Context, id string, expected, next int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		s.balances[id] += 1
		return false, nil
	}
	if s.balances[id] != expected {
		return false, nil
	}
	s.balances[id] = next
	return true, nil
}

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) InvalidateBalance(id string) {
	c.invalidated = append(c.invalidated, id)
}

func quietCtx() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func TestPostings(t *testing.T) {
	tests := []struct {
		name string
		tx   domain.Transaction
		want []Posting
	}{
		{
			name: "expense subtracts",
			tx:   domain.Transaction{AccountID: "a", Type: domain.TypeExpense, Amount: 500},
			want: []Posting{{"a", -500}},
		},
		{
			name: "income adds",
			tx:   domain.Transaction{AccountID: "a", Type: domain.TypeIncome, Amount: 500},
			want: []Posting{{"a", 500}},
		},
		{
			name: "outgoing half only debits its account",
			tx: domain.Transaction{AccountID: "a", Type: domain.TypeTransfer, Amount: 500,
				TransferSide: domain.SideOutgoing, TransferToAccountID: domain.StringPtr("b")},
			want: []Posting{{"a", -500}},
		},
		{
			name: "incoming half only credits its account",
			tx: domain.Transaction{AccountID: "b", Type: domain.TypeTransfer, Amount: 500,
				TransferSide: domain.SideIncoming, TransferToAccountID: domain.StringPtr("a")},
			want: []Posting{{"b", 500}},
		},
		{
			name: "single-entry linked transfer moves both",
			tx: domain.Transaction{AccountID: "a", Type: domain.TypeTransfer, Amount: 500,
				TransferToAccountID: domain.StringPtr("b"), TransferID: domain.StringPtr("t")},
			want: []Posting{{"a", -500}, {"b", 500}},
		},
		{
			name: "unlinked transfer only debits",
			tx:   domain.Transaction{AccountID: "a", Type: domain.TypeTransfer, Amount: 500},
			want: []Posting{{"a", -500}},
		},
		{
			name: "zero amount posts nothing",
			tx:   domain.Transaction{AccountID: "a", Type: domain.TypeExpense},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Postings(tt.tx))
		})
	}
}

func TestLedger_Post_ConservesBalance(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 1000})
	l := New(store)

	deltas := []domain.Transaction{
		{AccountID: "a", Type: domain.TypeExpense, Amount: 300},
		{AccountID: "a", Type: domain.TypeIncome, Amount: 1200},
		{AccountID: "a", Type: domain.TypeExpense, Amount: 50},
	}
	for _, tx := range deltas {
		require.NoError(t, l.Post(quietCtx(), tx))
	}

	assert.Equal(t, int64(1000-300+1200-50), store.balances["a"])
}

func TestLedger_Post_TransferPairNetsToZero(t *testing.T) {
	store := newMemStore(map[string]int64{"origin": 500000, "dest": 0})
	l := New(store)

	out := domain.Transaction{AccountID: "origin", Type: domain.TypeTransfer, Amount: 100000,
		TransferSide: domain.SideOutgoing, TransferToAccountID: domain.StringPtr("dest"), TransferID: domain.StringPtr("t1")}
	in := domain.Transaction{AccountID: "dest", Type: domain.TypeTransfer, Amount: 100000,
		TransferSide: domain.SideIncoming, TransferToAccountID: domain.StringPtr("origin"), TransferID: domain.StringPtr("t1")}

	require.NoError(t, l.Post(quietCtx(), out))
	require.NoError(t, l.Post(quietCtx(), in))

	assert.Equal(t, int64(400000), store.balances["origin"])
	assert.Equal(t, int64(100000), store.balances["dest"])
}

func TestLedger_Post_InvalidatesCacheAfterEachWrite(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 0, "b": 0})
	cache := &recordingCache{}
	l := New(store, WithInvalidator(cache))

	tx := domain.Transaction{AccountID: "a", Type: domain.TypeTransfer, Amount: 10,
		TransferToAccountID: domain.StringPtr("b"), TransferID: domain.StringPtr("t")}
	require.NoError(t, l.Post(quietCtx(), tx))

	assert.Equal(t, []string{"a", "b"}, cache.invalidated)
}

func TestLedger_Post_RetriesOnConflict(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 100})
	store.conflicts = 2
	l := New(store, WithMaxAttempts(3))

	require.NoError(t, l.Post(quietCtx(), domain.Transaction{AccountID: "a", Type: domain.TypeExpense, Amount: 10}))

	// two foreign writes of +1 landed before ours
	assert.Equal(t, int64(100+2-10), store.balances["a"])
}

func TestLedger_Post_FailsFastOnConflictByDefault(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 100})
	store.conflicts = 1
	l := New(store)

	err := l.Post(quietCtx(), domain.Transaction{AccountID: "a", Type: domain.TypeExpense, Amount: 10})

	assert.ErrorIs(t, err, ErrBalanceConflict)
	assert.Equal(t, int64(101), store.balances["a"], "foreign write is kept, ours is not applied")
}

func TestLedger_Post_GivesUpAfterMaxAttempts(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 100})
	store.conflicts = 5
	cache := &recordingCache{}
	l := New(store, WithMaxAttempts(2), WithInvalidator(cache))

	err := l.Post(quietCtx(), domain.Transaction{AccountID: "a", Type: domain.TypeExpense, Amount: 10})

	assert.ErrorIs(t, err, ErrBalanceConflict)
	assert.Empty(t, cache.invalidated)
}

func TestLedger_Post_SecondLegFailureIsReported(t *testing.T) {
	boom := errors.New("store down")
	store := newMemStore(map[string]int64{"a": 100, "b": 0})
	store.getErr["b"] = boom
	l := New(store)

	tx := domain.Transaction{AccountID: "a", Type: domain.TypeTransfer, Amount: 10,
		TransferToAccountID: domain.StringPtr("b"), TransferID: domain.StringPtr("t")}
	err := l.Post(quietCtx(), tx)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "account b")
	assert.Equal(t, int64(90), store.balances["a"])
}

func TestLedger_Post_ConcurrentPostingsDoNotLoseUpdates(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 0})
	l := New(store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Post(quietCtx(), domain.Transaction{AccountID: "a", Type: domain.TypeIncome, Amount: 2}))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), store.balances["a"])
}

func TestLedger_Post_ReleasesAccountLocks(t *testing.T) {
	store := newMemStore(map[string]int64{"a": 0, "b": 0, "c": 0})
	l := New(store)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc := []string{"a", "b", "c"}[i%3]
			assert.NoError(t, l.Post(quietCtx(), domain.Transaction{AccountID: acc, Type: domain.TypeExpense, Amount: 5}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(-50), store.balances["a"])
	assert.Equal(t, int64(-50), store.balances["c"])
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}
