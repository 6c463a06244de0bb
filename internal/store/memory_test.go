package store

import (
	"context"
	"sync"
	"testing"

	"portfolio-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TransactIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("100.00")))

	// The state handed to a reader is a copy; mutating it must not leak.
	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	state.Balance = decimal.Zero
	state.AddToHolding("BTC", models.ClassCrypto, dec("5"))

	fresh, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(dec("100.00")))
	assert.Empty(t, fresh.Holdings)
}

func TestMemoryStore_ConcurrentTransacts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("0")))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Transact(ctx, "user-1", func(st *AccountState) error {
				st.Balance = st.Balance.Add(dec("1"))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Balance.Equal(decimal.NewFromInt(workers)))
}

func TestAccountState_ReduceHoldingDeletesAtZero(t *testing.T) {
	st := &AccountState{
		AccountID: "user-1",
		Holdings:  make(map[string]models.Holding),
	}

	st.AddToHolding("BTC", models.ClassCrypto, dec("2"))
	st.ReduceHolding("BTC", dec("2"))
	_, exists := st.Holdings["BTC"]
	assert.False(t, exists)

	// Reducing an absent symbol is a no-op.
	st.ReduceHolding("ETH", dec("1"))
	assert.Empty(t, st.Holdings)
}

func TestAccountState_DistinctSymbols(t *testing.T) {
	st := &AccountState{
		AccountID: "user-1",
		Holdings:  make(map[string]models.Holding),
	}

	st.AddToHolding("BTC", models.ClassCrypto, dec("1"))
	st.AddToHolding("ETH", models.ClassCrypto, dec("1"))
	st.AddToHolding("AAPL", models.ClassStock, dec("1"))

	assert.Equal(t, 2, st.DistinctSymbols(models.ClassCrypto))
	assert.Equal(t, 1, st.DistinctSymbols(models.ClassStock))
}
