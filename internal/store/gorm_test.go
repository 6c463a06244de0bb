package store

import (
	"context"
	"sync"
	"testing"

	"portfolio-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupGormStore creates a store over a fresh in-memory database.
func setupGormStore(t *testing.T) *GormStore {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// A single connection keeps every test on the same in-memory database
	// and serializes writers the way sqlite itself would.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&models.Account{}, &models.Holding{}, &models.Asset{})
	require.NoError(t, err)

	return NewGormStore(db, zap.NewNop(), 5)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGormStore_CreateAndGet(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "user-1", dec("250.00")))

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", state.AccountID)
	assert.True(t, state.Balance.Equal(dec("250.00")))
	assert.Empty(t, state.Holdings)

	// Create is idempotent for an existing account.
	require.NoError(t, s.Create(ctx, "user-1", dec("999.00")))
	state, err = s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Balance.Equal(dec("250.00")))
}

func TestGormStore_GetUnknownAccount(t *testing.T) {
	s := setupGormStore(t)

	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGormStore_TransactCommitsBalanceAndHoldingTogether(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("100.00")))

	err := s.Transact(ctx, "user-1", func(st *AccountState) error {
		st.Balance = st.Balance.Sub(dec("80.00"))
		st.AddToHolding("BTC", models.ClassCrypto, dec("2"))
		return nil
	})
	require.NoError(t, err)

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Balance.Equal(dec("20.00")))
	assert.True(t, state.Quantity("BTC").Equal(dec("2")))
}

func TestGormStore_TransactAbortLeavesStoreUntouched(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("100.00")))

	wantErr := assert.AnError
	err := s.Transact(ctx, "user-1", func(st *AccountState) error {
		st.Balance = decimal.Zero
		st.AddToHolding("BTC", models.ClassCrypto, dec("1"))
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Balance.Equal(dec("100.00")))
	assert.Empty(t, state.Holdings)
}

func TestGormStore_TransactDeletesExhaustedHolding(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("100.00")))

	require.NoError(t, s.Transact(ctx, "user-1", func(st *AccountState) error {
		st.AddToHolding("BTC", models.ClassCrypto, dec("1"))
		return nil
	}))
	require.NoError(t, s.Transact(ctx, "user-1", func(st *AccountState) error {
		st.ReduceHolding("BTC", dec("1"))
		return nil
	}))

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	_, exists := state.Holdings["BTC"]
	assert.False(t, exists)

	// The row is gone, not zeroed.
	var count int64
	s.db.Model(&models.Holding{}).Where("account_id = ?", "user-1").Count(&count)
	assert.Zero(t, count)
}

func TestGormStore_ConcurrentTransactsSerialize(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("0")))

	// 20 concurrent increments of 1.00 must all survive the version race.
	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Transact(ctx, "user-1", func(st *AccountState) error {
				st.Balance = st.Balance.Add(dec("1.00"))
				return nil
			})
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
		}
	}

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	// Whatever the interleaving, the balance equals the number of commits:
	// no lost updates, no partial writes.
	assert.True(t, state.Balance.Equal(decimal.NewFromInt(int64(committed))),
		"balance %s after %d commits", state.Balance, committed)
}

func TestGormStore_AdjustBalance(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "user-1", dec("50.00")))

	newBalance, err := s.AdjustBalance(ctx, "user-1", dec("25.00"))
	require.NoError(t, err)
	assert.True(t, newBalance.Equal(dec("75.00")))

	_, err = s.AdjustBalance(ctx, "user-1", dec("-100.00"))
	assert.Error(t, err)

	state, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, state.Balance.Equal(dec("75.00")))
}

func TestGormCatalog_Lookup(t *testing.T) {
	s := setupGormStore(t)
	catalog := NewGormCatalog(s.db)
	ctx := context.Background()

	require.NoError(t, s.db.Create(&models.Asset{
		Symbol: "BTC",
		Class:  models.ClassCrypto,
		Name:   "Bitcoin",
		Price:  dec("60000"),
	}).Error)

	asset, err := catalog.Lookup(ctx, "BTC", models.ClassCrypto)
	require.NoError(t, err)
	assert.True(t, asset.Price.Equal(dec("60000")))

	// Same symbol under the other class is a different catalog entry.
	_, err = catalog.Lookup(ctx, "BTC", models.ClassStock)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}
