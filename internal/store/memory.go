package store

import (
	"context"
	"fmt"
	"sync"

	"portfolio-trader-go/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process AccountStore used in tests and for local
// development. A per-account mutex, held only across the read-validate-write
// section, stands in for the remote store's transactional guarantee.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
}

type memoryAccount struct {
	mu    sync.Mutex
	state *AccountState
}

var _ AccountStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*memoryAccount)}
}

func (s *MemoryStore) account(accountID string) (*memoryAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account '%s': %w", accountID, ErrAccountNotFound)
	}
	return acc, nil
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (*AccountState, error) {
	acc, err := s.account(accountID)
	if err != nil {
		return nil, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.state.clone(), nil
}

func (s *MemoryStore) Transact(ctx context.Context, accountID string, fn TxFunc) error {
	acc, err := s.account(accountID)
	if err != nil {
		return err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	next := acc.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	next.version = acc.state.version + 1
	acc.state = next
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, accountID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; ok {
		return nil
	}
	s.accounts[accountID] = &memoryAccount{
		state: &AccountState{
			AccountID: accountID,
			Balance:   balance,
			Holdings:  make(map[string]models.Holding),
		},
	}
	return nil
}

func (s *MemoryStore) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.Transact(ctx, accountID, func(st *AccountState) error {
		next := st.Balance.Add(delta)
		if next.IsNegative() {
			return fmt.Errorf("balance adjustment of %s would overdraw account '%s'", delta, accountID)
		}
		st.Balance = next
		newBalance = next
		return nil
	})
	return newBalance, err
}

// MemoryCatalog is a fixed in-process Catalog for tests.
type MemoryCatalog struct {
	mu     sync.RWMutex
	assets map[string]models.Asset
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{assets: make(map[string]models.Asset)}
}

func catalogKey(symbol string, class models.AssetClass) string {
	return string(class) + "/" + symbol
}

// Put inserts or replaces a catalog entry.
func (c *MemoryCatalog) Put(asset models.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[catalogKey(asset.Symbol, asset.Class)] = asset
}

func (c *MemoryCatalog) Lookup(ctx context.Context, symbol string, class models.AssetClass) (*models.Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	asset, ok := c.assets[catalogKey(symbol, class)]
	if !ok {
		return nil, fmt.Errorf("'%s' (%s): %w", symbol, class, ErrAssetNotFound)
	}
	return &asset, nil
}
