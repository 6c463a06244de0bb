package store

import (
	"context"
	"errors"

	"portfolio-trader-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned for reads of an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAssetNotFound is returned when the catalog has no entry for a symbol.
	ErrAssetNotFound = errors.New("asset not found in catalog")

	// ErrConflict signals that a conditional write lost a version race.
	// Transact retries on it internally; callers only see it wrapped once
	// the retry budget is exhausted.
	ErrConflict = errors.New("transaction conflict")
)

// AccountState is the mutable view handed to a transaction function: the
// account's balance plus its holdings keyed by symbol. A transaction mutates
// the copy it is given; the store commits the whole state atomically or not
// at all.
type AccountState struct {
	AccountID string
	Balance   decimal.Decimal
	Holdings  map[string]models.Holding
	version   int64
}

// Quantity returns the held quantity for symbol, zero when absent.
func (s *AccountState) Quantity(symbol string) decimal.Decimal {
	if h, ok := s.Holdings[symbol]; ok {
		return h.Quantity
	}
	return decimal.Zero
}

// DistinctSymbols counts how many distinct symbols of the given class
// currently have a positive quantity.
func (s *AccountState) DistinctSymbols(class models.AssetClass) int {
	n := 0
	for _, h := range s.Holdings {
		if h.Class == class && h.Quantity.IsPositive() {
			n++
		}
	}
	return n
}

// AddToHolding increases (or creates) the holding for symbol.
func (s *AccountState) AddToHolding(symbol string, class models.AssetClass, qty decimal.Decimal) {
	h, ok := s.Holdings[symbol]
	if !ok {
		h = models.Holding{AccountID: s.AccountID, Symbol: symbol, Class: class}
	}
	h.Quantity = h.Quantity.Add(qty)
	s.Holdings[symbol] = h
}

// ReduceHolding decreases the holding for symbol, deleting the entry
// entirely when the remaining quantity is zero or below.
func (s *AccountState) ReduceHolding(symbol string, qty decimal.Decimal) {
	h, ok := s.Holdings[symbol]
	if !ok {
		return
	}
	h.Quantity = h.Quantity.Sub(qty)
	if h.Quantity.IsPositive() {
		s.Holdings[symbol] = h
	} else {
		delete(s.Holdings, symbol)
	}
}

func (s *AccountState) clone() *AccountState {
	c := &AccountState{
		AccountID: s.AccountID,
		Balance:   s.Balance,
		Holdings:  make(map[string]models.Holding, len(s.Holdings)),
		version:   s.version,
	}
	for k, v := range s.Holdings {
		c.Holdings[k] = v
	}
	return c
}

// TxFunc mutates the given account state. Returning an error aborts the
// transaction with the store untouched.
type TxFunc func(st *AccountState) error

// AccountStore is the document store holding per-user balance and holdings.
// Transact provides read-modify-write with optimistic concurrency: the
// commit is conditional on the version read, and the whole function reruns
// on conflict, a bounded number of times.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*AccountState, error)
	Transact(ctx context.Context, accountID string, fn TxFunc) error
	Create(ctx context.Context, accountID string, balance decimal.Decimal) error
	// AdjustBalance applies an opaque external balance change (payment
	// top-up or withdrawal) outside the trading path.
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// Catalog is the read-only asset reference data: symbol, class, current
// price and descriptive metadata. Someone else populates prices.
type Catalog interface {
	Lookup(ctx context.Context, symbol string, class models.AssetClass) (*models.Asset, error)
}
