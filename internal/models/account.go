package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Portfolio composition ceilings: how many distinct symbols of each class an
// account may hold at the same time.
const (
	MaxCryptoPositions = 3
	MaxStockPositions  = 10
)

// PositionLimit returns the distinct-symbol ceiling for the given class.
func PositionLimit(class AssetClass) int {
	if class == ClassCrypto {
		return MaxCryptoPositions
	}
	return MaxStockPositions
}

// Account is the per-user wallet document. Balance is mutated only through
// ledger trades and the external payment flow.
type Account struct {
	gorm.Model
	AccountID string          `gorm:"uniqueIndex;not null" json:"account_id"`
	Balance   decimal.Decimal `gorm:"type:numeric;not null" json:"balance"`
	// Version is the optimistic-concurrency marker; every committed trade
	// increments it, and conditional writes are keyed on it.
	Version int64 `gorm:"not null;default:0" json:"-"`
}

// Holding is one held symbol within an account. A row exists only while the
// quantity is strictly positive; selling a position down to zero deletes it.
type Holding struct {
	gorm.Model
	AccountID string          `gorm:"uniqueIndex:idx_account_symbol;not null" json:"account_id"`
	Symbol    string          `gorm:"uniqueIndex:idx_account_symbol;not null" json:"symbol"`
	Class     AssetClass      `gorm:"not null" json:"class"`
	Quantity  decimal.Decimal `gorm:"type:numeric;not null" json:"quantity"`
}

// Position is a valued holding: the join of a Holding with the catalog's
// current reference price. Derived, never stored.
type Position struct {
	Symbol      string          `json:"symbol"`
	Class       AssetClass      `json:"class"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// AccountSnapshot is a read-only view of an account with every held symbol
// valued at the latest catalog price.
type AccountSnapshot struct {
	AccountID  string          `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	Positions  []Position      `json:"positions"`
	TotalValue decimal.Decimal `json:"total_value"`
	TakenAt    time.Time       `json:"taken_at"`
}
