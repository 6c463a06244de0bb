package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetClass distinguishes the two tradable asset categories.
type AssetClass string

const (
	ClassStock  AssetClass = "stock"
	ClassCrypto AssetClass = "crypto"
)

// IsCrypto is a convenience for the wire format, which uses a boolean flag.
func (c AssetClass) IsCrypto() bool {
	return c == ClassCrypto
}

// ClassFromCrypto maps the wire-format boolean back to an AssetClass.
func ClassFromCrypto(isCrypto bool) AssetClass {
	if isCrypto {
		return ClassCrypto
	}
	return ClassStock
}

// Asset is a catalog entry for a tradable symbol. The catalog is owned by an
// external price populator; the core only reads it for valuation.
type Asset struct {
	gorm.Model
	Symbol        string          `gorm:"uniqueIndex:idx_symbol_class" json:"symbol"`
	Class         AssetClass      `gorm:"uniqueIndex:idx_symbol_class" json:"class"`
	Name          string          `json:"name"`
	Sector        string          `json:"sector,omitempty"`
	Blockchain    string          `json:"blockchain,omitempty"`
	Price         decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	High          decimal.Decimal `gorm:"type:numeric" json:"high"`
	Low           decimal.Decimal `gorm:"type:numeric" json:"low"`
	Open          decimal.Decimal `gorm:"type:numeric" json:"open"`
	PreviousClose decimal.Decimal `gorm:"type:numeric" json:"previous_close"`
	Timestamp     string          `json:"timestamp"`
}
