package database

import (
	"fmt"

	"portfolio-trader-go/internal/config"
	"portfolio-trader-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the schema and seeds the asset catalog with the
// configured symbols. Prices stay at zero until the external populator
// writes them; the ledger skips unpriced symbols during valuation.
func AutoMigrate(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(&models.Account{}, &models.Holding{}, &models.Asset{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	seed := func(symbols []string, class models.AssetClass) error {
		for _, symbol := range symbols {
			asset := models.Asset{Symbol: symbol, Class: class, Name: symbol}
			if err := db.FirstOrCreate(&asset, models.Asset{Symbol: symbol, Class: class}).Error; err != nil {
				return fmt.Errorf("failed to seed catalog entry '%s': %w", symbol, err)
			}
		}
		return nil
	}

	if err := seed(cfg.Catalog.Stocks, models.ClassStock); err != nil {
		return err
	}
	return seed(cfg.Catalog.Cryptos, models.ClassCrypto)
}
