package database

import (
	"testing"

	"portfolio-trader-go/internal/config"
	"portfolio-trader-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestAutoMigrate_SeedsCatalog(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	cfg := &config.Config{
		Catalog: config.Catalog{
			Stocks:  []string{"AAPL", "MSFT"},
			Cryptos: []string{"BTC"},
		},
	}
	require.NoError(t, AutoMigrate(db, cfg))

	var assets []models.Asset
	require.NoError(t, db.Find(&assets).Error)
	assert.Len(t, assets, 3)

	var btc models.Asset
	require.NoError(t, db.Where("symbol = ? AND class = ?", "BTC", models.ClassCrypto).First(&btc).Error)
	assert.True(t, btc.Price.IsZero(), "seeded assets start unpriced")

	// Re-running migration must not duplicate catalog entries.
	require.NoError(t, AutoMigrate(db, cfg))
	require.NoError(t, db.Find(&assets).Error)
	assert.Len(t, assets, 3)
}
