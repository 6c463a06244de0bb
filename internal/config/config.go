package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Backend   Backend   `mapstructure:"backend"`
	PriceFeed PriceFeed `mapstructure:"pricefeed"`
	Ledger    Ledger    `mapstructure:"ledger"`
	Catalog   Catalog   `mapstructure:"catalog"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Backend holds the configuration for the remote trading/graph backend.
type Backend struct {
	BaseURL        string  `mapstructure:"base_url"`
	AuthToken      string  `mapstructure:"auth_token"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// PriceFeed holds the polling and throttling knobs for the price feed.
// Intervals are in seconds.
type PriceFeed struct {
	PollInterval     int `mapstructure:"poll_interval"`
	PassiveInterval  int `mapstructure:"passive_interval"`
	MinFetchInterval int `mapstructure:"min_fetch_interval"`
}

// Ledger holds the configuration for the trading ledger.
type Ledger struct {
	// Mode selects where trades are committed: "local" runs atomic
	// transactions against the store, "remote" delegates to the backend.
	Mode      string `mapstructure:"mode"`
	TxRetries int    `mapstructure:"tx_retries"`
}

// Catalog lists the symbols seeded into the asset catalog on startup.
type Catalog struct {
	Stocks  []string `mapstructure:"stocks"`
	Cryptos []string `mapstructure:"cryptos"`
}

// Server holds the configuration for the API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("backend.rate_limit", 10)      // requests per second
	viper.SetDefault("backend.rate_limit_burst", 5) // burst size
	viper.SetDefault("pricefeed.poll_interval", 3)
	viper.SetDefault("pricefeed.passive_interval", 300)
	viper.SetDefault("pricefeed.min_fetch_interval", 2)
	viper.SetDefault("ledger.mode", "local")
	viper.SetDefault("ledger.tx_retries", 5)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
