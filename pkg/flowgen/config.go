// Package flowgen generates continuous two-sided order flow against a
// deepmatch market: it quotes symmetric layered bids and asks around an
// external reference price and refreshes them on an interval.
package flowgen

import (
	"fmt"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the flow generator service
type Config struct {
	// Order API settings
	ServerAddr     string
	RequestTimeout time.Duration

	// Market settings
	Market         string // e.g. "BTC-USD"
	Owner          string // account placing the quotes
	ExternalSymbol string // e.g. "BTCUSDT"
	PriceSourceURL string // e.g. "https://api.binance.com"

	// Quoting parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         fpdecimal.Decimal
	OrderTTL          time.Duration
	UpdateInterval    time.Duration

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxRetries  int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("DEEPMATCH_ADDR", "http://localhost:8080")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 5)
	v.SetDefault("MARKET", "BTC-USD")
	v.SetDefault("OWNER", "flowgen-01")
	v.SetDefault("EXTERNAL_SYMBOL", "BTCUSDT")
	v.SetDefault("PRICE_SOURCE_URL", "https://api.binance.com")
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("ORDER_SIZE", "0.01")
	v.SetDefault("ORDER_TTL_SECONDS", 3600)
	v.SetDefault("UPDATE_INTERVAL_SECONDS", 10)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("MAX_RETRIES", 3)

	// Allow environment variables
	v.AutomaticEnv()

	orderSize, err := fpdecimal.FromString(v.GetString("ORDER_SIZE"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER_SIZE: %w", err)
	}

	cfg := &Config{
		ServerAddr:        v.GetString("DEEPMATCH_ADDR"),
		RequestTimeout:    time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		Market:            v.GetString("MARKET"),
		Owner:             v.GetString("OWNER"),
		ExternalSymbol:    v.GetString("EXTERNAL_SYMBOL"),
		PriceSourceURL:    v.GetString("PRICE_SOURCE_URL"),
		NumLevels:         v.GetInt("NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("PRICE_STEP_PERCENT"),
		OrderSize:         orderSize,
		OrderTTL:          time.Duration(v.GetInt("ORDER_TTL_SECONDS")) * time.Second,
		UpdateInterval:    time.Duration(v.GetInt("UPDATE_INTERVAL_SECONDS")) * time.Second,
		HTTPTimeout:       time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:        v.GetInt("MAX_RETRIES"),
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.ServerAddr == "" {
		return fmt.Errorf("DEEPMATCH_ADDR must not be empty")
	}
	if cfg.Market == "" {
		return fmt.Errorf("MARKET must not be empty")
	}
	if cfg.Owner == "" {
		return fmt.Errorf("OWNER must not be empty")
	}
	if cfg.ExternalSymbol == "" {
		return fmt.Errorf("EXTERNAL_SYMBOL must not be empty")
	}
	if cfg.PriceSourceURL == "" {
		return fmt.Errorf("PRICE_SOURCE_URL must not be empty")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("PRICE_STEP_PERCENT must be positive")
	}
	if !cfg.OrderSize.GreaterThan(fpdecimal.Zero) {
		return fmt.Errorf("ORDER_SIZE must be positive")
	}
	if cfg.OrderTTL <= 0 {
		return fmt.Errorf("ORDER_TTL_SECONDS must be positive")
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_SECONDS must be positive")
	}
	return nil
}
