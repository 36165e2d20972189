package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"papertrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// Feed modes select where quotes come from.
const (
	FeedModeREST = "rest" // Poll the exchange REST API
	FeedModeWS   = "ws"   // REST polling plus a live websocket stream
	FeedModeSim  = "sim"  // Locally generated random-walk prices
)

// WatchSymbol maps a display symbol to the exchange symbol the feed
// understands, plus an optional starting price for the simulated feed.
type WatchSymbol struct {
	Symbol   string  `yaml:"symbol"`              // Display symbol, e.g. "BTC/USD"
	Exchange string  `yaml:"exchange"`            // Exchange symbol, e.g. "BTCUSDT"
	SimStart float64 `yaml:"sim_start,omitempty"` // Starting price for the simulated feed
}

// watchlistFile is the YAML shape of the optional watchlist file.
type watchlistFile struct {
	Symbols []WatchSymbol `yaml:"symbols"`
}

// Config holds all application configuration.
type Config struct {
	// Price feed
	FeedMode   string
	APIKey     string
	SecretKey  string
	IsTestnet  bool
	SimSeed    int64
	Volatility float64

	// Account
	InitialCash float64

	// Watchlist
	WatchlistPath string
	Watchlist     []WatchSymbol

	// Scheduling
	PriceRefreshInterval time.Duration
	EquitySampleInterval time.Duration
	QuoteMaxAge          time.Duration // Quotes older than this are too stale to execute against

	// Equity retention
	EquityMaxPoints int
	EquityMaxAge    time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Connection Settings (websocket feed)
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file) and
// the optional watchlist file.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Price feed
	cfg.FeedMode = strings.ToLower(getEnv("FEED_MODE", FeedModeSim))
	switch cfg.FeedMode {
	case FeedModeREST, FeedModeWS, FeedModeSim:
	default:
		errs = append(errs, fmt.Sprintf("FEED_MODE must be one of %q, %q, %q", FeedModeREST, FeedModeWS, FeedModeSim))
	}

	// Public market-data endpoints need no keys; they are accepted for completeness.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	cfg.SimSeed = int64(getEnvAsInt("SIM_SEED", 0))
	cfg.Volatility = getEnvAsFloat("SIM_VOLATILITY", 0.002)
	if cfg.Volatility <= 0 || cfg.Volatility >= 1 {
		errs = append(errs, "SIM_VOLATILITY must be between 0.0 and 1.0 (exclusive)")
	}

	// Account
	cfg.InitialCash, err = getEnvAsFloatRequired("INITIAL_CASH", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CASH: %v", err))
	} else if cfg.InitialCash < 0 {
		errs = append(errs, "INITIAL_CASH cannot be negative")
	}

	// Watchlist
	cfg.WatchlistPath = getEnv("WATCHLIST_PATH", "./watchlist.yaml")
	cfg.Watchlist, err = loadWatchlist(cfg.WatchlistPath)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid watchlist: %v", err))
	}

	// Scheduling
	refreshSeconds := getEnvAsInt("PRICE_REFRESH_SECONDS", 5)
	if refreshSeconds <= 0 {
		errs = append(errs, "PRICE_REFRESH_SECONDS must be positive")
	}
	cfg.PriceRefreshInterval = time.Duration(refreshSeconds) * time.Second

	sampleSeconds := getEnvAsInt("EQUITY_SAMPLE_SECONDS", 30)
	if sampleSeconds <= 0 {
		errs = append(errs, "EQUITY_SAMPLE_SECONDS must be positive")
	}
	cfg.EquitySampleInterval = time.Duration(sampleSeconds) * time.Second

	staleSeconds := getEnvAsInt("QUOTE_MAX_AGE_SECONDS", 60)
	if staleSeconds <= 0 {
		errs = append(errs, "QUOTE_MAX_AGE_SECONDS must be positive")
	}
	cfg.QuoteMaxAge = time.Duration(staleSeconds) * time.Second

	// Equity retention
	cfg.EquityMaxPoints = getEnvAsInt("EQUITY_MAX_POINTS", 4096)
	if cfg.EquityMaxPoints <= 0 {
		errs = append(errs, "EQUITY_MAX_POINTS must be positive")
	}
	retentionHours := getEnvAsInt("EQUITY_MAX_AGE_HOURS", 720) // 30 days
	if retentionHours <= 0 {
		errs = append(errs, "EQUITY_MAX_AGE_HOURS must be positive")
	}
	cfg.EquityMaxAge = time.Duration(retentionHours) * time.Hour

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/papertrader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// loadWatchlist reads the YAML watchlist file, falling back to the built-in
// default list when the file does not exist.
func loadWatchlist(path string) ([]WatchSymbol, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultWatchlist(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist file '%s': %w", path, err)
	}

	var file watchlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist file '%s': %w", path, err)
	}
	if len(file.Symbols) == 0 {
		return nil, fmt.Errorf("watchlist file '%s' lists no symbols", path)
	}
	for i, entry := range file.Symbols {
		if entry.Symbol == "" || entry.Exchange == "" {
			return nil, fmt.Errorf("watchlist entry %d must set both symbol and exchange", i)
		}
	}
	return file.Symbols, nil
}

func defaultWatchlist() []WatchSymbol {
	return []WatchSymbol{
		{Symbol: "BTC/USD", Exchange: "BTCUSDT", SimStart: 60000},
		{Symbol: "ETH/USD", Exchange: "ETHUSDT", SimStart: 3000},
		{Symbol: "SOL/USD", Exchange: "SOLUSDT", SimStart: 150},
	}
}

// ExchangeSymbols returns the exchange symbols of the watchlist, in order.
func (c *Config) ExchangeSymbols() []string {
	out := make([]string, 0, len(c.Watchlist))
	for _, w := range c.Watchlist {
		out = append(out, w.Exchange)
	}
	return out
}

// DisplaySymbols returns the display symbols of the watchlist, in order.
func (c *Config) DisplaySymbols() []string {
	out := make([]string, 0, len(c.Watchlist))
	for _, w := range c.Watchlist {
		out = append(out, w.Symbol)
	}
	return out
}

// ExchangeFor maps a display symbol to its exchange symbol.
func (c *Config) ExchangeFor(display string) (string, bool) {
	for _, w := range c.Watchlist {
		if w.Symbol == display {
			return w.Exchange, true
		}
	}
	return "", false
}

// DisplayFor maps an exchange symbol back to its display symbol.
func (c *Config) DisplayFor(exchange string) (string, bool) {
	for _, w := range c.Watchlist {
		if w.Exchange == exchange {
			return w.Symbol, true
		}
	}
	return "", false
}

// SimStartPrices returns the configured simulation start prices keyed by
// exchange symbol, omitting entries without one.
func (c *Config) SimStartPrices() map[string]float64 {
	out := make(map[string]float64, len(c.Watchlist))
	for _, w := range c.Watchlist {
		if w.SimStart > 0 {
			out[w.Exchange] = w.SimStart
		}
	}
	return out
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
