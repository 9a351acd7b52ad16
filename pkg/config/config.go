// Package config loads the engine configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config carries every tunable the engine consumes. Defaults reproduce the
// production NSE setup: 18%/5% momentum thresholds, 3% trailing stop, at most
// 3 concurrent buys, 09:15–15:30 IST session.
type Config struct {
	Broker string `envconfig:"BROKER" default:"upstox"` // upstox | alpaca | paper
	DryRun bool   `envconfig:"DRY_RUN" default:"false"`

	MaxConcurrentBuys int     `envconfig:"MAX_CONCURRENT_BUYS" default:"3"`
	BuyThresholdPct   float64 `envconfig:"BUY_THRESHOLD_PCT" default:"18"`
	WatchThresholdPct float64 `envconfig:"WATCH_THRESHOLD_PCT" default:"5"`
	StopLossPct       float64 `envconfig:"STOP_LOSS_PCT" default:"3"`
	MinOrderValue     float64 `envconfig:"MIN_ORDER_VALUE" default:"7500"`
	MaxOrderValue     float64 `envconfig:"MAX_ORDER_VALUE" default:"100000"`

	ScanInterval     time.Duration `envconfig:"SCAN_INTERVAL" default:"1m"`
	StopLossInterval time.Duration `envconfig:"STOP_LOSS_INTERVAL" default:"3m"`
	PreMarketPoll    time.Duration `envconfig:"PRE_MARKET_POLL" default:"30s"`

	WindowStart string `envconfig:"TRADING_WINDOW_START" default:"09:15"`
	WindowEnd   string `envconfig:"TRADING_WINDOW_END" default:"15:30"`
	Timezone    string `envconfig:"EXCHANGE_TIMEZONE" default:"Asia/Kolkata"`

	// CountBlockedHoldings controls whether holdings blocked against a
	// pending delivery order (cnc_used_quantity > 0) still count toward the
	// already-bought set. Off by default.
	CountBlockedHoldings bool `envconfig:"COUNT_BLOCKED_HOLDINGS" default:"false"`

	QuoteBatchSize int           `envconfig:"QUOTE_BATCH_SIZE" default:"500"`
	QuoteWorkers   int           `envconfig:"QUOTE_WORKERS" default:"4"`
	ChunkTimeout   time.Duration `envconfig:"CHUNK_TIMEOUT" default:"10s"`

	// HistoricalFetchDelay paces per-symbol previous-close requests to stay
	// inside the provider's rate limits.
	HistoricalFetchDelay time.Duration `envconfig:"HISTORICAL_FETCH_DELAY" default:"100ms"`

	DataDir        string `envconfig:"DATA_DIR" default:"data"`
	InstrumentsCSV string `envconfig:"INSTRUMENTS_CSV" default:"data/Upstox_NSE.csv"`

	UpstoxAPIKey      string `envconfig:"UPSTOX_API_KEY"`
	UpstoxAPISecret   string `envconfig:"UPSTOX_API_SECRET"`
	UpstoxRedirectURI string `envconfig:"UPSTOX_REDIRECT_URI" default:"https://google.co.in/"`

	AlpacaAPIKey    string `envconfig:"ALPACA_API_KEY"`
	AlpacaAPISecret string `envconfig:"ALPACA_API_SECRET"`
	AlpacaBaseURL   string `envconfig:"ALPACA_BASE_URL" default:"https://paper-api.alpaca.markets"`

	// PaperStartingBalance seeds the in-memory paper broker.
	PaperStartingBalance float64 `envconfig:"PAPER_STARTING_BALANCE" default:"500000"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load reads .env (if present) and the environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.MaxConcurrentBuys < 1 {
		return fmt.Errorf("MAX_CONCURRENT_BUYS must be >= 1, got %d", c.MaxConcurrentBuys)
	}
	if c.WatchThresholdPct > c.BuyThresholdPct {
		return fmt.Errorf("WATCH_THRESHOLD_PCT (%.2f) must not exceed BUY_THRESHOLD_PCT (%.2f)",
			c.WatchThresholdPct, c.BuyThresholdPct)
	}
	if c.StopLossPct <= 0 {
		return fmt.Errorf("STOP_LOSS_PCT must be > 0, got %.2f", c.StopLossPct)
	}
	if c.MinOrderValue > c.MaxOrderValue {
		return fmt.Errorf("MIN_ORDER_VALUE (%.2f) must not exceed MAX_ORDER_VALUE (%.2f)",
			c.MinOrderValue, c.MaxOrderValue)
	}
	if c.QuoteBatchSize < 1 {
		return fmt.Errorf("QUOTE_BATCH_SIZE must be >= 1, got %d", c.QuoteBatchSize)
	}
	if c.QuoteWorkers < 1 {
		return fmt.Errorf("QUOTE_WORKERS must be >= 1, got %d", c.QuoteWorkers)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("load exchange timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the exchange timezone. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
