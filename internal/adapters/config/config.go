package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"hermes/pkg/errors"
)

type Config struct {
	App           AppConfig
	Chain         ChainConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Telegram      TelegramConfig
	PriceFeed     PriceFeedConfig
	Engine        EngineConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"hermes"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	// MetricsAddr is where the Prometheus handler listens
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	// APIAddr is where the trading API listens
	APIAddr string `envconfig:"API_ADDR" default:":8080"`
}

type ChainConfig struct {
	RPCURL     string `envconfig:"CHAIN_RPC_URL" required:"true"`
	ChainID    int64  `envconfig:"CHAIN_ID" default:"1"`
	PrivateKey string `envconfig:"CHAIN_PRIVATE_KEY" required:"true"`

	// Protocol endpoints
	Factory   string `envconfig:"CHAIN_FACTORY_ADDRESS" required:"true"`
	Router    string `envconfig:"CHAIN_ROUTER_ADDRESS" required:"true"`
	Connector string `envconfig:"CHAIN_CONNECTOR_ADDRESS" required:"true"`
	Trader    string `envconfig:"CHAIN_TRADER_ADDRESS" required:"true"`

	// RPC read rate limiting
	RateLimit int `envconfig:"CHAIN_RPC_RATE_LIMIT" default:"20"`
	RateBurst int `envconfig:"CHAIN_RPC_RATE_BURST" default:"40"`
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"options"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type TelegramConfig struct {
	Enabled  bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type PriceFeedConfig struct {
	URL     string        `envconfig:"PRICE_FEED_URL" required:"true"`
	Symbols []string      `envconfig:"PRICE_FEED_SYMBOLS" default:"ETH,WBTC"`
	Timeout time.Duration `envconfig:"PRICE_FEED_TIMEOUT" default:"10s"`
	// MaxAge bounds how stale a quote may be before Latest refuses it
	MaxAge time.Duration `envconfig:"PRICE_FEED_MAX_AGE" default:"1m"`
}

// EngineConfig holds the trade construction defaults
type EngineConfig struct {
	SlippageBps  int64         `envconfig:"ENGINE_SLIPPAGE_BPS" default:"100"`
	Deadline     time.Duration `envconfig:"ENGINE_DEADLINE" default:"20m"`
	RiskFreeRate float64       `envconfig:"ENGINE_RISK_FREE_RATE" default:"0.02"`
	// WatchlistPath points at the JSON file of tracked option series
	WatchlistPath string `envconfig:"ENGINE_WATCHLIST_PATH" default:"watchlist.json"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for all background workers
type WorkerConfig struct {
	GreeksInterval    time.Duration `envconfig:"WORKER_GREEKS_INTERVAL" default:"30s"`
	AllowanceInterval time.Duration `envconfig:"WORKER_ALLOWANCE_INTERVAL" default:"15s"`

	GreeksEnabled    bool `envconfig:"WORKER_GREEKS_ENABLED" default:"true"`
	AllowanceEnabled bool `envconfig:"WORKER_ALLOWANCE_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "TELEGRAM_BOT_TOKEN is required when telegram is enabled")
	}

	return &cfg, nil
}
