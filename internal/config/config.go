// Package config defines the matchmarket configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MATCHMARKET_* environment
// variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	Pricing   PricingConfig   `toml:"pricing"`
	History   HistoryConfig   `toml:"history"`
	Orderbook OrderbookConfig `toml:"orderbook"`
	Workers   WorkersConfig   `toml:"workers"`
	Server    ServerConfig    `toml:"server"`
	Export    ExportConfig    `toml:"export"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds the market database connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Feed kinds.
const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
	FeedMemory   = "memory"
)

// FeedConfig selects where change events come from.
type FeedConfig struct {
	Kind string `toml:"kind"`
	// Channel is the Postgres NOTIFY channel; BusChannel the Redis pub/sub
	// channel used by kind "redis" and by the relay.
	Channel    string   `toml:"channel"`
	BusChannel string   `toml:"bus_channel"`
	Debounce   duration `toml:"debounce"`
	// Relay, with kind "postgres", republishes events on the Redis bus so
	// processes running with kind "redis" need no database listener.
	Relay bool `toml:"relay"`
}

// PricingConfig holds the trading guard parameters.
type PricingConfig struct {
	MaxBetRatio       float64 `toml:"max_bet_ratio"`
	NoCooldownRatio   float64 `toml:"no_cooldown_ratio"`
	SlippageTolerance float64 `toml:"slippage_tolerance"`
	BuyMarkup         float64 `toml:"buy_markup"`
	SellMarkdown      float64 `toml:"sell_markdown"`
}

// HistoryConfig controls chart series.
type HistoryConfig struct {
	DefaultTimeframe string   `toml:"default_timeframe"`
	Timeframes       []string `toml:"timeframes"`
	Regrid           duration `toml:"regrid"`
	MaxCachedRows    int      `toml:"max_cached_rows"`
}

// OrderbookConfig controls the trade-tape order book.
type OrderbookConfig struct {
	TradeWindow int `toml:"trade_window"`
}

// WorkersConfig controls the market worker supervisor.
type WorkersConfig struct {
	MaxWorkers   int      `toml:"max_workers"`
	SyncInterval duration `toml:"sync_interval"`
	LockTTL      duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// ExportConfig controls the one-shot S3 export.
type ExportConfig struct {
	Prefix    string   `toml:"prefix"`
	Timeframe string   `toml:"timeframe"`
	Lookback  duration `toml:"lookback"`
}

// duration wraps time.Duration so TOML strings like "400ms" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in
// config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Namespace:  "mm",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "matchmarket-exports",
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			Kind:       FeedPostgres,
			Channel:    "matchmarket_changes",
			BusChannel: "changes",
			Debounce:   duration{400 * time.Millisecond},
		},
		Pricing: PricingConfig{
			MaxBetRatio:       0.15,
			NoCooldownRatio:   0.10,
			SlippageTolerance: 0.01,
			BuyMarkup:         1.01,
			SellMarkdown:      0.99,
		},
		History: HistoryConfig{
			DefaultTimeframe: "1D",
			Timeframes:       []string{"1H", "4H", "1D", "1W", "1M"},
			Regrid:           duration{time.Minute},
			MaxCachedRows:    2000,
		},
		Orderbook: OrderbookConfig{
			TradeWindow: 100,
		},
		Workers: WorkersConfig{
			MaxWorkers:   500,
			SyncInterval: duration{30 * time.Second},
			LockTTL:      duration{30 * time.Second},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       50,
			RateLimitWindow: duration{time.Second},
		},
		Export: ExportConfig{
			Prefix:    "exports",
			Timeframe: "1D",
			Lookback:  duration{24 * time.Hour},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"api":    true,
	"worker": true,
	"export": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTimeframes = map[string]bool{"1H": true, "4H": true, "1D": true, "1W": true, "1M": true}

// Validate checks Config for invalid or missing values and returns one
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, api, worker, export)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only needed to export.
	if strings.EqualFold(c.Mode, "export") {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty in export mode")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty in export mode")
		}
		if !validTimeframes[strings.ToUpper(c.Export.Timeframe)] {
			errs = append(errs, fmt.Sprintf("export: unknown timeframe %q", c.Export.Timeframe))
		}
	}

	// Feed
	switch c.Feed.Kind {
	case FeedPostgres, FeedRedis, FeedMemory:
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown kind %q (valid: postgres, redis, memory)", c.Feed.Kind))
	}
	if c.Feed.Debounce.Duration < 0 {
		errs = append(errs, "feed: debounce must not be negative")
	}
	if c.Feed.Relay && c.Feed.Kind != FeedPostgres {
		errs = append(errs, "feed: relay requires kind postgres")
	}

	// Pricing
	if c.Pricing.MaxBetRatio <= 0 || c.Pricing.MaxBetRatio > 1 {
		errs = append(errs, "pricing: max_bet_ratio must be in (0, 1]")
	}
	if c.Pricing.NoCooldownRatio < 0 || c.Pricing.NoCooldownRatio > 1 {
		errs = append(errs, "pricing: no_cooldown_ratio must be in [0, 1]")
	}
	if c.Pricing.SlippageTolerance < 0 || c.Pricing.SlippageTolerance >= 1 {
		errs = append(errs, "pricing: slippage_tolerance must be in [0, 1)")
	}
	if c.Pricing.BuyMarkup < 1 {
		errs = append(errs, "pricing: buy_markup must be >= 1")
	}
	if c.Pricing.SellMarkdown <= 0 || c.Pricing.SellMarkdown > 1 {
		errs = append(errs, "pricing: sell_markdown must be in (0, 1]")
	}

	// History
	if !validTimeframes[strings.ToUpper(c.History.DefaultTimeframe)] {
		errs = append(errs, fmt.Sprintf("history: unknown default_timeframe %q", c.History.DefaultTimeframe))
	}
	for _, tf := range c.History.Timeframes {
		if !validTimeframes[strings.ToUpper(tf)] {
			errs = append(errs, fmt.Sprintf("history: unknown timeframe %q", tf))
		}
	}
	if c.History.Regrid.Duration <= 0 {
		errs = append(errs, "history: regrid must be > 0")
	}

	if c.Orderbook.TradeWindow < 1 {
		errs = append(errs, "orderbook: trade_window must be >= 1")
	}

	// Workers
	if c.Workers.MaxWorkers < 1 {
		errs = append(errs, "workers: max_workers must be >= 1")
	}
	if c.Workers.SyncInterval.Duration <= 0 {
		errs = append(errs, "workers: sync_interval must be > 0")
	}
	if c.Workers.LockTTL.Duration < 3*time.Millisecond {
		errs = append(errs, "workers: lock_ttl is too short")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
