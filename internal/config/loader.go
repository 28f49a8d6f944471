package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env if present,
// then applies MATCHMARKET_* environment overrides. An empty path skips the
// file. The result is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	cfg.Mode = strings.ToLower(cfg.Mode)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return &cfg, nil
}

const envPrefix = "MATCHMARKET_"

// applyEnvOverrides overwrites fields whose MATCHMARKET_* variable is set, so
// operators can inject secrets without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "REDIS_NAMESPACE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.Kind, "FEED_KIND")
	setStr(&cfg.Feed.Channel, "FEED_CHANNEL")
	setStr(&cfg.Feed.BusChannel, "FEED_BUS_CHANNEL")
	setDuration(&cfg.Feed.Debounce, "FEED_DEBOUNCE")
	setBool(&cfg.Feed.Relay, "FEED_RELAY")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.MaxBetRatio, "PRICING_MAX_BET_RATIO")
	setFloat64(&cfg.Pricing.NoCooldownRatio, "PRICING_NO_COOLDOWN_RATIO")
	setFloat64(&cfg.Pricing.SlippageTolerance, "PRICING_SLIPPAGE_TOLERANCE")
	setFloat64(&cfg.Pricing.BuyMarkup, "PRICING_BUY_MARKUP")
	setFloat64(&cfg.Pricing.SellMarkdown, "PRICING_SELL_MARKDOWN")

	// ── History / order book / workers ──
	setStr(&cfg.History.DefaultTimeframe, "HISTORY_DEFAULT_TIMEFRAME")
	setStringSlice(&cfg.History.Timeframes, "HISTORY_TIMEFRAMES")
	setDuration(&cfg.History.Regrid, "HISTORY_REGRID")
	setInt(&cfg.History.MaxCachedRows, "HISTORY_MAX_CACHED_ROWS")
	setInt(&cfg.Orderbook.TradeWindow, "ORDERBOOK_TRADE_WINDOW")
	setInt(&cfg.Workers.MaxWorkers, "WORKERS_MAX_WORKERS")
	setDuration(&cfg.Workers.SyncInterval, "WORKERS_SYNC_INTERVAL")
	setDuration(&cfg.Workers.LockTTL, "WORKERS_LOCK_TTL")

	// ── Server ──
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "SERVER_RATE_LIMIT_WINDOW")

	// ── Export ──
	setStr(&cfg.Export.Prefix, "EXPORT_PREFIX")
	setStr(&cfg.Export.Timeframe, "EXPORT_TIMEFRAME")
	setDuration(&cfg.Export.Lookback, "EXPORT_LOOKBACK")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// Typed env-var helpers. Each takes the key without envPrefix and only
// mutates the target when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
