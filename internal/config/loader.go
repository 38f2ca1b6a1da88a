package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADESIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADESIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "TRADESIM_FEED_URL")
	setStr(&cfg.Feed.Exchange, "TRADESIM_FEED_EXCHANGE")
	setStr(&cfg.Feed.Symbol, "TRADESIM_FEED_SYMBOL")
	setStr(&cfg.Feed.Channel, "TRADESIM_FEED_CHANNEL")
	setBool(&cfg.Feed.AutoConnect, "TRADESIM_FEED_AUTO_CONNECT")
	setDuration(&cfg.Feed.OpenTimeout, "TRADESIM_FEED_OPEN_TIMEOUT")
	setDuration(&cfg.Feed.AckTimeout, "TRADESIM_FEED_ACK_TIMEOUT")
	setDuration(&cfg.Feed.ReadTimeout, "TRADESIM_FEED_READ_TIMEOUT")
	setDuration(&cfg.Feed.KeepaliveInterval, "TRADESIM_FEED_KEEPALIVE_INTERVAL")
	setDuration(&cfg.Feed.StalenessWindow, "TRADESIM_FEED_STALENESS_WINDOW")
	setDuration(&cfg.Feed.BackoffBase, "TRADESIM_FEED_BACKOFF_BASE")
	setInt(&cfg.Feed.MaxBackoffExp, "TRADESIM_FEED_MAX_BACKOFF_EXP")
	setInt(&cfg.Feed.MaxRetries, "TRADESIM_FEED_MAX_RETRIES")

	// ── Impact ──
	setFloat64(&cfg.Impact.MarketImpactFactor, "TRADESIM_IMPACT_MARKET_IMPACT_FACTOR")
	setFloat64(&cfg.Impact.VolatilityFactor, "TRADESIM_IMPACT_VOLATILITY_FACTOR")
	setFloat64(&cfg.Impact.RiskAversion, "TRADESIM_IMPACT_RISK_AVERSION")

	// ── Predictor ──
	setInt(&cfg.Predictor.MaxSamples, "TRADESIM_PREDICTOR_MAX_SAMPLES")
	setInt(&cfg.Predictor.WarmStartLimit, "TRADESIM_PREDICTOR_WARM_START_LIMIT")

	// ── Sim ──
	setFloat64(&cfg.Sim.DefaultQuantityUSD, "TRADESIM_SIM_DEFAULT_QUANTITY_USD")
	setFloat64(&cfg.Sim.DefaultVolatility, "TRADESIM_SIM_DEFAULT_VOLATILITY")
	setStr(&cfg.Sim.DefaultFeeTier, "TRADESIM_SIM_DEFAULT_FEE_TIER")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADESIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADESIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADESIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADESIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADESIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADESIM_REDIS_MAX_RETRIES")
	setDuration(&cfg.Redis.SnapshotTTL, "TRADESIM_REDIS_SNAPSHOT_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRADESIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADESIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADESIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADESIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADESIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADESIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADESIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADESIM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADESIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADESIM_POSTGRES_POOL_MIN_CONNS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADESIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADESIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADESIM_SERVER_CORS_ORIGINS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "TRADESIM_METRICS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADESIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
