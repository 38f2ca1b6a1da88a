// Package config defines the top-level configuration for the trade simulator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADESIM_* environment variables.
type Config struct {
	Feed      FeedConfig         `toml:"feed"`
	FeeTiers  map[string]FeeTier `toml:"fee_tiers"`
	Impact    ImpactConfig       `toml:"impact"`
	Predictor PredictorConfig    `toml:"predictor"`
	Sim       SimConfig          `toml:"sim"`
	Redis     RedisConfig        `toml:"redis"`
	Postgres  PostgresConfig     `toml:"postgres"`
	Server    ServerConfig       `toml:"server"`
	Metrics   MetricsConfig      `toml:"metrics"`
	LogLevel  string             `toml:"log_level"`
}

// FeedConfig holds market data feed connection parameters.
type FeedConfig struct {
	URL               string   `toml:"url"`
	Exchange          string   `toml:"exchange"`
	Symbol            string   `toml:"symbol"`
	Channel           string   `toml:"channel"`
	AutoConnect       bool     `toml:"auto_connect"`
	OpenTimeout       duration `toml:"open_timeout"`
	AckTimeout        duration `toml:"ack_timeout"`
	ReadTimeout       duration `toml:"read_timeout"`
	KeepaliveInterval duration `toml:"keepalive_interval"`
	StalenessWindow   duration `toml:"staleness_window"`
	BackoffBase       duration `toml:"backoff_base"`
	MaxBackoffExp     int      `toml:"max_backoff_exp"`
	MaxRetries        int      `toml:"max_retries"`
}

// FeeTier holds one exchange fee tier's maker and taker rates as fractions
// (0.001 = 10 bps).
type FeeTier struct {
	Maker float64 `toml:"maker"`
	Taker float64 `toml:"taker"`
}

// ImpactConfig holds the market impact model parameters.
type ImpactConfig struct {
	MarketImpactFactor float64 `toml:"market_impact_factor"`
	VolatilityFactor   float64 `toml:"volatility_factor"`
	RiskAversion       float64 `toml:"risk_aversion"`
}

// PredictorConfig holds the regression predictors' training parameters.
type PredictorConfig struct {
	MaxSamples     int `toml:"max_samples"`
	WarmStartLimit int `toml:"warm_start_limit"`
}

// SimConfig holds the estimator's request defaults.
type SimConfig struct {
	DefaultQuantityUSD float64 `toml:"default_quantity_usd"`
	DefaultVolatility  float64 `toml:"default_volatility"`
	DefaultFeeTier     string  `toml:"default_fee_tier"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for the training
// sample store.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// MetricsConfig holds the Prometheus exporter parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:               "wss://ws.okx.com:8443/ws/v5/public",
			Exchange:          "OKX",
			Symbol:            "BTC-USDT",
			Channel:           "books5",
			AutoConnect:       true,
			OpenTimeout:       duration{15 * time.Second},
			AckTimeout:        duration{5 * time.Second},
			ReadTimeout:       duration{30 * time.Second},
			KeepaliveInterval: duration{30 * time.Second},
			StalenessWindow:   duration{60 * time.Second},
			BackoffBase:       duration{2 * time.Second},
			MaxBackoffExp:     6,
			MaxRetries:        5,
		},
		FeeTiers: map[string]FeeTier{
			"Tier 1": {Maker: 0.0008, Taker: 0.0010},
			"Tier 2": {Maker: 0.0006, Taker: 0.0008},
			"Tier 3": {Maker: 0.0004, Taker: 0.0006},
			"Tier 4": {Maker: 0.0002, Taker: 0.0004},
			"Tier 5": {Maker: 0.0000, Taker: 0.0002},
		},
		Impact: ImpactConfig{
			MarketImpactFactor: 0.1,
			VolatilityFactor:   0.3,
			RiskAversion:       1.0,
		},
		Predictor: PredictorConfig{
			MaxSamples:     5000,
			WarmStartLimit: 5000,
		},
		Sim: SimConfig{
			DefaultQuantityUSD: 100,
			DefaultVolatility:  0.01,
			DefaultFeeTier:     "Tier 1",
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			SnapshotTTL: duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "tradesim",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	} else if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed: url must be a ws:// or wss:// endpoint, got %q", c.Feed.URL))
	}
	if c.Feed.Symbol == "" {
		errs = append(errs, "feed: symbol must not be empty")
	}
	if c.Feed.MaxRetries <= 0 {
		errs = append(errs, fmt.Sprintf("feed: max_retries must be positive, got %d", c.Feed.MaxRetries))
	}
	if c.Feed.MaxBackoffExp <= 0 {
		errs = append(errs, fmt.Sprintf("feed: max_backoff_exp must be positive, got %d", c.Feed.MaxBackoffExp))
	}
	if c.Feed.BackoffBase.Duration <= 0 {
		errs = append(errs, "feed: backoff_base must be positive")
	}
	if c.Feed.StalenessWindow.Duration < c.Feed.KeepaliveInterval.Duration {
		errs = append(errs, "feed: staleness_window must not be shorter than keepalive_interval")
	}

	// Fee tiers
	if len(c.FeeTiers) == 0 {
		errs = append(errs, "fee_tiers: at least one tier must be configured")
	}
	for name, tier := range c.FeeTiers {
		if tier.Maker < 0 || tier.Taker < 0 {
			errs = append(errs, fmt.Sprintf("fee_tiers: %q has negative rates", name))
		}
	}
	if _, ok := c.FeeTiers[c.Sim.DefaultFeeTier]; !ok && len(c.FeeTiers) > 0 {
		errs = append(errs, fmt.Sprintf("sim: default_fee_tier %q is not a configured tier", c.Sim.DefaultFeeTier))
	}

	// Impact
	if c.Impact.MarketImpactFactor < 0 {
		errs = append(errs, "impact: market_impact_factor must not be negative")
	}
	if c.Impact.RiskAversion < 0 {
		errs = append(errs, "impact: risk_aversion must not be negative")
	}

	// Predictor
	if c.Predictor.MaxSamples <= 0 {
		errs = append(errs, fmt.Sprintf("predictor: max_samples must be positive, got %d", c.Predictor.MaxSamples))
	}

	// Sim
	if c.Sim.DefaultQuantityUSD <= 0 {
		errs = append(errs, "sim: default_quantity_usd must be positive")
	}
	if c.Sim.DefaultVolatility <= 0 {
		errs = append(errs, "sim: default_volatility must be positive")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConnString assembles a connection string from the discrete fields when an
// explicit DSN is not set.
func (c *PostgresConfig) ConnString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}
