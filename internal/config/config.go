// Package config defines the top-level configuration for the lag trading bot
// and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LAGBOT_* environment variables. It is
// built once in main and passed into constructors; nothing reads it globally.
type Config struct {
	Watch      WatchConfig      `toml:"watch"`
	Feeds      FeedsConfig      `toml:"feeds"`
	Chainlink  ChainlinkConfig  `toml:"chainlink"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Sizing     SizingConfig     `toml:"sizing"`
	Risk       RiskConfig       `toml:"risk"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Execution  ExecutionConfig  `toml:"execution"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WatchConfig selects the symbols to trade and how their markets are resolved.
type WatchConfig struct {
	Symbols         []string          `toml:"symbols"`
	MarketSlugs     map[string]string `toml:"market_slugs"`
	RefreshInterval duration          `toml:"refresh_interval"`
	MinLiquidityUSD float64           `toml:"min_liquidity_usd"`
	TopMarkets      int               `toml:"top_markets"`
}

// FeedsConfig holds feed aggregation parameters.
type FeedsConfig struct {
	Capacity          int      `toml:"capacity"`
	MaxAge            duration `toml:"max_age"`
	OracleConfidence  float64  `toml:"oracle_confidence"`
	ImpliedConfidence float64  `toml:"implied_confidence"`
}

// ChainlinkConfig holds the on-chain oracle reader parameters.
type ChainlinkConfig struct {
	RPCURL       string            `toml:"rpc_url"`
	Aggregators  map[string]string `toml:"aggregators"` // symbol -> aggregator contract address
	PollInterval duration          `toml:"poll_interval"`
}

// PolymarketConfig holds Polymarket API endpoints and the implied-price model.
type PolymarketConfig struct {
	GammaHost    string  `toml:"gamma_host"`
	ClobHost     string  `toml:"clob_host"`
	WsHost       string  `toml:"ws_host"`
	BandFraction float64 `toml:"band_fraction"` // half-width of the implied band around the strike
}

// StrategyConfig holds the divergence scoring parameters. The probability
// model coefficients are heuristics; they ship as configuration, not
// constants.
type StrategyConfig struct {
	LagThreshold        duration `toml:"lag_threshold"`
	MinProbGap          float64  `toml:"min_prob_gap"`
	ProbCoefficient     float64  `toml:"prob_coefficient"` // expected prob shift per pct of price divergence
	ProbFloor           float64  `toml:"prob_floor"`
	ProbCeiling         float64  `toml:"prob_ceiling"`
	BandModerate        float64  `toml:"band_moderate"`
	BandStrong          float64  `toml:"band_strong"`
	BandVeryStrong      float64  `toml:"band_very_strong"`
	WeightLag           float64  `toml:"weight_lag"`
	WeightGap           float64  `toml:"weight_gap"`
	WeightOracleConf    float64  `toml:"weight_oracle_conf"`
	WeightLiquidity     float64  `toml:"weight_liquidity"`
	MaxLag              duration `toml:"max_lag"`       // lag factor saturates here
	MaxGap              float64  `toml:"max_gap"`       // gap factor saturates here
	LiquidityCeilingUSD float64  `toml:"liquidity_ceiling_usd"`
	ExecutionCostPct    float64  `toml:"execution_cost_pct"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	HistoryLimit        int      `toml:"history_limit"`
	TickInterval        duration `toml:"tick_interval"`
}

// SizingConfig holds position sizing parameters.
type SizingConfig struct {
	BaseSizeUSD       float64 `toml:"base_size_usd"`
	MinSizeUSD        float64 `toml:"min_size_usd"`
	LiquidityFraction float64 `toml:"liquidity_fraction"`
	MultWeak          float64 `toml:"mult_weak"`
	MultModerate      float64 `toml:"mult_moderate"`
	MultStrong        float64 `toml:"mult_strong"`
	MultVeryStrong    float64 `toml:"mult_very_strong"`
}

// RiskConfig holds the risk gate limits.
type RiskConfig struct {
	MaxPositionSizeUSD float64  `toml:"max_position_size_usd"`
	MaxDailyLossUSD    float64  `toml:"max_daily_loss_usd"`
	MaxConcurrent      int      `toml:"max_concurrent"`
	Cooldown           duration `toml:"cooldown"`
	MaxSlippagePct     float64  `toml:"max_slippage_pct"`
	MinConfidence      float64  `toml:"min_confidence"`
}

// LedgerConfig holds position ledger parameters.
type LedgerConfig struct {
	StopLossPct        float64 `toml:"stop_loss_pct"`   // advisory flag at -stop_loss_pct unrealized
	TakeProfitPct      float64 `toml:"take_profit_pct"` // advisory flag at +take_profit_pct unrealized
	ClosedHistoryLimit int     `toml:"closed_history_limit"`
}

// ExecutionConfig selects and configures the trade executor.
type ExecutionConfig struct {
	Enabled             bool   `toml:"enabled"`
	Venue               string `toml:"venue"` // "paper" or "clob"
	ApiAddress          string `toml:"api_address"`
	ApiKey              string `toml:"api_key"`
	ApiSecret           string `toml:"api_secret"`
	ApiPassphrase       string `toml:"api_passphrase"`
	CredentialsPath     string `toml:"credentials_path"` // encrypted credentials file, overrides the inline fields
	CredentialsPassword string `toml:"credentials_password"`
}

// PostgresConfig holds PostgreSQL connection parameters for the recorder.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters for the live mirror and relay.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	KeyPrefix      string `toml:"key_prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`    // empty disables authentication
	RateLimit   int      `toml:"rate_limit"` // requests per client per minute, 0 disables
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "1m").
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

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Watch: WatchConfig{
			Symbols: []string{"BTC", "ETH", "SOL", "XRP"},
			MarketSlugs: map[string]string{
				"BTC": "bitcoin",
				"ETH": "ethereum",
				"SOL": "solana",
				"XRP": "ripple",
			},
			RefreshInterval: duration{5 * time.Minute},
			MinLiquidityUSD: 100,
			TopMarkets:      10,
		},
		Feeds: FeedsConfig{
			Capacity:          1000,
			MaxAge:            duration{30 * time.Second},
			OracleConfidence:  1.0,
			ImpliedConfidence: 0.9,
		},
		Chainlink: ChainlinkConfig{
			RPCURL:       "",
			Aggregators:  map[string]string{},
			PollInterval: duration{time.Second},
		},
		Polymarket: PolymarketConfig{
			GammaHost:    "https://gamma-api.polymarket.com",
			ClobHost:     "https://clob.polymarket.com",
			WsHost:       "wss://ws-subscriptions-clob.polymarket.com",
			BandFraction: 0.05,
		},
		Strategy: StrategyConfig{
			LagThreshold:        duration{10 * time.Second},
			MinProbGap:          0.05,
			ProbCoefficient:     0.1,
			ProbFloor:           0.1,
			ProbCeiling:         0.9,
			BandModerate:        0.05,
			BandStrong:          0.10,
			BandVeryStrong:      0.15,
			WeightLag:           0.30,
			WeightGap:           0.35,
			WeightOracleConf:    0.20,
			WeightLiquidity:     0.15,
			MaxLag:              duration{30 * time.Second},
			MaxGap:              0.2,
			LiquidityCeilingUSD: 10000,
			ExecutionCostPct:    2.0,
			ConfidenceThreshold: 0.6,
			HistoryLimit:        1000,
			TickInterval:        duration{time.Second},
		},
		Sizing: SizingConfig{
			BaseSizeUSD:       100,
			MinSizeUSD:        5,
			LiquidityFraction: 0.10,
			MultWeak:          0.25,
			MultModerate:      0.50,
			MultStrong:        0.75,
			MultVeryStrong:    1.00,
		},
		Risk: RiskConfig{
			MaxPositionSizeUSD: 100,
			MaxDailyLossUSD:    50,
			MaxConcurrent:      3,
			Cooldown:           duration{60 * time.Second},
			MaxSlippagePct:     0.5,
			MinConfidence:      0.5,
		},
		Ledger: LedgerConfig{
			StopLossPct:        5.0,
			TakeProfitPct:      10.0,
			ClosedHistoryLimit: 500,
		},
		Execution: ExecutionConfig{
			Enabled: false,
			Venue:   "paper",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "lagbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "lagbot-data",
			ForcePathStyle: true,
			KeyPrefix:      "lagbot",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_approved", "trade_rejected", "position_opened", "position_closed"},
		},
		Mode:     "observe",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"observe": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
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

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, observe, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Watchlist
	if len(c.Watch.Symbols) == 0 {
		errs = append(errs, "watch: symbols must not be empty")
	}
	for _, sym := range c.Watch.Symbols {
		if _, ok := c.Watch.MarketSlugs[sym]; !ok {
			errs = append(errs, fmt.Sprintf("watch: no market_slug configured for symbol %q", sym))
		}
	}

	// Feeds
	if c.Feeds.Capacity < 1 {
		errs = append(errs, "feeds: capacity must be >= 1")
	}
	if c.Feeds.MaxAge.Duration <= 0 {
		errs = append(errs, "feeds: max_age must be positive")
	}
	if c.Feeds.OracleConfidence < 0 || c.Feeds.OracleConfidence > 1 {
		errs = append(errs, "feeds: oracle_confidence must be in [0,1]")
	}
	if c.Feeds.ImpliedConfidence < 0 || c.Feeds.ImpliedConfidence > 1 {
		errs = append(errs, "feeds: implied_confidence must be in [0,1]")
	}

	// Strategy: bands must ascend, weights must sum to 1.
	if c.Strategy.MinProbGap <= 0 {
		errs = append(errs, "strategy: min_prob_gap must be > 0")
	}
	if !(c.Strategy.BandModerate < c.Strategy.BandStrong && c.Strategy.BandStrong < c.Strategy.BandVeryStrong) {
		errs = append(errs, fmt.Sprintf("strategy: bands must ascend, got moderate=%.3f strong=%.3f very_strong=%.3f",
			c.Strategy.BandModerate, c.Strategy.BandStrong, c.Strategy.BandVeryStrong))
	}
	wsum := c.Strategy.WeightLag + c.Strategy.WeightGap + c.Strategy.WeightOracleConf + c.Strategy.WeightLiquidity
	if math.Abs(wsum-1.0) > 1e-9 {
		errs = append(errs, fmt.Sprintf("strategy: confidence weights must sum to 1.0, got %.6f", wsum))
	}
	if !(c.Strategy.ProbFloor < 0.5 && 0.5 < c.Strategy.ProbCeiling) {
		errs = append(errs, "strategy: prob_floor must be < 0.5 < prob_ceiling")
	}
	if c.Strategy.MaxLag.Duration <= 0 {
		errs = append(errs, "strategy: max_lag must be positive")
	}
	if c.Strategy.MaxGap <= 0 {
		errs = append(errs, "strategy: max_gap must be > 0")
	}
	if c.Strategy.LiquidityCeilingUSD <= 0 {
		errs = append(errs, "strategy: liquidity_ceiling_usd must be > 0")
	}
	if c.Strategy.ConfidenceThreshold < 0 || c.Strategy.ConfidenceThreshold > 1 {
		errs = append(errs, "strategy: confidence_threshold must be in [0,1]")
	}
	if c.Strategy.HistoryLimit < 1 {
		errs = append(errs, "strategy: history_limit must be >= 1")
	}

	// Sizing
	if c.Sizing.BaseSizeUSD <= 0 {
		errs = append(errs, "sizing: base_size_usd must be > 0")
	}
	if c.Sizing.MinSizeUSD < 0 {
		errs = append(errs, "sizing: min_size_usd must be >= 0")
	}
	if c.Sizing.LiquidityFraction <= 0 || c.Sizing.LiquidityFraction > 1 {
		errs = append(errs, "sizing: liquidity_fraction must be in (0,1]")
	}

	// Risk
	if c.Risk.MaxPositionSizeUSD <= 0 {
		errs = append(errs, "risk: max_position_size_usd must be > 0")
	}
	if c.Risk.MaxDailyLossUSD <= 0 {
		errs = append(errs, "risk: max_daily_loss_usd must be > 0")
	}
	if c.Risk.MaxConcurrent < 1 {
		errs = append(errs, "risk: max_concurrent must be >= 1")
	}
	if c.Risk.Cooldown.Duration < 0 {
		errs = append(errs, "risk: cooldown must not be negative")
	}

	// Ledger
	if c.Ledger.ClosedHistoryLimit < 1 {
		errs = append(errs, "ledger: closed_history_limit must be >= 1")
	}

	// Execution
	if c.Execution.Venue != "paper" && c.Execution.Venue != "clob" {
		errs = append(errs, fmt.Sprintf("execution: unknown venue %q (valid: paper, clob)", c.Execution.Venue))
	}
	if c.Execution.Enabled && c.Execution.Venue == "clob" {
		haveInline := c.Execution.ApiAddress != "" && c.Execution.ApiKey != "" &&
			c.Execution.ApiSecret != "" && c.Execution.ApiPassphrase != ""
		haveFile := c.Execution.CredentialsPath != ""
		if !haveInline && !haveFile {
			errs = append(errs, "execution: clob venue needs api_address/api_key/api_secret/api_passphrase or credentials_path")
		}
		if haveFile && c.Execution.CredentialsPassword == "" {
			errs = append(errs, "execution: credentials_password is required when credentials_path is set")
		}
	}

	// Chainlink is required in every mode; they all run the price feeds.
	if c.Chainlink.RPCURL == "" {
		errs = append(errs, "chainlink: rpc_url must not be empty")
	}
	for _, sym := range c.Watch.Symbols {
		if _, ok := c.Chainlink.Aggregators[sym]; !ok {
			errs = append(errs, fmt.Sprintf("chainlink: no aggregator address for symbol %q", sym))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
