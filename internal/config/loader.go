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
// built-in defaults, applies LAGBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LAGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Watch ---
	setStringSlice(&cfg.Watch.Symbols, "LAGBOT_WATCH_SYMBOLS")
	setDuration(&cfg.Watch.RefreshInterval, "LAGBOT_WATCH_REFRESH_INTERVAL")
	setFloat64(&cfg.Watch.MinLiquidityUSD, "LAGBOT_WATCH_MIN_LIQUIDITY_USD")
	setInt(&cfg.Watch.TopMarkets, "LAGBOT_WATCH_TOP_MARKETS")

	// --- Feeds ---
	setInt(&cfg.Feeds.Capacity, "LAGBOT_FEEDS_CAPACITY")
	setDuration(&cfg.Feeds.MaxAge, "LAGBOT_FEEDS_MAX_AGE")
	setFloat64(&cfg.Feeds.OracleConfidence, "LAGBOT_FEEDS_ORACLE_CONFIDENCE")
	setFloat64(&cfg.Feeds.ImpliedConfidence, "LAGBOT_FEEDS_IMPLIED_CONFIDENCE")

	// --- Chainlink ---
	setStr(&cfg.Chainlink.RPCURL, "LAGBOT_CHAINLINK_RPC_URL")
	setDuration(&cfg.Chainlink.PollInterval, "LAGBOT_CHAINLINK_POLL_INTERVAL")

	// --- Polymarket ---
	setStr(&cfg.Polymarket.GammaHost, "LAGBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "LAGBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "LAGBOT_POLYMARKET_WS_HOST")
	setFloat64(&cfg.Polymarket.BandFraction, "LAGBOT_POLYMARKET_BAND_FRACTION")

	// --- Strategy ---
	setDuration(&cfg.Strategy.LagThreshold, "LAGBOT_STRATEGY_LAG_THRESHOLD")
	setFloat64(&cfg.Strategy.MinProbGap, "LAGBOT_STRATEGY_MIN_PROB_GAP")
	setFloat64(&cfg.Strategy.ProbCoefficient, "LAGBOT_STRATEGY_PROB_COEFFICIENT")
	setFloat64(&cfg.Strategy.ConfidenceThreshold, "LAGBOT_STRATEGY_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Strategy.ExecutionCostPct, "LAGBOT_STRATEGY_EXECUTION_COST_PCT")
	setInt(&cfg.Strategy.HistoryLimit, "LAGBOT_STRATEGY_HISTORY_LIMIT")
	setDuration(&cfg.Strategy.TickInterval, "LAGBOT_STRATEGY_TICK_INTERVAL")

	// --- Sizing ---
	setFloat64(&cfg.Sizing.BaseSizeUSD, "LAGBOT_SIZING_BASE_SIZE_USD")
	setFloat64(&cfg.Sizing.MinSizeUSD, "LAGBOT_SIZING_MIN_SIZE_USD")
	setFloat64(&cfg.Sizing.LiquidityFraction, "LAGBOT_SIZING_LIQUIDITY_FRACTION")

	// --- Risk ---
	setFloat64(&cfg.Risk.MaxPositionSizeUSD, "LAGBOT_RISK_MAX_POSITION_SIZE_USD")
	setFloat64(&cfg.Risk.MaxDailyLossUSD, "LAGBOT_RISK_MAX_DAILY_LOSS_USD")
	setInt(&cfg.Risk.MaxConcurrent, "LAGBOT_RISK_MAX_CONCURRENT")
	setDuration(&cfg.Risk.Cooldown, "LAGBOT_RISK_COOLDOWN")
	setFloat64(&cfg.Risk.MaxSlippagePct, "LAGBOT_RISK_MAX_SLIPPAGE_PCT")
	setFloat64(&cfg.Risk.MinConfidence, "LAGBOT_RISK_MIN_CONFIDENCE")

	// --- Ledger ---
	setFloat64(&cfg.Ledger.StopLossPct, "LAGBOT_LEDGER_STOP_LOSS_PCT")
	setFloat64(&cfg.Ledger.TakeProfitPct, "LAGBOT_LEDGER_TAKE_PROFIT_PCT")
	setInt(&cfg.Ledger.ClosedHistoryLimit, "LAGBOT_LEDGER_CLOSED_HISTORY_LIMIT")

	// --- Execution ---
	setBool(&cfg.Execution.Enabled, "LAGBOT_EXECUTION_ENABLED")
	setStr(&cfg.Execution.Venue, "LAGBOT_EXECUTION_VENUE")
	setStr(&cfg.Execution.ApiAddress, "LAGBOT_EXECUTION_API_ADDRESS")
	setStr(&cfg.Execution.ApiKey, "LAGBOT_EXECUTION_API_KEY")
	setStr(&cfg.Execution.ApiSecret, "LAGBOT_EXECUTION_API_SECRET")
	setStr(&cfg.Execution.ApiPassphrase, "LAGBOT_EXECUTION_API_PASSPHRASE")
	setStr(&cfg.Execution.CredentialsPath, "LAGBOT_EXECUTION_CREDENTIALS_PATH")
	setStr(&cfg.Execution.CredentialsPassword, "LAGBOT_EXECUTION_CREDENTIALS_PASSWORD")

	// --- Postgres ---
	setBool(&cfg.Postgres.Enabled, "LAGBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "LAGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LAGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LAGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LAGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LAGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LAGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LAGBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LAGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LAGBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LAGBOT_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setBool(&cfg.Redis.Enabled, "LAGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LAGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LAGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LAGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LAGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LAGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LAGBOT_REDIS_TLS_ENABLED")

	// --- S3 ---
	setBool(&cfg.S3.Enabled, "LAGBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LAGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LAGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "LAGBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LAGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LAGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "LAGBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.KeyPrefix, "LAGBOT_S3_KEY_PREFIX")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "LAGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LAGBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LAGBOT_SERVER_CORS_ORIGINS")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "LAGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LAGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LAGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LAGBOT_NOTIFY_EVENTS")

	// --- Top-level ---
	setStr(&cfg.Mode, "LAGBOT_MODE")
	setStr(&cfg.LogLevel, "LAGBOT_LOG_LEVEL")
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
