package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns Defaults with the operator-supplied fields filled in so
// that Validate passes.
func validConfig() Config {
	cfg := Defaults()
	cfg.Chainlink.RPCURL = "https://rpc.example.com/v1/key"
	cfg.Chainlink.Aggregators = map[string]string{
		"BTC": "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
		"ETH": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
		"SOL": "0x4ffC43a60e009B551865A93d232E33Fce9f01507",
		"XRP": "0xCed2660c6Dd1Ffd856A5A82C67f3482d88C50b12",
	}
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with chainlink filled in should validate: %v", err)
	}
}

func TestValidateModeCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "TRADE"
	cfg.LogLevel = "DEBUG"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mode and log_level should be case-insensitive: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "yolo" },
			want:   `unknown mode "yolo"`,
		},
		{
			name:   "empty watchlist",
			mutate: func(c *Config) { c.Watch.Symbols = nil },
			want:   "watch: symbols must not be empty",
		},
		{
			name:   "missing market slug",
			mutate: func(c *Config) { delete(c.Watch.MarketSlugs, "SOL") },
			want:   `no market_slug configured for symbol "SOL"`,
		},
		{
			name:   "missing rpc url",
			mutate: func(c *Config) { c.Chainlink.RPCURL = "" },
			want:   "chainlink: rpc_url must not be empty",
		},
		{
			name:   "missing aggregator",
			mutate: func(c *Config) { delete(c.Chainlink.Aggregators, "ETH") },
			want:   `no aggregator address for symbol "ETH"`,
		},
		{
			name:   "weights do not sum to one",
			mutate: func(c *Config) { c.Strategy.WeightLag = 0.5 },
			want:   "confidence weights must sum to 1.0",
		},
		{
			name: "bands out of order",
			mutate: func(c *Config) {
				c.Strategy.BandStrong = c.Strategy.BandVeryStrong + 0.01
			},
			want: "bands must ascend",
		},
		{
			name: "prob floor above midpoint",
			mutate: func(c *Config) {
				c.Strategy.ProbFloor = 0.6
			},
			want: "prob_floor must be < 0.5 < prob_ceiling",
		},
		{
			name: "clob execution without credentials",
			mutate: func(c *Config) {
				c.Execution.Enabled = true
				c.Execution.Venue = "clob"
			},
			want: "clob venue needs",
		},
		{
			name: "credentials file without password",
			mutate: func(c *Config) {
				c.Execution.Enabled = true
				c.Execution.Venue = "clob"
				c.Execution.CredentialsPath = "/tmp/creds.json"
			},
			want: "credentials_password is required",
		},
		{
			name: "postgres bad port",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.Port = 70000
			},
			want: "postgres: port must be 1-65535",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			want: "redis: addr must not be empty",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(c *Config) {
				c.S3.Enabled = true
				c.S3.Bucket = ""
			},
			want: "s3: bucket must not be empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Chainlink.RPCURL = ""
	cfg.Risk.MaxConcurrent = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{"unknown mode", "rpc_url", "max_concurrent"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("combined error missing %q: %v", want, err)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "trade"

[watch]
symbols = ["BTC"]
refresh_interval = "90s"

[watch.market_slugs]
BTC = "bitcoin"

[chainlink]
rpc_url = "https://rpc.example.com"

[chainlink.aggregators]
BTC = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"

[risk]
max_concurrent = 7
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "trade" {
		t.Fatalf("mode = %q, want trade", cfg.Mode)
	}
	if len(cfg.Watch.Symbols) != 1 || cfg.Watch.Symbols[0] != "BTC" {
		t.Fatalf("symbols = %v, want [BTC]", cfg.Watch.Symbols)
	}
	if cfg.Watch.RefreshInterval.Duration != 90*time.Second {
		t.Fatalf("refresh_interval = %v, want 90s", cfg.Watch.RefreshInterval.Duration)
	}
	if cfg.Risk.MaxConcurrent != 7 {
		t.Fatalf("max_concurrent = %d, want 7", cfg.Risk.MaxConcurrent)
	}
	// Untouched sections keep their defaults.
	if cfg.Strategy.MinProbGap != 0.05 {
		t.Fatalf("min_prob_gap = %v, want default 0.05", cfg.Strategy.MinProbGap)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("server port = %d, want default 8000", cfg.Server.Port)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"observe\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LAGBOT_MODE", "server")
	t.Setenv("LAGBOT_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("LAGBOT_WATCH_SYMBOLS", "BTC, ETH")
	t.Setenv("LAGBOT_RISK_COOLDOWN", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "server" {
		t.Fatalf("mode = %q, want env override server", cfg.Mode)
	}
	if cfg.Postgres.Password != "s3cret" {
		t.Fatalf("postgres password not overridden")
	}
	if len(cfg.Watch.Symbols) != 2 || cfg.Watch.Symbols[0] != "BTC" || cfg.Watch.Symbols[1] != "ETH" {
		t.Fatalf("symbols = %v, want [BTC ETH]", cfg.Watch.Symbols)
	}
	if cfg.Risk.Cooldown.Duration != 2*time.Minute {
		t.Fatalf("cooldown = %v, want 2m", cfg.Risk.Cooldown.Duration)
	}
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-pass"
	cfg.Redis.Password = "redis-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Execution.ApiSecret = "clob-secret"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"chainlink rpc_url": red.Chainlink.RPCURL,
		"postgres password": red.Postgres.Password,
		"redis password":    red.Redis.Password,
		"s3 secret key":     red.S3.SecretKey,
		"execution secret":  red.Execution.ApiSecret,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Fatalf("%s not redacted: %q", name, got)
		}
	}

	// The original must be untouched.
	if cfg.Postgres.Password != "pg-pass" {
		t.Fatal("redaction mutated the source config")
	}

	// Mutating the copy's maps must not leak into the original.
	red.Chainlink.Aggregators["BTC"] = "tampered"
	if cfg.Chainlink.Aggregators["BTC"] == "tampered" {
		t.Fatal("redacted copy shares the aggregators map with the source")
	}
}
