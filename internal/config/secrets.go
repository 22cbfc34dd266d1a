package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Execution
	out.Execution = cfg.Execution
	redact(&out.Execution.ApiKey)
	redact(&out.Execution.ApiSecret)
	redact(&out.Execution.ApiPassphrase)
	redact(&out.Execution.CredentialsPassword)

	// Chainlink RPC URLs frequently embed provider API keys.
	out.Chainlink = cfg.Chainlink
	redact(&out.Chainlink.RPCURL)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Watch.Symbols != nil {
		out.Watch.Symbols = make([]string, len(cfg.Watch.Symbols))
		copy(out.Watch.Symbols, cfg.Watch.Symbols)
	}
	if cfg.Watch.MarketSlugs != nil {
		out.Watch.MarketSlugs = make(map[string]string, len(cfg.Watch.MarketSlugs))
		for k, v := range cfg.Watch.MarketSlugs {
			out.Watch.MarketSlugs[k] = v
		}
	}
	if cfg.Chainlink.Aggregators != nil {
		out.Chainlink.Aggregators = make(map[string]string, len(cfg.Chainlink.Aggregators))
		for k, v := range cfg.Chainlink.Aggregators {
			out.Chainlink.Aggregators[k] = v
		}
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
