package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file at path, merges it on top of the
// built-in defaults, applies SNIPER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the YAML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.Address, "SNIPER_WALLET_ADDRESS")

	setInt(&cfg.Engine.PollIntervalMs, "SNIPER_ENGINE_POLL_INTERVAL_MS")
	setInt(&cfg.Engine.FeedTimeoutMs, "SNIPER_ENGINE_FEED_TIMEOUT_MS")
	setInt(&cfg.Engine.ExecTimeoutMs, "SNIPER_ENGINE_EXEC_TIMEOUT_MS")
	setInt(&cfg.Engine.MaxOutstandingRequests, "SNIPER_ENGINE_MAX_OUTSTANDING_REQUESTS")

	setStr(&cfg.Feed.BaseURL, "SNIPER_FEED_BASE_URL")

	setStr(&cfg.Venue.BaseURL, "SNIPER_VENUE_BASE_URL")
	setStr(&cfg.Venue.WsURL, "SNIPER_VENUE_WS_URL")

	setStr(&cfg.Executor.SubmitURL, "SNIPER_EXECUTOR_SUBMIT_URL")
	setInt(&cfg.Executor.MaxRetries, "SNIPER_EXECUTOR_MAX_RETRIES")
	setInt(&cfg.Executor.RetryBackoffMs, "SNIPER_EXECUTOR_RETRY_BACKOFF_MS")
	setInt(&cfg.Executor.SlippageBps, "SNIPER_EXECUTOR_SLIPPAGE_BPS")
	setUint64(&cfg.Executor.PriorityFeeLamports, "SNIPER_EXECUTOR_PRIORITY_FEE_LAMPORTS")
	setBool(&cfg.Executor.UseBundle, "SNIPER_EXECUTOR_USE_BUNDLE")

	setBool(&cfg.Postgres.Enabled, "SNIPER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SNIPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SNIPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SNIPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SNIPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SNIPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SNIPER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SNIPER_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "SNIPER_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "SNIPER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "SNIPER_REDIS_TLS_ENABLED")

	setStr(&cfg.Notify.TelegramToken, "SNIPER_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_TELEGRAM_CHAT_ID")

	setBool(&cfg.Server.Enabled, "SNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SNIPER_SERVER_PORT")

	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
}

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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
