// Package config defines the top-level configuration for the sniper daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"tokensniper/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// YAML file and then optionally overridden by SNIPER_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `yaml:"wallet"`
	Engine   EngineConfig   `yaml:"engine"`
	Feed     FeedConfig     `yaml:"feed"`
	Venue    VenueConfig    `yaml:"venue"`
	Executor ExecutorConfig `yaml:"executor"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

// WalletConfig identifies the trading wallet. Custody and signing live in
// the external swap submitter; only the public key is needed here.
type WalletConfig struct {
	Address string `yaml:"address"`
}

// EngineConfig holds tick cadence and concurrency bounds.
type EngineConfig struct {
	PollIntervalMs         int `yaml:"poll_interval_ms"`
	FeedTimeoutMs          int `yaml:"feed_timeout_ms"`
	ExecTimeoutMs          int `yaml:"exec_timeout_ms"`
	MaxOutstandingRequests int `yaml:"max_outstanding_requests"`
}

// PollInterval returns the tick cadence as a duration.
func (c EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// FeedTimeout returns the per-poll timeout as a duration.
func (c EngineConfig) FeedTimeout() time.Duration {
	return time.Duration(c.FeedTimeoutMs) * time.Millisecond
}

// ExecTimeout returns the per-execution timeout as a duration.
func (c EngineConfig) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutMs) * time.Millisecond
}

// FeedConfig holds the price API endpoint.
type FeedConfig struct {
	BaseURL string `yaml:"base_url"`
}

// VenueConfig holds the curve-state API and migration stream endpoints.
type VenueConfig struct {
	BaseURL string `yaml:"base_url"`
	WsURL   string `yaml:"ws_url"`
}

// ExecutorConfig holds retry behavior and fee parameters for sells.
type ExecutorConfig struct {
	SubmitURL           string `yaml:"submit_url"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryBackoffMs      int    `yaml:"retry_backoff_ms"`
	SlippageBps         int    `yaml:"slippage_bps"`
	PriorityFeeLamports uint64 `yaml:"priority_fee_lamports"`
	UseBundle           bool   `yaml:"use_bundle"`
}

// RetryBackoff returns the initial retry backoff as a duration.
func (c ExecutorConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// Fees returns the fee configuration passed through on every trade.
func (c ExecutorConfig) Fees() domain.FeeConfig {
	return domain.FeeConfig{
		SlippageBps:         c.SlippageBps,
		PriorityFeeLamports: c.PriorityFeeLamports,
		UseBundle:           c.UseBundle,
	}
}

// PostgresConfig holds position persistence parameters. When disabled the
// engine runs purely in memory.
type PostgresConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DSN           string `yaml:"dsn"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Database      string `yaml:"database"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	SSLMode       string `yaml:"ssl_mode"`
	PoolMaxConns  int    `yaml:"pool_max_conns"`
	PoolMinConns  int    `yaml:"pool_min_conns"`
	RunMigrations bool   `yaml:"run_migrations"`
}

// RedisConfig holds price cache / event bus parameters.
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
	TLSEnabled bool   `yaml:"tls_enabled"`
	// EventChannel is the Pub/Sub channel position events are published on.
	EventChannel string `yaml:"event_channel"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	TelegramToken  string   `yaml:"telegram_token"`
	TelegramChatID string   `yaml:"telegram_chat_id"`
	// Events filters delivered event types; empty delivers everything.
	Events []string `yaml:"events"`
}

// ServerConfig holds the ops API parameters.
type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Defaults returns the built-in configuration, suitable as a base for file
// and environment merging.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			PollIntervalMs:         30000,
			FeedTimeoutMs:          10000,
			ExecTimeoutMs:          90000,
			MaxOutstandingRequests: 8,
		},
		Executor: ExecutorConfig{
			MaxRetries:     2,
			RetryBackoffMs: 2000,
			SlippageBps:    100,
		},
		Postgres: PostgresConfig{
			SSLMode:       "disable",
			PoolMaxConns:  4,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			EventChannel: "positions",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8085,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. Call it after
// Load.
func (c *Config) Validate() error {
	if err := domain.ValidateAddress(c.Wallet.Address); err != nil {
		return fmt.Errorf("config: wallet: %w", err)
	}
	if strings.TrimSpace(c.Feed.BaseURL) == "" {
		return fmt.Errorf("config: feed.base_url is required")
	}
	if strings.TrimSpace(c.Venue.BaseURL) == "" {
		return fmt.Errorf("config: venue.base_url is required")
	}
	if strings.TrimSpace(c.Executor.SubmitURL) == "" {
		return fmt.Errorf("config: executor.submit_url is required")
	}
	if c.Engine.PollIntervalMs <= 0 {
		return fmt.Errorf("config: engine.poll_interval_ms must be positive")
	}
	if c.Engine.FeedTimeoutMs <= 0 || c.Engine.FeedTimeoutMs >= c.Engine.PollIntervalMs {
		return fmt.Errorf("config: engine.feed_timeout_ms must be positive and below the poll interval")
	}
	if c.Executor.SlippageBps < 0 || c.Executor.SlippageBps > 10000 {
		return fmt.Errorf("config: executor.slippage_bps must be in [0, 10000]")
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" && strings.TrimSpace(c.Postgres.Host) == "" {
		return fmt.Errorf("config: postgres enabled but neither dsn nor host set")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("config: notify.telegram_token and notify.telegram_chat_id must be set together")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
