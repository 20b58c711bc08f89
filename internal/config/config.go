// Package config defines the tradecore configuration, its defaults and
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file or a flat key=value file and then optionally overridden by
// TRADECORE_* environment variables.
type Config struct {
	Symbols   []string        `toml:"symbols"`
	Risk      RiskConfig      `toml:"risk"`
	Venue     VenueConfig     `toml:"venue"`
	Execution ExecutionConfig `toml:"execution"`
	Reconnect ReconnectConfig `toml:"reconnect"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// RiskConfig holds the per-symbol absolute position limit. The limit is a
// whole number of units; fractional values are rejected at load time.
type RiskConfig struct {
	MaxPosition int `toml:"max_position"`
}

// MaxPositionDecimal returns the limit as a decimal.
func (r RiskConfig) MaxPositionDecimal() decimal.Decimal {
	return decimal.NewFromInt(int64(r.MaxPosition))
}

// VenueConfig holds the depth-feed endpoints.
type VenueConfig struct {
	Tag          string `toml:"tag"`
	WSURL        string `toml:"ws_url"`
	RestURL      string `toml:"rest_url"`
	StreamSuffix string `toml:"stream_suffix"`
	DepthLimit   int    `toml:"depth_limit"`
	BufferSize   int    `toml:"buffer_size"`
}

// ExecutionConfig holds simulated execution parameters. DedupTTL is how long
// an order id submitted over HTTP stays reserved; zero disables the check.
type ExecutionConfig struct {
	Endpoint  string   `toml:"endpoint"`
	MaxLevels int      `toml:"max_levels"`
	DedupTTL  duration `toml:"dedup_ttl"`
}

// ReconnectConfig is the optional feed reconnect policy. MaxAttempts == 0
// disables reconnecting.
type ReconnectConfig struct {
	MaxAttempts     int      `toml:"max_attempts"`
	InitialInterval duration `toml:"initial_interval"`
	MaxInterval     duration `toml:"max_interval"`
	Multiplier      float64  `toml:"multiplier"`
}

// TelemetryConfig holds metric aggregation parameters.
type TelemetryConfig struct {
	FlushInterval duration `toml:"flush_interval"`
	Prometheus    bool     `toml:"prometheus"`
	Namespace     string   `toml:"namespace"`
}

// RedisConfig holds Redis connection and mirror parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	MirrorDepth  int      `toml:"mirror_depth"`
	MirrorEvery  duration `toml:"mirror_every"`
	QueueSize    int      `toml:"queue_size"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Risk: RiskConfig{
			MaxPosition: 100,
		},
		Venue: VenueConfig{
			Tag:          "BinanceUS",
			WSURL:        "wss://stream.binance.us:9443/ws",
			RestURL:      "https://api.binance.us",
			StreamSuffix: "@depth@100ms",
			DepthLimit:   1000,
			BufferSize:   4096,
		},
		Execution: ExecutionConfig{
			Endpoint:  "sim",
			MaxLevels: 20,
			DedupTTL:  duration{5 * time.Minute},
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:     0,
			InitialInterval: duration{500 * time.Millisecond},
			MaxInterval:     duration{30 * time.Second},
			Multiplier:      2.0,
		},
		Telemetry: TelemetryConfig{
			FlushInterval: duration{10 * time.Second},
			Prometheus:    true,
			Namespace:     "tradecore",
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			MirrorDepth:  20,
			MirrorEvery:  duration{5 * time.Second},
			QueueSize:    1024,
			StreamMaxLen: 10000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"risk_reject", "stream_error"},
		},
		LogLevel: "info",
	}
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

	// Symbols
	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, "symbols: empty symbol")
			continue
		}
		if seen[s] {
			errs = append(errs, fmt.Sprintf("symbols: duplicate symbol %q", s))
		}
		seen[s] = true
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Risk
	if c.Risk.MaxPosition <= 0 {
		errs = append(errs, "risk: max_position must be > 0")
	}

	// Venue
	if c.Venue.WSURL == "" {
		errs = append(errs, "venue: ws_url must not be empty")
	}
	if c.Venue.RestURL == "" {
		errs = append(errs, "venue: rest_url must not be empty")
	}
	if c.Venue.DepthLimit < 1 || c.Venue.DepthLimit > 5000 {
		errs = append(errs, fmt.Sprintf("venue: depth_limit must be 1-5000, got %d", c.Venue.DepthLimit))
	}

	// Execution
	if c.Execution.MaxLevels < 1 {
		errs = append(errs, "execution: max_levels must be >= 1")
	}

	// Reconnect
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "reconnect: max_attempts must be >= 0")
	}
	if c.Reconnect.MaxAttempts > 0 && c.Reconnect.InitialInterval.Duration <= 0 {
		errs = append(errs, "reconnect: initial_interval must be > 0 when enabled")
	}

	// Telemetry
	if c.Telemetry.FlushInterval.Duration <= 0 {
		errs = append(errs, "telemetry: flush_interval must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.QueueSize < 1 {
			errs = append(errs, "redis: queue_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
