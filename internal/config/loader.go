package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// Load reads the configuration file at path, merges it on top of the built-in
// defaults, applies TRADECORE_* environment variable overrides, and returns
// the final Config. Files ending in .toml are decoded as TOML; anything else
// is read as a flat key=value file in which "symbols" and "risk.maxPosition"
// are required. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		cfg.Symbols = normalizeSymbols(cfg.Symbols)
	} else {
		kv, err := LoadKV(path)
		if err != nil {
			return nil, err
		}
		if err := applyKV(&cfg, kv); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyKV maps the flat key set onto cfg.
func applyKV(cfg *Config, kv *KV) error {
	symbols, err := kv.String("symbols")
	if err != nil {
		return err
	}
	cfg.Symbols = ParseSymbols(symbols)

	if cfg.Risk.MaxPosition, err = kv.Int("risk.maxPosition"); err != nil {
		return err
	}

	optional := []error{
		kvStr(kv, "venue.tag", &cfg.Venue.Tag),
		kvStr(kv, "venue.wsUrl", &cfg.Venue.WSURL),
		kvStr(kv, "venue.restUrl", &cfg.Venue.RestURL),
		kvInt(kv, "venue.depthLimit", &cfg.Venue.DepthLimit),
		kvStr(kv, "execution.endpoint", &cfg.Execution.Endpoint),
		kvInt(kv, "execution.maxLevels", &cfg.Execution.MaxLevels),
		kvInt(kv, "reconnect.maxAttempts", &cfg.Reconnect.MaxAttempts),
		kvDuration(kv, "reconnect.initialInterval", &cfg.Reconnect.InitialInterval),
		kvDuration(kv, "telemetry.flushInterval", &cfg.Telemetry.FlushInterval),
		kvBool(kv, "server.enabled", &cfg.Server.Enabled),
		kvInt(kv, "server.port", &cfg.Server.Port),
		kvBool(kv, "redis.enabled", &cfg.Redis.Enabled),
		kvStr(kv, "redis.addr", &cfg.Redis.Addr),
		kvStr(kv, "log.level", &cfg.LogLevel),
	}
	for _, err := range optional {
		if err != nil {
			return err
		}
	}
	return nil
}

func kvStr(kv *KV, key string, dst *string) error {
	if kv.Has(key) {
		*dst, _ = kv.String(key)
	}
	return nil
}

func kvInt(kv *KV, key string, dst *int) error {
	if !kv.Has(key) {
		return nil
	}
	n, err := kv.Int(key)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func kvBool(kv *KV, key string, dst *bool) error {
	if !kv.Has(key) {
		return nil
	}
	v, _ := kv.String(key)
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %w: %s=%q is not a bool", domain.ErrMalformedValue, key, v)
	}
	*dst = b
	return nil
}

func kvDuration(kv *KV, key string, dst *duration) error {
	if !kv.Has(key) {
		return nil
	}
	v, _ := kv.String(key)
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %w: %s=%q is not a duration", domain.ErrMalformedValue, key, v)
	}
	dst.Duration = d
	return nil
}

func normalizeSymbols(in []string) []string {
	return ParseSymbols(strings.Join(in, ","))
}

// applyEnvOverrides reads well-known TRADECORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Symbols / risk ──
	if v := os.Getenv("TRADECORE_SYMBOLS"); v != "" {
		cfg.Symbols = ParseSymbols(v)
	}
	setInt(&cfg.Risk.MaxPosition, "TRADECORE_RISK_MAX_POSITION")

	// ── Venue ──
	setStr(&cfg.Venue.Tag, "TRADECORE_VENUE_TAG")
	setStr(&cfg.Venue.WSURL, "TRADECORE_VENUE_WS_URL")
	setStr(&cfg.Venue.RestURL, "TRADECORE_VENUE_REST_URL")
	setStr(&cfg.Venue.StreamSuffix, "TRADECORE_VENUE_STREAM_SUFFIX")
	setInt(&cfg.Venue.DepthLimit, "TRADECORE_VENUE_DEPTH_LIMIT")

	// ── Execution ──
	setStr(&cfg.Execution.Endpoint, "TRADECORE_EXECUTION_ENDPOINT")
	setInt(&cfg.Execution.MaxLevels, "TRADECORE_EXECUTION_MAX_LEVELS")
	setDuration(&cfg.Execution.DedupTTL, "TRADECORE_EXECUTION_DEDUP_TTL")

	// ── Reconnect ──
	setInt(&cfg.Reconnect.MaxAttempts, "TRADECORE_RECONNECT_MAX_ATTEMPTS")
	setDuration(&cfg.Reconnect.InitialInterval, "TRADECORE_RECONNECT_INITIAL_INTERVAL")
	setDuration(&cfg.Reconnect.MaxInterval, "TRADECORE_RECONNECT_MAX_INTERVAL")
	setFloat64(&cfg.Reconnect.Multiplier, "TRADECORE_RECONNECT_MULTIPLIER")

	// ── Telemetry ──
	setDuration(&cfg.Telemetry.FlushInterval, "TRADECORE_TELEMETRY_FLUSH_INTERVAL")
	setBool(&cfg.Telemetry.Prometheus, "TRADECORE_TELEMETRY_PROMETHEUS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADECORE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADECORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADECORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADECORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADECORE_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "TRADECORE_REDIS_TLS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADECORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADECORE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADECORE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADECORE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADECORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADECORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADECORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADECORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADECORE_LOG_LEVEL")
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
