package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYVIEW_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults plus
// environment are used. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYVIEW_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Dome ──
	setStr(&cfg.Dome.BaseURL, "POLYVIEW_DOME_BASE_URL")
	setStr(&cfg.Dome.APIKey, "POLYVIEW_DOME_API_KEY")
	setStr(&cfg.Dome.APIKey, "DOME_API_KEY") // compatibility alias
	setDuration(&cfg.Dome.Timeout, "POLYVIEW_DOME_TIMEOUT")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "POLYVIEW_CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "POLYVIEW_CACHE_TTL")
	setDuration(&cfg.Cache.SweepInterval, "POLYVIEW_CACHE_SWEEP_INTERVAL")
	setInt(&cfg.Cache.MaxEntries, "POLYVIEW_CACHE_MAX_ENTRIES")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYVIEW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYVIEW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYVIEW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYVIEW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYVIEW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYVIEW_REDIS_TLS_ENABLED")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYVIEW_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "POLYVIEW_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYVIEW_SERVER_API_KEY")
	setDuration(&cfg.Server.Cooldown, "POLYVIEW_SERVER_COOLDOWN")
	setBool(&cfg.Server.TrustProxyHeaders, "POLYVIEW_SERVER_TRUST_PROXY_HEADERS")

	// ── Query ──
	setStr(&cfg.Query.Slug, "POLYVIEW_QUERY_SLUG")
	setStr(&cfg.Query.Interval, "POLYVIEW_QUERY_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYVIEW_MODE")
	setStr(&cfg.LogLevel, "POLYVIEW_LOG_LEVEL")
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
