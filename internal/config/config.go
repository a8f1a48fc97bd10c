// Package config defines the top-level configuration for polyview and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYVIEW_* environment variables.
type Config struct {
	Dome     DomeConfig   `toml:"dome"`
	Cache    CacheConfig  `toml:"cache"`
	Redis    RedisConfig  `toml:"redis"`
	Server   ServerConfig `toml:"server"`
	Query    QueryConfig  `toml:"query"`
	Mode     string       `toml:"mode"`
	LogLevel string       `toml:"log_level"`
}

// DomeConfig holds the upstream market-data API settings. APIKey is only the
// default used by the HTTP surface when a caller sends no key of its own.
type DomeConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// CacheConfig selects and tunes the upstream response cache.
type CacheConfig struct {
	// Backend is "memory" (per process) or "redis" (shared).
	Backend       string   `toml:"backend"`
	TTL           duration `toml:"ttl"`
	SweepInterval duration `toml:"sweep_interval"`
	// MaxEntries bounds the memory backend; 0 means unbounded.
	MaxEntries int `toml:"max_entries"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// Cooldown is the per-client, per-view minimum spacing between calls.
	// A non-zero value requires Redis.
	Cooldown duration `toml:"cooldown"`
	// TrustProxyHeaders makes the cooldown key on X-Forwarded-For and
	// X-Real-IP. Leave off unless a reverse proxy overwrites them.
	TrustProxyHeaders bool `toml:"trust_proxy_headers"`
}

// QueryConfig is the target of a one-shot "query" run.
type QueryConfig struct {
	Slug     string `toml:"slug"`
	Interval string `toml:"interval"`
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
		Dome: DomeConfig{
			BaseURL: "https://api.domeapi.io/v1",
			Timeout: duration{30 * time.Second},
		},
		Cache: CacheConfig{
			Backend:       "memory",
			TTL:           duration{30 * time.Second},
			SweepInterval: duration{time.Minute},
			MaxEntries:    10_000,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Port:        3001,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Query: QueryConfig{
			Interval: string(domain.Interval1m),
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"query":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsRedis reports whether the configuration requires a Redis connection.
func (c *Config) NeedsRedis() bool {
	return strings.EqualFold(c.Cache.Backend, "redis") || c.Server.Cooldown.Duration > 0
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, query)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Dome
	if u, err := url.Parse(c.Dome.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("dome: base_url %q must be an absolute URL", c.Dome.BaseURL))
	}
	if c.Dome.Timeout.Duration <= 0 {
		errs = append(errs, "dome: timeout must be > 0")
	}

	// Cache
	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
		if c.Cache.SweepInterval.Duration <= 0 {
			errs = append(errs, "cache: sweep_interval must be > 0 for the memory backend")
		}
	case "redis":
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis)", c.Cache.Backend))
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, "cache: max_entries must be >= 0")
	}

	// Redis
	if c.NeedsRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server / query
	switch mode {
	case "server":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.Cooldown.Duration < 0 {
			errs = append(errs, "server: cooldown must be >= 0")
		}
	case "query":
		if strings.TrimSpace(c.Query.Slug) == "" {
			errs = append(errs, "query: slug is required for query mode")
		}
		if _, err := domain.ParseInterval(c.Query.Interval); err != nil {
			errs = append(errs, "query: "+err.Error())
		}
		if c.Dome.APIKey == "" {
			errs = append(errs, "dome: api_key is required for query mode")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
