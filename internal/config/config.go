// Package config defines the marketstream configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketstream/internal/pipeline/cron"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETSTREAM_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Redis      RedisConfig      `toml:"redis"`
	Archive    ArchiveConfig    `toml:"archive"`
	Export     ExportConfig     `toml:"export"`
	Bootstrap  BootstrapConfig  `toml:"bootstrap"`
	LogLevel   string           `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKeys enables X-API-Key auth on /api routes when non-empty.
	APIKeys []string `toml:"api_keys"`
	// SearchRateLimit is the number of /api/search requests allowed per
	// client per minute. Zero disables limiting; it requires redis.
	SearchRateLimit int      `toml:"search_rate_limit"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// PolymarketConfig holds the Polymarket public API endpoints.
type PolymarketConfig struct {
	Enabled   bool   `toml:"enabled"`
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
}

// KalshiConfig holds the Kalshi API endpoint and optional signing key.
// Public market data works unsigned.
type KalshiConfig struct {
	Enabled           bool   `toml:"enabled"`
	BaseURL           string `toml:"base_url"`
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	EncryptedKeyPath  string `toml:"encrypted_key_path"`
	KeyPassword       string `toml:"key_password"`
}

// RedisConfig holds Redis connection parameters and the mirrors it backs.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	MirrorTTL      duration `toml:"mirror_ttl"`
	MirrorQuotes   bool     `toml:"mirror_quotes"`
	MirrorBooks    bool     `toml:"mirror_books"`
	PublishSignals bool     `toml:"publish_signals"`
}

// ArchiveConfig holds the PostgreSQL tick archive parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	RunMigrations bool     `toml:"run_migrations"`
	BatchSize     int      `toml:"batch_size"`
	FlushInterval duration `toml:"flush_interval"`
	RetentionDays int      `toml:"retention_days"`
	RetentionCron string   `toml:"retention_cron"`
}

// ExportConfig holds the S3-compatible history export parameters.
type ExportConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	Prefix         string   `toml:"prefix"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Interval       duration `toml:"interval"`
}

// BootstrapConfig controls the initial catalog load at startup.
type BootstrapConfig struct {
	Enabled bool     `toml:"enabled"`
	Timeout duration `toml:"timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
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
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Polymarket: PolymarketConfig{
			Enabled:   true,
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
		},
		Kalshi: KalshiConfig{
			Enabled: true,
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       20,
			KeyPrefix:      "marketstream",
			MirrorTTL:      duration{10 * time.Minute},
			MirrorQuotes:   true,
			MirrorBooks:    true,
			PublishSignals: true,
		},
		Archive: ArchiveConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketstream",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
			BatchSize:     500,
			FlushInterval: duration{5 * time.Second},
			RetentionDays: 30,
			RetentionCron: "0 3 * * *",
		},
		Export: ExportConfig{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketstream",
			Prefix:         "exports",
			ForcePathStyle: true,
			Interval:       duration{15 * time.Minute},
		},
		Bootstrap: BootstrapConfig{
			Enabled: true,
			Timeout: duration{60 * time.Second},
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

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.SearchRateLimit < 0 {
		errs = append(errs, "server: search_rate_limit must be >= 0")
	}
	if c.Server.SearchRateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "server: search_rate_limit requires redis.enabled")
	}

	// Exchanges
	if !c.Polymarket.Enabled && !c.Kalshi.Enabled {
		errs = append(errs, "at least one of polymarket.enabled or kalshi.enabled must be true")
	}
	if c.Polymarket.Enabled {
		if c.Polymarket.GammaHost == "" {
			errs = append(errs, "polymarket: gamma_host must not be empty")
		}
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host must not be empty")
		}
	}
	if c.Kalshi.Enabled {
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}
		hasKey := c.Kalshi.RsaPrivateKeyPath != "" || c.Kalshi.EncryptedKeyPath != ""
		if hasKey && c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required when a private key is configured")
		}
		if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
			errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
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

	// Archive
	if c.Archive.Enabled {
		if strings.TrimSpace(c.Archive.DSN) == "" {
			if c.Archive.Host == "" {
				errs = append(errs, "archive: host must not be empty (or set archive.dsn)")
			}
			if c.Archive.Port <= 0 || c.Archive.Port > 65535 {
				errs = append(errs, fmt.Sprintf("archive: port must be 1-65535, got %d", c.Archive.Port))
			}
			if c.Archive.Database == "" {
				errs = append(errs, "archive: database must not be empty")
			}
		}
		if c.Archive.PoolMaxConns < 1 {
			errs = append(errs, "archive: pool_max_conns must be >= 1")
		}
		if c.Archive.PoolMinConns > c.Archive.PoolMaxConns {
			errs = append(errs, "archive: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
		if c.Archive.FlushInterval.Duration <= 0 {
			errs = append(errs, "archive: flush_interval must be > 0")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
		if c.Archive.RetentionDays > 0 {
			if _, err := cron.Parse(c.Archive.RetentionCron); err != nil {
				errs = append(errs, fmt.Sprintf("archive: retention_cron: %v", err))
			}
		}
	}

	// Export
	if c.Export.Enabled {
		if c.Export.Bucket == "" {
			errs = append(errs, "export: bucket must not be empty")
		}
		if c.Export.Region == "" {
			errs = append(errs, "export: region must not be empty")
		}
		if c.Export.Interval.Duration < time.Minute {
			errs = append(errs, "export: interval must be at least 1m")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
