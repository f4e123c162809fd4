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

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MARKETSTREAM_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETSTREAM_* environment variable overrides,
// and returns the final Config. A missing file is not an error, so the
// service can run from defaults and environment alone. The returned Config
// has NOT been validated.
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

// applyEnvOverrides lets operators inject secrets and toggles at deploy time
// without touching the TOML file. Only set, non-empty variables apply.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "SERVER_API_KEYS")
	setInt(&cfg.Server.SearchRateLimit, "SERVER_SEARCH_RATE_LIMIT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	// ── Polymarket ──
	setBool(&cfg.Polymarket.Enabled, "POLYMARKET_ENABLED")
	setStr(&cfg.Polymarket.GammaHost, "POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "POLYMARKET_CLOB_HOST")

	// ── Kalshi ──
	setBool(&cfg.Kalshi.Enabled, "KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "KALSHI_KEY_PASSWORD")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.MirrorTTL, "REDIS_MIRROR_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setStr(&cfg.Archive.DSN, "ARCHIVE_DSN")
	setStr(&cfg.Archive.Host, "ARCHIVE_HOST")
	setInt(&cfg.Archive.Port, "ARCHIVE_PORT")
	setStr(&cfg.Archive.Database, "ARCHIVE_DATABASE")
	setStr(&cfg.Archive.User, "ARCHIVE_USER")
	setStr(&cfg.Archive.Password, "ARCHIVE_PASSWORD")
	setStr(&cfg.Archive.SSLMode, "ARCHIVE_SSL_MODE")
	setInt(&cfg.Archive.RetentionDays, "ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.RetentionCron, "ARCHIVE_RETENTION_CRON")

	// ── Export ──
	setBool(&cfg.Export.Enabled, "EXPORT_ENABLED")
	setStr(&cfg.Export.Endpoint, "EXPORT_ENDPOINT")
	setStr(&cfg.Export.Region, "EXPORT_REGION")
	setStr(&cfg.Export.Bucket, "EXPORT_BUCKET")
	setStr(&cfg.Export.Prefix, "EXPORT_PREFIX")
	setStr(&cfg.Export.AccessKey, "EXPORT_ACCESS_KEY")
	setStr(&cfg.Export.SecretKey, "EXPORT_SECRET_KEY")
	setDuration(&cfg.Export.Interval, "EXPORT_INTERVAL")

	// ── Bootstrap ──
	setBool(&cfg.Bootstrap.Enabled, "BOOTSTRAP_ENABLED")
	setDuration(&cfg.Bootstrap.Timeout, "BOOTSTRAP_TIMEOUT")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
