// Package redis mirrors live market state into Redis and backs the signal
// bus and the API rate limiter, using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMirrorTTL = 10 * time.Minute

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TLSEnabled bool
	// KeyPrefix namespaces every key written by this process.
	KeyPrefix string
	// MirrorTTL expires mirrored quotes and books that stop updating.
	MirrorTTL time.Duration
}

// Client wraps a go-redis Client with the key namespace shared by the caches.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return newClient(rdb, cfg), nil
}

func newClient(rdb *redis.Client, cfg ClientConfig) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "marketstream"
	}
	ttl := cfg.MirrorTTL
	if ttl <= 0 {
		ttl = defaultMirrorTTL
	}
	return &Client{rdb: rdb, prefix: prefix, ttl: ttl}
}

// key joins parts under the client's namespace.
func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
