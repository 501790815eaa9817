// Package redis provides the optional distributed cache the credential
// client uses to share resolved credential values across worker processes,
// so a value resolved by one process doesn't have to be re-resolved by every
// other process resolving the same key (spec.md §4.8's Credential Service
// Client, generalized to a multi-process deployment).
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a minimal get/set/delete surface over Redis strings, keyed
// by credential key, with a TTL matching the resolved value's freshness
// window.
type Client struct {
	client    *redis.Client
	keyPrefix string
}

// ClientConfig holds the Redis connection configuration.
type ClientConfig struct {
	URL       string
	Password  string
	KeyPrefix string // default "mediaworker:credential:"
}

// NewClient parses cfg.URL and returns a connected Client. The connection
// is verified with a Ping before returning.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mediaworker:credential:"
	}

	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Client{client: rc, keyPrefix: prefix}, nil
}

func (c *Client) key(credentialKey string) string {
	return c.keyPrefix + credentialKey
}

// Get returns the cached value for key, and whether it was present.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Set caches value for key with the given time-to-live.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete invalidates the cached value for key. credential.Client never
// calls it; entries otherwise leave the cache only when their TTL expires.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}
