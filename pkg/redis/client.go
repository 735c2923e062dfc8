package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/aegis-index/pkg/config"
)

// dialTimeout bounds connect and the startup ping.
// Redis only backs caching and shared limits, so a slow server must not stall startup.
const dialTimeout = 3 * time.Second

// Client is the optional Redis connection shared by the report cache and the compute limiter.
// A disabled client turns every operation into a no-op.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb *redis.Client
}

// New connects when REDIS_ENABLED is set, otherwise returns a disabled client
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return Disabled(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Wrap uses an existing go-redis client (tests inject a mock here)
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Disabled returns a client whose operations are all no-ops
func Disabled() *Client {
	return &Client{}
}

// Enabled reports whether a connection is configured
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Ping checks connectivity (nil when disabled)
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// Redis exposes the go-redis client to the cache and limiter
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
