package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLRiskReport is the default lifetime of a cached risk report
const TTLRiskReport = 15 * time.Minute

// RiskReportKey keys a risk report by series, config hash and as-of date.
// A new index value or a config change therefore never reads a stale report.
func RiskReportKey(seriesID, configHash string, asOf time.Time) string {
	return fmt.Sprintf("risk:%s:%s:%s", seriesID, configHash, asOf.Format("2006-01-02"))
}

// Cache stores JSON values under "<prefix>:cache:<key>"
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a cache namespaced by prefix
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// FullKey returns the namespaced redis key
func (c *Cache) FullKey(key string) string {
	return c.prefix + ":cache:" + key
}

// Get decodes the value at key into dest.
// A missing key or a disabled client is (false, nil).
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	raw, err := c.client.Redis().Get(ctx, c.FullKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set encodes value as JSON and stores it for ttl
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Redis().Set(ctx, c.FullKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; a missing key is not an error
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	if err := c.client.Redis().Del(ctx, c.FullKey(key)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}
