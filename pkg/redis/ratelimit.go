package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimitConfig names a shared quota
type RateLimitConfig struct {
	Key    string        // 한도 이름 (예: "compute")
	Limit  int           // 윈도우당 허용 횟수
	Window time.Duration // 고정 윈도우 길이
}

// Decision is the outcome of one quota check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // 거부 시 다음 윈도우까지 남은 시간
}

// ComputeRateLimit caps index computations across every API instance
var ComputeRateLimit = RateLimitConfig{Key: "compute", Limit: 30, Window: time.Minute}

// RateLimiter counts requests per fixed window in Redis so that
// every instance of the engine shares one quota.
// ⭐ SSOT: 인스턴스 간 공유 한도는 여기서만
type RateLimiter struct {
	client *Client
	prefix string
	now    func() time.Time
}

// NewRateLimiter creates a limiter whose keys live under prefix
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, now: time.Now}
}

func (r *RateLimiter) windowKey(cfg RateLimitConfig, at time.Time) (string, time.Time) {
	start := at.Truncate(cfg.Window)
	return fmt.Sprintf("%s:ratelimit:%s:%d", r.prefix, cfg.Key, start.Unix()), start.Add(cfg.Window)
}

// Allow consumes one slot of the current window.
// A disabled client admits everything.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (Decision, error) {
	if !r.client.Enabled() {
		return Decision{Allowed: true, Remaining: cfg.Limit}, nil
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return Decision{}, fmt.Errorf("invalid rate limit %q: limit=%d window=%s", cfg.Key, cfg.Limit, cfg.Window)
	}

	now := r.now()
	key, end := r.windowKey(cfg, now)

	pipe := r.client.Redis().TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", cfg.Key, err)
	}

	count := int(incr.Val())
	if count > cfg.Limit {
		return Decision{RetryAfter: end.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: cfg.Limit - count}, nil
}

// Wait blocks until a slot is free or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		d, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		timer := time.NewTimer(d.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
