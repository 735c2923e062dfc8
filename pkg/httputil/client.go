package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/aegis-index/pkg/logger"
	"github.com/wonny/aegis-index/pkg/redis"
)

const (
	// maxBodyBytes caps a fetched input file
	maxBodyBytes = 256 << 20
	userAgent    = "aegis-index/1.0"
)

// Backoff controls retries of 5xx and 429 responses.
// Attempts is the number of retries after the first request; 0 disables retrying.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// delay returns the wait before retry n (0-based), doubling up to Max
func (b Backoff) delay(n int) time.Duration {
	d := b.Initial
	for i := 0; i < n && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// StatusError is a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client downloads remote price, benchmark and allocation files
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	http    *http.Client
	log     *logger.Logger
	backoff Backoff
	limiter *redis.RateLimiter
	limit   redis.RateLimitConfig
}

// New creates a client with a 30s timeout and three retries
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(log *logger.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.OrNop(log).WithComponent("http"),
		backoff: Backoff{Attempts: 3, Initial: time.Second, Max: 10 * time.Second},
	}
}

// WithTimeout sets the per-request timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.http.Timeout = timeout
	return c
}

// WithRetry sets the retry count and first delay
func (c *Client) WithRetry(attempts int, initial time.Duration) *Client {
	c.backoff.Attempts = attempts
	c.backoff.Initial = initial
	if c.backoff.Max < initial {
		c.backoff.Max = initial
	}
	return c
}

// DisableRetry sends every request exactly once
func (c *Client) DisableRetry() *Client {
	c.backoff.Attempts = 0
	return c
}

// WithRateLimiter makes every request wait for a slot of the shared quota
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.limiter = limiter
	c.limit = cfg
	return c
}

// Get sends a GET, retrying retryable statuses.
// The caller closes the body of the returned response.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.limit); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	start := time.Now()
	log := c.log.WithField("url", url)

	resp, err := c.send(req, log)
	if err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

// send runs the retry loop; the last response is returned even when retryable
func (c *Client) send(req *http.Request, log *logger.Logger) (*http.Response, error) {
	for n := 0; ; n++ {
		resp, err := c.http.Do(req)
		if err == nil && !IsRetryableError(resp.StatusCode) {
			return resp, nil
		}
		if n >= c.backoff.Attempts {
			return resp, err
		}

		wait := c.backoff.delay(n)
		if resp != nil {
			if ra := retryAfter(resp); ra > 0 {
				wait = min(ra, c.backoff.Max)
			}
			resp.Body.Close()
		}

		log.WithFields(map[string]interface{}{
			"attempt": n + 1,
			"delay":   wait,
		}).Warn("Retrying HTTP request")

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// retryAfter reads a delay-seconds Retry-After header
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Fetch downloads a whole body, failing on non-2xx statuses
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", url, maxBodyBytes)
	}
	return body, nil
}

// IsRetryableError reports whether a status is worth retrying (5xx or 429)
func IsRetryableError(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
