package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Engine
	Engine EngineConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// EngineConfig holds index engine runtime settings
type EngineConfig struct {
	StrategyPath string    // strategy YAML (비어 있으면 기본 전략)
	SeriesID     string    // 인덱스 시계열 ID
	UniverseIDs  []string  // 구성 후보 자산
	HistoryDays  int       // 리프레시 시 로드할 가격 이력 일수
	Inception    time.Time // 고정 기준일 (zero면 HistoryDays로 계산)
	RefreshCron  string    // 스케줄러 cron 표현식
}

// APIConfig holds HTTP surface settings
type APIConfig struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
	RequestTimeout     time.Duration
}

// Load reads configuration from environment variables (and .env when present)
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "aegis_index"),
			User:            getEnv("DB_USER", "aegis_index"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        envOr("DB_MAX_CONNS", 25, strconv.Atoi),
			MinConns:        envOr("DB_MIN_CONNS", 5, strconv.Atoi),
			MaxConnLifetime: envOr("DB_MAX_CONN_LIFETIME", time.Hour, time.ParseDuration),
			MaxConnIdleTime: envOr("DB_MAX_CONN_IDLE_TIME", 30*time.Minute, time.ParseDuration),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       envOr("REDIS_DB", 0, strconv.Atoi),
			Enabled:  envOr("REDIS_ENABLED", true, strconv.ParseBool),
			CacheTTL: envOr("REDIS_CACHE_TTL", 15*time.Minute, time.ParseDuration),
		},

		Engine: EngineConfig{
			StrategyPath: getEnv("STRATEGY_PATH", ""),
			SeriesID:     getEnv("INDEX_SERIES_ID", "multi_factor_index"),
			UniverseIDs:  getEnvAsList("INDEX_UNIVERSE"),
			HistoryDays:  envOr("INDEX_HISTORY_DAYS", 400, strconv.Atoi),
			Inception:    envOr("INDEX_INCEPTION", time.Time{}, parseDate),
			RefreshCron:  getEnv("INDEX_REFRESH_CRON", "0 30 18 * * 1-5"),
		},

		API: APIConfig{
			RateLimitPerSecond: envOr("API_RATE_LIMIT_PER_SEC", 5.0, parseFloat),
			RateLimitBurst:     envOr("API_RATE_LIMIT_BURST", 10, strconv.Atoi),
			RequestTimeout:     envOr("API_REQUEST_TIMEOUT", 30*time.Second, time.ParseDuration),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: envOr("METRICS_ENABLED", true, strconv.ParseBool),
	}

	// DATABASE_URL이 없고 DB_HOST가 명시되면 개별 값으로 DSN 구성
	if os.Getenv("DB_HOST") != "" && cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.DSN()
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DSN builds a postgres URL from the individual connection fields
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	return u.String()
}

// validate reports every invalid setting at once
func (c *Config) validate() error {
	var errs []error

	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production (got %q)", c.Env))
	}
	if c.Engine.HistoryDays < 2 {
		errs = append(errs, errors.New("INDEX_HISTORY_DAYS must be >= 2"))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.API.RateLimitPerSecond < 0 || c.API.RateLimitBurst < 0 {
		errs = append(errs, errors.New("API rate limit must not be negative"))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, errors.New("API_REQUEST_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// RequireDatabase fails when DATABASE_URL is not set
// DB를 사용하는 커맨드만 호출 (compute/config validate는 DB 불필요)
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// loadEnvFile loads the first .env found in the working directory or next to the binary
func loadEnvFile() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envOr parses key with parse, falling back to def when unset or malformed
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseDate(s string) (time.Time, error) { return time.Parse("2006-01-02", s) }

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
