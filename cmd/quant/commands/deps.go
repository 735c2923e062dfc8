package commands

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-index/internal/audit"
	"github.com/wonny/aegis-index/internal/index"
	"github.com/wonny/aegis-index/internal/s0_data"
	"github.com/wonny/aegis-index/internal/s0_data/quality"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/config"
	"github.com/wonny/aegis-index/pkg/database"
	"github.com/wonny/aegis-index/pkg/httputil"
	"github.com/wonny/aegis-index/pkg/logger"
	"github.com/wonny/aegis-index/pkg/redis"
)

// loadRuntime loads env config and a logger honouring --verbose
func loadRuntime() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// resolveStrategy finds the strategy file: --strategy, then STRATEGY_PATH.
// With neither set it returns the built-in default, a nil raw and an empty path.
func resolveStrategy(cfg *config.Config) (*strategyconfig.Config, []byte, string, error) {
	path := strategyPath
	if path == "" && cfg != nil {
		path = cfg.Engine.StrategyPath
	}
	if path == "" {
		return strategyconfig.Default(), nil, "", nil
	}

	sc, raw, err := strategyconfig.Load(path)
	if err != nil {
		return nil, nil, path, err
	}
	return sc, raw, path, nil
}

func loadStrategy(cfg *config.Config) (*strategyconfig.Config, error) {
	sc, _, _, err := resolveStrategy(cfg)
	return sc, err
}

// loadStore wraps the resolved strategy in a validated store
func loadStore(cfg *config.Config) (*strategyconfig.Store, error) {
	sc, err := loadStrategy(cfg)
	if err != nil {
		return nil, err
	}
	return strategyconfig.NewStore(sc)
}

// inputSource reads CSV inputs from local paths or http(s) URLs
func inputSource(log *logger.Logger) *s0_data.Source {
	return s0_data.NewSource(httputil.New(log))
}

// backends holds the storage connections shared by the long-running commands
type backends struct {
	db     *database.DB // nil when DATABASE_URL is unset
	redis  *redis.Client
	prices *s0_data.PriceRepository
	index  *index.Repository
	risk   *audit.Repository
	qual   *quality.Repository
}

// openBackends connects to PostgreSQL (when required or configured) and Redis.
// Redis 연결 실패는 경고 후 캐시 없이 진행
func openBackends(ctx context.Context, cfg *config.Config, log *logger.Logger, requireDB bool) (*backends, error) {
	b := &backends{}

	if requireDB {
		if err := cfg.RequireDatabase(); err != nil {
			return nil, err
		}
	}
	if cfg.Database.URL != "" {
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		b.db = db
		b.prices = s0_data.NewPriceRepository(db.Pool)
		b.index = index.NewRepository(db.Pool)
		b.risk = audit.NewRepository(db.Pool)
		b.qual = quality.NewRepository(db.Pool)
		log.Info("Connected to database")
	}

	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Disabled()
	}
	b.redis = rc

	return b, nil
}

// reporter builds the risk reporter over the stored timeline, nil without a database
func (b *backends) reporter(cfg *config.Config, log *logger.Logger) *audit.Reporter {
	if b.db == nil {
		return nil
	}
	cache := redis.NewCache(b.redis, "aegis-index")
	return audit.NewReporter(b.index, b.prices, cache, cfg.Redis.CacheTTL, log)
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}
