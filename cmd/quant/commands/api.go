package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/api"
	"github.com/wonny/aegis-index/internal/api/handlers"
	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/pkg/metrics"
	"github.com/wonny/aegis-index/pkg/redis"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

DATABASE_URL이 설정되면 저장된 인덱스 타임라인으로 최신 리스크 리포트를 제공하고,
Redis가 활성화되면 리포트 캐시와 인스턴스 간 계산 요청 한도를 사용합니다.

Endpoints:
  GET  /health                 - Health check
  GET  /metrics                - Prometheus metrics
  POST /api/index/compute      - 인덱스 산출
  POST /api/rebalance/check    - 리밸런싱 판단
  POST /api/risk/metrics       - 리스크 지표 계산
  GET  /api/risk/latest        - 최신 리스크 리포트 (DB 필요)
  GET  /api/index/values       - 저장된 인덱스 값 (DB 필요)
  GET  /api/index/latest       - 최신 인덱스 값 (DB 필요)
  GET  /api/index/allocations  - 특정일 배분 (DB 필요)
  GET  /api/index/runs/{id}/events - 런 이벤트 (DB 필요)
  GET  /api/strategy           - 현재 전략 설정
  PUT  /api/strategy           - 전략 설정 교체
  POST /api/strategy/override  - 가중치 오버라이드
`,
	Example: `  quant api
  quant api --port 8080 --strategy strategy.yaml`,
	Args: cobra.NoArgs,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	rootCmd.AddCommand(apiCmd)
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 2. Strategy store
	store, err := loadStore(cfg)
	if err != nil {
		return err
	}

	// 3. Storage (DB 선택, Redis 선택)
	ctx := context.Background()
	b, err := openBackends(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer b.Close()

	// 4. Metrics + engine
	reg := metrics.New(true)
	engine := backtest.NewEngine(log).WithRecorder(reg)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = reg.Handler()
	}

	// 5. Handlers
	h := api.Handlers{
		Index:     handlers.NewIndexHandler(engine, store, log),
		Rebalance: handlers.NewRebalanceHandler(engine, store, log),
		Strategy:  handlers.NewStrategyHandler(store, log),
		Risk:      handlers.NewRiskHandler(b.reporter(cfg, log), store, cfg.Engine.SeriesID, reg, log),
		Metrics:   metricsHandler,
	}

	if b.db != nil {
		h.Timeline = handlers.NewTimelineHandler(b.index, cfg.Engine.SeriesID, log)
	}

	opts := api.RouterOptions{
		RateLimitPerSecond: cfg.API.RateLimitPerSecond,
		RateLimitBurst:     cfg.API.RateLimitBurst,
		RequestTimeout:     cfg.API.RequestTimeout,
	}
	if b.redis.Enabled() {
		opts.ComputeLimiter = redis.NewRateLimiter(b.redis, "aegis-index")
	}

	// 6. Router + server
	srv := api.New(cfg, log, api.NewRouter(h, opts, log))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	PrintSuccess(fmt.Sprintf("Server running on http://localhost%s", srv.Addr()))
	if b.db == nil {
		PrintInfo("DATABASE_URL not set: /api/risk/latest and /api/index/* timeline disabled")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errc:
		// 포트 충돌 등으로 시작 실패
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("Server stopped")
	return nil
}
