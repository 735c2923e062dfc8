package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/internal/scheduler"
	"github.com/wonny/aegis-index/internal/scheduler/jobs"
	"github.com/wonny/aegis-index/pkg/config"
	"github.com/wonny/aegis-index/pkg/logger"
	"github.com/wonny/aegis-index/pkg/metrics"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "인덱스 갱신 스케줄러",
	Long: `등록 작업:
  index_refresh    INDEX_REFRESH_CRON (기본 평일 18:30), 인덱스 재산출 + 타임라인/리스크/품질 적재
  risk_cache_warm  15분마다, 최신 리스크 리포트를 Redis에 미리 계산

DATABASE_URL 필수. Redis가 없으면 캐시 워밍은 계산만 하고 저장하지 않습니다.`,
	Example: `  quant scheduler start --metrics-addr :9102
  quant scheduler list
  quant scheduler run index_refresh`,
}

var (
	schedulerMetricsAddr string
	schedulerRunJSON     bool
)

func init() {
	start := &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작 (Ctrl+C로 종료)",
		Args:  cobra.NoArgs,
		RunE:  runScheduler,
	}
	start.Flags().StringVar(&schedulerMetricsAddr, "metrics-addr", "", "Prometheus /metrics 주소 (예: :9102)")

	list := &cobra.Command{
		Use:   "list",
		Short: "등록된 작업과 다음 실행 시각",
		Args:  cobra.NoArgs,
		RunE:  listJobs,
	}

	run := &cobra.Command{
		Use:   "run <job>",
		Short: "작업 즉시 실행 (재시도 없이 완료까지 대기)",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
	run.Flags().BoolVar(&schedulerRunJSON, "json", false, "결과를 JSON으로 출력")

	schedulerCmd.AddCommand(start, list, run)
	rootCmd.AddCommand(schedulerCmd)
}

// schedulerRuntime is an initialized scheduler with its resources
type schedulerRuntime struct {
	sched   *scheduler.Scheduler
	metrics *metrics.Registry
	b       *backends
	log     *logger.Logger
}

func (rt *schedulerRuntime) Close() {
	rt.b.Close()
}

// serveMetrics exposes the registry until ctx is done
func (rt *schedulerRuntime) serveMetrics(ctx context.Context, addr string) {
	r := mux.NewRouter()
	r.Handle("/metrics", rt.metrics.Handler()).Methods(http.MethodGet)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.WithError(err).Error("Metrics server failed")
		}
	}()
}

func runScheduler(cmd *cobra.Command, args []string) error {
	rt, err := initScheduler(scheduler.DefaultOptions())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if schedulerMetricsAddr != "" {
		rt.serveMetrics(ctx, schedulerMetricsAddr)
	}

	rt.sched.Start()
	PrintHeader("Aegis Index Scheduler")
	printJobs(rt.sched)
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	rt.sched.Stop()
	PrintSuccess("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	rt, err := initScheduler(scheduler.DefaultOptions())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	// 다음 실행 시각은 cron이 시작된 뒤에만 계산됨
	rt.sched.Start()
	defer rt.sched.Stop()

	printJobs(rt.sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	name := args[0]

	opts := scheduler.DefaultOptions()
	opts.MaxRetries = 0

	rt, err := initScheduler(opts)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer rt.Close()

	result, err := rt.sched.RunJobSync(name)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if schedulerRunJSON {
		if err := writeJSON(result); err != nil {
			return err
		}
	} else if result.Success {
		PrintSuccess(fmt.Sprintf("%s completed in %v", name, result.Duration.Round(time.Millisecond)))
	} else {
		PrintError(fmt.Sprintf("%s failed: %s", name, result.Error))
	}

	if !result.Success {
		return fmt.Errorf("job %s failed", name)
	}
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	var rows [][]string
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t, ok := sched.NextRun(name); ok {
			next = t.Format("2006-01-02 15:04:05")
		}
		st := stats[name]
		rows = append(rows, []string{name, st.Schedule, next, fmt.Sprintf("%d/%d", st.SuccessCount, st.TotalRuns)})
	}
	printTable([]string{"JOB", "SCHEDULE", "NEXT RUN", "OK/RUNS"}, rows)
}

func initScheduler(opts scheduler.Options) (*schedulerRuntime, error) {
	cfg, log, err := loadRuntime()
	if err != nil {
		return nil, err
	}

	store, err := loadStore(cfg)
	if err != nil {
		return nil, err
	}

	b, err := openBackends(context.Background(), cfg, log, true)
	if err != nil {
		return nil, err
	}

	reg := metrics.New(true)
	engine := backtest.NewEngine(log).WithRecorder(reg)

	opts.OnResult = func(r scheduler.JobResult) {
		if !r.Skipped {
			reg.IncJob(r.JobName, r.Success)
		}
	}
	sched := scheduler.New(log, opts)

	refresh := jobs.NewIndexRefreshJob(b.prices, b.index, b.risk, store, engine, refreshOptions(cfg), log).
		WithQuality(b.qual)
	warm := jobs.NewRiskCacheWarmJob(b.reporter(cfg, log), store, cfg.Engine.SeriesID, log)

	for _, job := range []scheduler.Job{refresh, warm} {
		if err := sched.AddJob(job); err != nil {
			b.Close()
			return nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	return &schedulerRuntime{sched: sched, metrics: reg, b: b, log: log}, nil
}

func refreshOptions(cfg *config.Config) jobs.RefreshOptions {
	return jobs.RefreshOptions{
		SeriesID:    cfg.Engine.SeriesID,
		UniverseIDs: cfg.Engine.UniverseIDs,
		Inception:   cfg.Engine.Inception,
		HistoryDays: cfg.Engine.HistoryDays,
		Schedule:    cfg.Engine.RefreshCron,
	}
}
