package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/audit"
	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/index"
	"github.com/wonny/aegis-index/internal/s0_data"
	"github.com/wonny/aegis-index/internal/s0_data/quality"
	"github.com/wonny/aegis-index/pkg/config"
	"github.com/wonny/aegis-index/pkg/database"
)

// computeCmd runs the engine over CSV inputs
var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "CSV 가격으로 인덱스 산출",
	Long: `CSV 가격 이력으로 인덱스를 산출하고 리포트를 출력합니다.

입력 형식:
  prices     asset_id,date,close[,volume]
  benchmark  date,value
  shares     asset_id,shares

Example:
  go run ./cmd/quant compute --prices prices.csv
  go run ./cmd/quant compute --prices prices.csv --benchmark spx.csv --out-index index.csv
  go run ./cmd/quant compute --prices prices.csv --json > run.json
  go run ./cmd/quant compute --prices prices.csv --persist`,
	RunE: runCompute,
}

var (
	computePrices    string
	computeBenchmark string
	computeShares    string
	computeUniverse  string
	computeFrom      string
	computeTo        string
	computeOutIndex  string
	computeOutAlloc  string
	computeOutRun    string
	computeJSON      bool
	computePersist   bool
)

func init() {
	rootCmd.AddCommand(computeCmd)

	computeCmd.Flags().StringVar(&computePrices, "prices", "", "가격 CSV 경로 또는 URL (필수)")
	computeCmd.Flags().StringVar(&computeBenchmark, "benchmark", "", "벤치마크 CSV")
	computeCmd.Flags().StringVar(&computeShares, "shares", "", "발행주식수 CSV")
	computeCmd.Flags().StringVar(&computeUniverse, "universe", "", "구성 후보 (쉼표 구분, 기본: 전체)")
	computeCmd.Flags().StringVar(&computeFrom, "from", "", "시작 날짜 (YYYY-MM-DD)")
	computeCmd.Flags().StringVar(&computeTo, "to", "", "종료 날짜 (YYYY-MM-DD)")
	computeCmd.Flags().StringVar(&computeOutIndex, "out-index", "", "인덱스 값 CSV 출력 경로")
	computeCmd.Flags().StringVar(&computeOutAlloc, "out-alloc", "", "배분 CSV 출력 경로")
	computeCmd.Flags().StringVar(&computeOutRun, "out-run", "", "런 레코드 JSON 출력 경로 (타임라인 적재용)")
	computeCmd.Flags().BoolVar(&computeJSON, "json", false, "결과 전체를 JSON으로 출력")
	computeCmd.Flags().BoolVar(&computePersist, "persist", false, "결과를 DB 타임라인에 저장")

	_ = computeCmd.MarkFlagRequired("prices")
}

func runCompute(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	strategy, err := loadStrategy(cfg)
	if err != nil {
		return err
	}

	// Ctrl+C로 취소
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// 1. 입력 로드 (로컬 경로 또는 URL)
	src := inputSource(log)
	in := backtest.Input{Config: strategy}
	if in.Prices, err = src.Prices(ctx, computePrices); err != nil {
		return err
	}
	if computeBenchmark != "" {
		if in.Benchmark, err = src.Benchmark(ctx, computeBenchmark); err != nil {
			return err
		}
	}
	if computeShares != "" {
		if in.SharesOutstanding, err = src.Shares(ctx, computeShares); err != nil {
			return err
		}
	}
	in.Universe = splitList(computeUniverse)
	if in.From, err = parseFlagDate("from", computeFrom); err != nil {
		return err
	}
	if in.To, err = parseFlagDate("to", computeTo); err != nil {
		return err
	}

	// 2. 계산
	res, err := backtest.NewEngine(log).Run(ctx, in)
	if err != nil {
		return fmt.Errorf("compute index: %w", err)
	}

	// 3. 출력
	if computeOutIndex != "" {
		if err := writeFile(computeOutIndex, func(f *os.File) error { return s0_data.WriteIndexCSV(f, res.IndexValues) }); err != nil {
			return err
		}
	}
	if computeOutAlloc != "" {
		if err := writeFile(computeOutAlloc, func(f *os.File) error { return s0_data.WriteAllocationsCSV(f, res.Allocations) }); err != nil {
			return err
		}
	}

	if computeOutRun != "" {
		data, err := index.MarshalRun(res.Record(cfg.Engine.SeriesID))
		if err != nil {
			return err
		}
		if err := writeFile(computeOutRun, func(f *os.File) error { _, err := f.Write(data); return err }); err != nil {
			return err
		}
	}

	if computePersist {
		if err := persistRun(ctx, cfg, res); err != nil {
			return err
		}
	}

	if computeJSON {
		return writeJSON(res)
	}

	printRunSummary(res, strategy.Risk.BenchmarkID, len(in.Benchmark) > 0)
	return nil
}

// persistRun appends the run and its rolling metrics to the database
func persistRun(ctx context.Context, cfg *config.Config, res *backtest.Result) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := index.NewRepository(db.Pool).AppendRun(ctx, res.Record(cfg.Engine.SeriesID)); err != nil {
		return err
	}
	if err := audit.NewRepository(db.Pool).SaveMetrics(ctx, cfg.Engine.SeriesID, res.RiskSeries); err != nil {
		return err
	}
	if res.Quality != nil {
		if err := quality.NewRepository(db.Pool).SaveSnapshot(ctx, cfg.Engine.SeriesID, res.Quality); err != nil {
			return err
		}
	}

	PrintSuccess(fmt.Sprintf("Run %s saved to series %s (%d values)", res.RunID, cfg.Engine.SeriesID, len(res.IndexValues)))
	return nil
}

// printRunSummary prints the human readable run report
func printRunSummary(res *backtest.Result, benchmarkID string, hasBenchmark bool) {
	PrintHeader("Index Run " + res.RunID)
	PrintKeyValue("Strategy", fmt.Sprintf("%s (%s)", res.StrategyID, shortHash(res.ConfigHash)), 10)
	PrintKeyValue("Period", formatDate(res.StartDate)+" ~ "+formatDate(res.EndDate), 10)
	PrintKeyValue("Final", fmt.Sprintf("%.4f", res.FinalValue()), 10)
	PrintKeyValue("Rebalances", fmt.Sprintf("%d", len(res.Rebalances)), 10)
	PrintKeyValue("Duration", res.Duration.Round(time.Millisecond).String(), 10)
	if res.Quality != nil {
		PrintKeyValue("Quality", fmt.Sprintf("%.2f (passed=%v)", res.Quality.QualityScore, res.Quality.Passed), 10)
	}
	PrintSeparator()

	// 최종 배분
	printAllocations(res.FinalAllocation())

	if res.Risk != nil {
		report := &contracts.RiskReport{
			SeriesID:    res.StrategyID,
			ConfigHash:  res.ConfigHash,
			StartDate:   res.StartDate,
			EndDate:     res.EndDate,
			Metric:      *res.Risk,
			Warnings:    res.RiskWarnings,
			GeneratedAt: time.Now(),
		}
		if hasBenchmark {
			report.BenchmarkID = benchmarkID
		}
		fmt.Print(audit.ToSummary(report))
	}

	if n := len(res.Excluded); n > 0 {
		ids := make([]string, 0, n)
		for _, dq := range res.Excluded {
			ids = append(ids, dq.AssetID)
		}
		PrintWarning(fmt.Sprintf("%d asset(s) excluded: %s", n, strings.Join(ids, ", ")))
	}
	for _, e := range res.EventsOf(contracts.EventLargeMove) {
		PrintWarning(fmt.Sprintf("%s large move: %s", formatDate(e.Date), e.Detail))
	}
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	PrintSuccess("Wrote " + path)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFlagDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: invalid date %q (expected YYYY-MM-DD)", name, s)
	}
	return t, nil
}
