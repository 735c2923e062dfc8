package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/audit"
	"github.com/wonny/aegis-index/internal/scheduler/jobs"
)

// riskCmd groups risk analytics commands
var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "리스크 리포트",
}

var riskReportCmd = &cobra.Command{
	Use:   "report",
	Short: "저장된 인덱스 타임라인의 최신 리스크 리포트",
	Long: `DB에 저장된 인덱스 값으로 최신 리스크 리포트를 계산합니다.
Redis가 활성화되어 있으면 캐시된 리포트를 우선 사용합니다.

Example:
  go run ./cmd/quant risk report
  go run ./cmd/quant risk report --series multi_factor_index --refresh
  go run ./cmd/quant risk report --json`,
	RunE: runRiskReport,
}

var (
	riskSeries  string
	riskRefresh bool
	riskJSON    bool
)

func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskReportCmd)

	riskReportCmd.Flags().StringVar(&riskSeries, "series", "", "시계열 ID (기본: INDEX_SERIES_ID)")
	riskReportCmd.Flags().BoolVar(&riskRefresh, "refresh", false, "캐시를 무시하고 다시 계산")
	riskReportCmd.Flags().BoolVar(&riskJSON, "json", false, "JSON 출력")
}

func runRiskReport(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	strategy, err := loadStrategy(cfg)
	if err != nil {
		return err
	}

	series := riskSeries
	if series == "" {
		series = cfg.Engine.SeriesID
	}

	ctx := context.Background()
	b, err := openBackends(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer b.Close()

	reporter := b.reporter(cfg, log)
	req, err := jobs.RiskRequest(strategy, series)
	if err != nil {
		return err
	}

	if riskRefresh {
		latest, err := b.index.LatestValue(ctx, series)
		if err != nil {
			return err
		}
		if latest != nil {
			if err := reporter.Invalidate(ctx, series, req.ConfigHash, latest.Date); err != nil {
				log.WithError(err).Warn("Failed to invalidate cached risk report")
			}
		}
	}

	report, cached, err := reporter.Latest(ctx, req)
	if err != nil {
		return fmt.Errorf("risk report: %w", err)
	}

	if riskJSON {
		data, err := audit.ToJSON(report)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	}

	fmt.Print(audit.ToSummary(report))
	if snap, err := b.qual.GetLatest(ctx, series); err != nil {
		log.WithError(err).Warn("Failed to load quality snapshot")
	} else if snap != nil {
		fmt.Printf("Data Quality (%s): score %.2f, %d/%d valid, %d excluded, passed=%v\n",
			formatDate(snap.Date), snap.QualityScore, snap.ValidAssets, snap.TotalAssets, snap.ExcludedCount, snap.Passed)
		if !snap.IsValid() {
			PrintWarning("data quality below minimum (score < 0.70 or fewer than 2 valid assets)")
		}
	}
	if cached {
		PrintInfo("served from cache (use --refresh to recompute)")
	}
	if !report.IsHealthy() {
		PrintWarning("risk metrics outside healthy range (sharpe <= 1.0 or drawdown beyond -30%)")
	}
	return nil
}
