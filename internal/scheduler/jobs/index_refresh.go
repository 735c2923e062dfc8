package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// RefreshOptions configures the index refresh job
type RefreshOptions struct {
	SeriesID    string
	UniverseIDs []string  // 비어 있으면 저장된 모든 자산
	Inception   time.Time // zero면 now - HistoryDays
	HistoryDays int
	Schedule    string
}

// QualitySink stores the data quality snapshot of a run
type QualitySink interface {
	SaveSnapshot(ctx context.Context, seriesID string, snapshot *contracts.DataQualitySnapshot) error
}

// IndexRefreshJob recomputes the index from stored prices and appends the
// run to the series timeline
// ⭐ SSOT: 인덱스 갱신 스케줄은 이 Job에서만
type IndexRefreshJob struct {
	prices contracts.PriceRepository
	index  contracts.IndexRepository
	risk   contracts.RiskRepository
	qual   QualitySink // 선택
	store  *strategyconfig.Store
	engine *backtest.Engine
	opts   RefreshOptions
	logger *logger.Logger
	now    func() time.Time
}

// NewIndexRefreshJob creates a new index refresh job
func NewIndexRefreshJob(
	prices contracts.PriceRepository,
	index contracts.IndexRepository,
	risk contracts.RiskRepository,
	store *strategyconfig.Store,
	engine *backtest.Engine,
	opts RefreshOptions,
	log *logger.Logger,
) *IndexRefreshJob {
	if opts.Schedule == "" {
		opts.Schedule = "0 30 18 * * 1-5" // 평일 18:30
	}
	return &IndexRefreshJob{
		prices: prices,
		index:  index,
		risk:   risk,
		store:  store,
		engine: engine,
		opts:   opts,
		logger: logger.OrNop(log).WithComponent("job.index_refresh"),
		now:    time.Now,
	}
}

// WithQuality persists each run's quality snapshot
func (j *IndexRefreshJob) WithQuality(sink QualitySink) *IndexRefreshJob {
	j.qual = sink
	return j
}

// Name returns the job name
func (j *IndexRefreshJob) Name() string {
	return "index_refresh"
}

// Schedule returns the cron schedule
func (j *IndexRefreshJob) Schedule() string {
	return j.opts.Schedule
}

// Run executes one refresh against a config snapshot
func (j *IndexRefreshJob) Run(ctx context.Context) error {
	cfg := j.store.Snapshot()
	to := j.now()
	from := j.opts.Inception
	if from.IsZero() {
		from = to.AddDate(0, 0, -j.opts.HistoryDays)
	}

	j.logger.WithFields(map[string]interface{}{
		"series_id": j.opts.SeriesID,
		"from":      from.Format("2006-01-02"),
		"to":        to.Format("2006-01-02"),
	}).Info("Starting index refresh")

	// 1. 입력 로드
	prices, err := j.prices.LoadPrices(ctx, j.opts.UniverseIDs, from, to)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	shares, err := j.prices.LoadSharesOutstanding(ctx, j.opts.UniverseIDs)
	if err != nil {
		return fmt.Errorf("load shares outstanding: %w", err)
	}
	var bench []contracts.BenchmarkPoint
	if cfg.Risk.BenchmarkID != "" {
		bench, err = j.prices.LoadBenchmark(ctx, cfg.Risk.BenchmarkID, from, to)
		if err != nil {
			return fmt.Errorf("load benchmark: %w", err)
		}
	}

	// 2. 계산
	res, err := j.engine.Run(ctx, backtest.Input{
		Prices:            prices,
		Benchmark:         bench,
		SharesOutstanding: shares,
		Universe:          j.opts.UniverseIDs,
		Config:            cfg,
		From:              from,
		To:                to,
	})
	if err != nil {
		return fmt.Errorf("run engine: %w", err)
	}

	// 3. 저장
	if err := j.index.AppendRun(ctx, res.Record(j.opts.SeriesID)); err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	if err := j.risk.SaveMetrics(ctx, j.opts.SeriesID, res.RiskSeries); err != nil {
		return fmt.Errorf("save risk metrics: %w", err)
	}
	if j.qual != nil && res.Quality != nil {
		if err := j.qual.SaveSnapshot(ctx, j.opts.SeriesID, res.Quality); err != nil {
			return fmt.Errorf("save quality snapshot: %w", err)
		}
	}
	j.checkQuality(res.Quality)

	if last := res.LastRebalance(); !last.IsZero() {
		j.store.MarkRebalanced(last)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":      res.RunID,
		"values":      len(res.IndexValues),
		"final_value": res.FinalValue(),
		"rebalances":  len(res.Rebalances),
		"excluded":    len(res.Excluded),
	}).Info("Index refresh completed")

	return nil
}

// checkQuality warns when the run's data quality is below the minimum.
// 실행은 저장된 상태로 유지, 경고만
func (j *IndexRefreshJob) checkQuality(q *contracts.DataQualitySnapshot) bool {
	if q == nil || q.IsValid() {
		return true
	}
	j.logger.WithFields(map[string]interface{}{
		"series_id":     j.opts.SeriesID,
		"date":          q.Date.Format("2006-01-02"),
		"quality_score": q.QualityScore,
		"valid_assets":  q.ValidAssets,
	}).Warn("Data quality below minimum")
	return false
}
