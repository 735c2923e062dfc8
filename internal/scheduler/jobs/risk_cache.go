package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-index/internal/audit"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// RiskCacheWarmJob recomputes the latest risk report so API reads hit the cache
type RiskCacheWarmJob struct {
	reporter *audit.Reporter
	store    *strategyconfig.Store
	seriesID string
	logger   *logger.Logger
}

// NewRiskCacheWarmJob creates a new risk cache warm job
func NewRiskCacheWarmJob(reporter *audit.Reporter, store *strategyconfig.Store, seriesID string, log *logger.Logger) *RiskCacheWarmJob {
	return &RiskCacheWarmJob{
		reporter: reporter,
		store:    store,
		seriesID: seriesID,
		logger:   logger.OrNop(log).WithComponent("job.risk_cache"),
	}
}

// Name returns the job name
func (j *RiskCacheWarmJob) Name() string {
	return "risk_cache_warm"
}

// Schedule returns the cron schedule (every 15 minutes)
func (j *RiskCacheWarmJob) Schedule() string {
	return "0 */15 * * * *"
}

// Run executes the cache warm
func (j *RiskCacheWarmJob) Run(ctx context.Context) error {
	req, err := RiskRequest(j.store.Snapshot(), j.seriesID)
	if err != nil {
		return err
	}

	report, cached, err := j.reporter.Latest(ctx, req)
	if err != nil {
		return fmt.Errorf("risk report: %w", err)
	}

	if !cached {
		j.logger.WithField("as_of", report.EndDate.Format("2006-01-02")).Debug("Risk report cache refreshed")
	}
	return nil
}

// RiskRequest builds the reporter request for the live strategy
func RiskRequest(cfg *strategyconfig.Config, seriesID string) (audit.ReportRequest, error) {
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return audit.ReportRequest{}, fmt.Errorf("hash config: %w", err)
	}
	return audit.ReportRequest{
		SeriesID:    seriesID,
		ConfigHash:  hash,
		BenchmarkID: cfg.Risk.BenchmarkID,
		Window:      cfg.Risk.Window,
	}, nil
}
