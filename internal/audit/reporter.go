package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/risk"
	"github.com/wonny/aegis-index/pkg/logger"
	"github.com/wonny/aegis-index/pkg/redis"
)

// =============================================================================
// Risk Reporter
// =============================================================================

// ValueSource loads a stored index timeline
type ValueSource interface {
	LoadValues(ctx context.Context, seriesID string, from, to time.Time) ([]contracts.IndexValue, error)
}

// BenchmarkSource loads benchmark levels
type BenchmarkSource interface {
	LoadBenchmark(ctx context.Context, benchmarkID string, from, to time.Time) ([]contracts.BenchmarkPoint, error)
}

// Reporter builds risk reports for stored index series and caches them
// ⭐ SSOT: 리스크 리포팅은 여기서만
type Reporter struct {
	values ValueSource
	bench  BenchmarkSource // nil이면 베타/상관 생략
	calc   *risk.Calculator
	cache  *redis.Cache
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// NewReporter creates a reporter. cache may be built on a disabled client.
func NewReporter(values ValueSource, bench BenchmarkSource, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *Reporter {
	log = logger.OrNop(log).WithComponent("audit.reporter")
	if ttl <= 0 {
		ttl = redis.TTLRiskReport
	}
	return &Reporter{
		values: values,
		bench:  bench,
		calc:   risk.NewCalculator(log),
		cache:  cache,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

// =============================================================================
// Report Generation
// =============================================================================

// openEnd bounds an open-ended date range
var openEnd = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// ReportRequest selects the series and window for a report
type ReportRequest struct {
	SeriesID    string
	ConfigHash  string
	BenchmarkID string // 비어 있으면 벤치마크 없음
	Window      int
	From        time.Time // zero면 처음부터
	To          time.Time // zero면 끝까지
}

// Latest returns the risk report as of the last stored value in [From, To].
// The second return is true when the report came from the cache.
func (r *Reporter) Latest(ctx context.Context, req ReportRequest) (*contracts.RiskReport, bool, error) {
	if req.SeriesID == "" {
		return nil, false, fmt.Errorf("risk report: series id is required")
	}

	to := req.To
	if to.IsZero() {
		to = openEnd
	}

	values, err := r.values.LoadValues(ctx, req.SeriesID, req.From, to)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load index values: %w", err)
	}
	if len(values) == 0 {
		return nil, false, fmt.Errorf("risk report %s: %w", req.SeriesID, contracts.ErrInsufficientData)
	}

	last := values[len(values)-1].Date
	key := redis.RiskReportKey(req.SeriesID, req.ConfigHash, last)

	var cached contracts.RiskReport
	found, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		// 캐시 장애는 계산으로 우회
		r.log.WithError(err).WithField("key", key).Warn("risk report cache read failed")
	} else if found {
		return &cached, true, nil
	}

	var bench []contracts.BenchmarkPoint
	if r.bench != nil && req.BenchmarkID != "" {
		bench, err = r.bench.LoadBenchmark(ctx, req.BenchmarkID, values[0].Date, last)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load benchmark: %w", err)
		}
	}

	report, err := r.Build(req, values, bench)
	if err != nil {
		return nil, false, err
	}

	if err := r.cache.Set(ctx, key, report, r.ttl); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("risk report cache write failed")
	}

	r.log.WithFields(map[string]interface{}{
		"series_id": req.SeriesID,
		"as_of":     last.Format("2006-01-02"),
		"warnings":  len(report.Warnings),
	}).Info("risk report generated")

	return report, false, nil
}

// Build computes a report from in-memory values without touching the cache
func (r *Reporter) Build(req ReportRequest, values []contracts.IndexValue, bench []contracts.BenchmarkPoint) (*contracts.RiskReport, error) {
	res, err := r.calc.Calculate(values, bench, req.Window)
	if err != nil {
		return nil, fmt.Errorf("risk report %s: %w", req.SeriesID, err)
	}

	return &contracts.RiskReport{
		SeriesID:    req.SeriesID,
		ConfigHash:  req.ConfigHash,
		BenchmarkID: req.BenchmarkID,
		StartDate:   values[0].Date,
		EndDate:     values[len(values)-1].Date,
		Metric:      res.Metric,
		Warnings:    res.WarningMessages(),
		GeneratedAt: r.now(),
	}, nil
}

// Invalidate drops the cached report for a series as of date
func (r *Reporter) Invalidate(ctx context.Context, seriesID, configHash string, asOf time.Time) error {
	return r.cache.Delete(ctx, redis.RiskReportKey(seriesID, configHash, asOf))
}

// =============================================================================
// Output Formatting
// =============================================================================

// ToJSON renders the report as indented JSON
func ToJSON(report *contracts.RiskReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// ToSummary renders a human readable summary
func ToSummary(report *contracts.RiskReport) string {
	var b strings.Builder
	m := report.Metric

	fmt.Fprintf(&b, "=== Risk Report %s (%s ~ %s) ===\n", report.SeriesID,
		report.StartDate.Format("2006-01-02"), report.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Window: %d days, Observations: %d\n\n", m.Window, m.Observations)

	fmt.Fprintf(&b, "  Total Return:      %s\n", pct(&m.TotalReturn))
	fmt.Fprintf(&b, "  Annualized Return: %s\n", pct(m.AnnualizedReturn))
	fmt.Fprintf(&b, "  Volatility:        %s\n", pct(m.Volatility))
	fmt.Fprintf(&b, "  Sharpe:            %.3f\n", m.SharpeRatio)
	fmt.Fprintf(&b, "  Sortino:           %.3f\n", m.SortinoRatio)
	fmt.Fprintf(&b, "  Max Drawdown:      %s\n", pct(&m.MaxDrawdown))
	fmt.Fprintf(&b, "  Current Drawdown:  %s\n", pct(&m.CurrentDrawdown))
	fmt.Fprintf(&b, "  VaR 95%%:           %s\n", pct(m.VaR95))
	fmt.Fprintf(&b, "  VaR 99%%:           %s\n", pct(m.VaR99))
	if report.BenchmarkID != "" {
		fmt.Fprintf(&b, "  Beta (%s):   %s\n", report.BenchmarkID, num(m.BetaSP500))
		fmt.Fprintf(&b, "  Corr (%s):   %s\n", report.BenchmarkID, num(m.CorrelationSP500))
	}
	fmt.Fprintf(&b, "\nHealthy: %v, Outperforming: %v\n", report.IsHealthy(), report.IsOutperforming())

	if len(report.Warnings) > 0 {
		b.WriteString("\n⚠️ Warnings\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	return b.String()
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}
