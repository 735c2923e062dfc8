package contracts

import "time"

// RiskReport is the cached risk summary for an index series
// ⭐ SSOT: Audit → API/CLI 리스크 리포트
type RiskReport struct {
	SeriesID    string     `json:"series_id"`
	ConfigHash  string     `json:"config_hash"`
	BenchmarkID string     `json:"benchmark_id"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	Metric      RiskMetric `json:"metric"`
	Warnings    []string   `json:"warnings,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// IsHealthy checks if the index has healthy risk metrics
func (r *RiskReport) IsHealthy() bool {
	return r.Metric.SharpeRatio > 1.0 && r.Metric.MaxDrawdown > -0.30
}

// IsOutperforming reports a positive annualised return
func (r *RiskReport) IsOutperforming() bool {
	return r.Metric.AnnualizedReturn != nil && *r.Metric.AnnualizedReturn > 0
}
