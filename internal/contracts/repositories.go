package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// PriceRepository reads raw price and benchmark history
type PriceRepository interface {
	LoadPrices(ctx context.Context, assetIDs []string, from, to time.Time) (map[string][]PricePoint, error)
	LoadBenchmark(ctx context.Context, benchmarkID string, from, to time.Time) ([]BenchmarkPoint, error)
	LoadSharesOutstanding(ctx context.Context, assetIDs []string) (map[string]float64, error)
}

// IndexRepository persists an index timeline
type IndexRepository interface {
	AppendRun(ctx context.Context, run *RunRecord) error
	LatestValue(ctx context.Context, seriesID string) (*IndexValue, error)
	LoadValues(ctx context.Context, seriesID string, from, to time.Time) ([]IndexValue, error)
	LoadAllocations(ctx context.Context, seriesID string, date time.Time) (Allocations, error)
}

// RiskRepository persists computed risk metrics
type RiskRepository interface {
	SaveMetrics(ctx context.Context, seriesID string, metrics []RiskMetric) error
	LatestMetric(ctx context.Context, seriesID string) (*RiskMetric, error)
}

// RunRecord is one engine run to be appended to a timeline
type RunRecord struct {
	RunID       string       `json:"run_id"`
	SeriesID    string       `json:"series_id"`
	ConfigHash  string       `json:"config_hash"`
	Values      []IndexValue `json:"values"`
	Allocations []Allocation `json:"allocations"`
	Events      []Event      `json:"events"`
	CreatedAt   time.Time    `json:"created_at"`
}
