package jobs

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/audit"
	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
	"github.com/wonny/aegis-index/pkg/redis"
)

var refreshNow = time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

type memPrices struct {
	prices map[string][]contracts.PricePoint
	bench  []contracts.BenchmarkPoint
	err    error
}

func newMemPrices(ids []string, days int) *memPrices {
	m := &memPrices{prices: make(map[string][]contracts.PricePoint)}
	for i, id := range ids {
		for d := 0; d < days; d++ {
			c := 40 + float64(i)*15 + float64(d)*0.1*float64(i+1) + math.Sin(float64(d)*0.5*float64(i+1))
			m.prices[id] = append(m.prices[id], contracts.PricePoint{AssetID: id, Date: day(d), Close: c})
		}
	}
	for d := 0; d < days; d++ {
		m.bench = append(m.bench, contracts.BenchmarkPoint{Date: day(d), Value: 4000 + float64(d)})
	}
	return m
}

func (m *memPrices) LoadPrices(_ context.Context, _ []string, _, _ time.Time) (map[string][]contracts.PricePoint, error) {
	return m.prices, m.err
}

func (m *memPrices) LoadBenchmark(_ context.Context, _ string, _, _ time.Time) ([]contracts.BenchmarkPoint, error) {
	return m.bench, nil
}

func (m *memPrices) LoadSharesOutstanding(_ context.Context, _ []string) (map[string]float64, error) {
	return nil, nil
}

type memIndex struct {
	mu   sync.Mutex
	runs []*contracts.RunRecord
}

func (m *memIndex) AppendRun(_ context.Context, run *contracts.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memIndex) LatestValue(_ context.Context, _ string) (*contracts.IndexValue, error) {
	return nil, nil
}

func (m *memIndex) LoadValues(_ context.Context, _ string, _, _ time.Time) ([]contracts.IndexValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	return m.runs[len(m.runs)-1].Values, nil
}

func (m *memIndex) LoadAllocations(_ context.Context, _ string, _ time.Time) (contracts.Allocations, error) {
	return nil, nil
}

type memRisk struct {
	saved []contracts.RiskMetric
}

func (m *memRisk) SaveMetrics(_ context.Context, _ string, metrics []contracts.RiskMetric) error {
	m.saved = append(m.saved, metrics...)
	return nil
}

func (m *memRisk) LatestMetric(_ context.Context, _ string) (*contracts.RiskMetric, error) {
	if len(m.saved) == 0 {
		return nil, nil
	}
	return &m.saved[len(m.saved)-1], nil
}

type memQuality struct {
	snaps []*contracts.DataQualitySnapshot
	err   error
}

func (m *memQuality) SaveSnapshot(_ context.Context, _ string, snap *contracts.DataQualitySnapshot) error {
	if m.err != nil {
		return m.err
	}
	m.snaps = append(m.snaps, snap)
	return nil
}

func testStore(t *testing.T) *strategyconfig.Store {
	t.Helper()
	cfg := strategyconfig.Default()
	cfg.Signals.LookbackDays = 10
	cfg.Risk.Window = 20
	store, err := strategyconfig.NewStore(cfg)
	require.NoError(t, err)
	return store
}

func newRefreshJob(t *testing.T, prices *memPrices, index *memIndex, risk *memRisk) (*IndexRefreshJob, *strategyconfig.Store) {
	store := testStore(t)
	job := NewIndexRefreshJob(prices, index, risk, store, backtest.NewEngine(nil), RefreshOptions{
		SeriesID:    "idx",
		Inception:   day(0),
		HistoryDays: 60,
	}, nil)
	job.now = func() time.Time { return refreshNow }
	return job, store
}

func TestIndexRefreshJob_Run(t *testing.T) {
	prices := newMemPrices([]string{"A", "B", "C"}, 60)
	index := &memIndex{}
	risk := &memRisk{}
	job, store := newRefreshJob(t, prices, index, risk)

	assert.Equal(t, "index_refresh", job.Name())
	assert.Equal(t, "0 30 18 * * 1-5", job.Schedule())

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, index.runs, 1)
	run := index.runs[0]
	assert.Equal(t, "idx", run.SeriesID)
	assert.NotEmpty(t, run.RunID)
	assert.NotEmpty(t, run.ConfigHash)
	require.NotEmpty(t, run.Values)
	assert.InDelta(t, 100, run.Values[0].Value, 1e-9)
	assert.NotEmpty(t, run.Allocations)
	assert.NotEmpty(t, risk.saved)

	// 마지막 리밸런싱 시각 기록
	assert.False(t, store.Snapshot().Rebalance.LastRebalance.IsZero())
}

func TestIndexRefreshJob_Deterministic(t *testing.T) {
	prices := newMemPrices([]string{"A", "B", "C"}, 60)
	index := &memIndex{}
	job, _ := newRefreshJob(t, prices, index, &memRisk{})

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, index.runs, 2)
	assert.Equal(t, index.runs[0].Values, index.runs[1].Values)
	assert.NotEqual(t, index.runs[0].RunID, index.runs[1].RunID)
}

func TestIndexRefreshJob_LoadError(t *testing.T) {
	prices := &memPrices{err: errors.New("db down")}
	index := &memIndex{}
	job, _ := newRefreshJob(t, prices, index, &memRisk{})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load prices")
	assert.Empty(t, index.runs)
}

func TestIndexRefreshJob_EngineError(t *testing.T) {
	// 유효한 가격 없음 → 엔진 실패, 저장 없음
	prices := &memPrices{prices: map[string][]contracts.PricePoint{
		"A": {{AssetID: "A", Date: day(0), Close: -1}},
	}}
	index := &memIndex{}
	job, _ := newRefreshJob(t, prices, index, &memRisk{})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run engine")
	assert.Empty(t, index.runs)
}

func TestIndexRefreshJob_SavesQuality(t *testing.T) {
	prices := newMemPrices([]string{"A", "B", "C"}, 60)
	qual := &memQuality{}
	job, _ := newRefreshJob(t, prices, &memIndex{}, &memRisk{})
	job.WithQuality(qual)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, qual.snaps, 1)
	assert.Equal(t, 3, qual.snaps[0].TotalAssets)
}

func TestIndexRefreshJob_QualityError(t *testing.T) {
	prices := newMemPrices([]string{"A", "B", "C"}, 60)
	job, _ := newRefreshJob(t, prices, &memIndex{}, &memRisk{})
	job.WithQuality(&memQuality{err: errors.New("disk full")})

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "save quality snapshot")
}

func TestIndexRefreshJob_CheckQuality(t *testing.T) {
	var buf bytes.Buffer
	job, _ := newRefreshJob(t, newMemPrices([]string{"A", "B"}, 10), &memIndex{}, &memRisk{})
	job.logger = logger.NewWithWriter(&buf, "warn")

	tests := []struct {
		name     string
		snapshot *contracts.DataQualitySnapshot
		want     bool
	}{
		{"no snapshot", nil, true},
		{"healthy", &contracts.DataQualitySnapshot{QualityScore: 0.9, ValidAssets: 3}, true},
		{"low score", &contracts.DataQualitySnapshot{QualityScore: 0.5, ValidAssets: 3}, false},
		{"single asset", &contracts.DataQualitySnapshot{QualityScore: 1.0, ValidAssets: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			assert.Equal(t, tt.want, job.checkQuality(tt.snapshot))
			if tt.want {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), "Data quality below minimum")
				assert.Contains(t, buf.String(), `"series_id":"idx"`)
			}
		})
	}
}

func TestRiskCacheWarmJob_Run(t *testing.T) {
	prices := newMemPrices([]string{"A", "B", "C"}, 60)
	index := &memIndex{}
	refresh, store := newRefreshJob(t, prices, index, &memRisk{})
	require.NoError(t, refresh.Run(context.Background()))

	reporter := audit.NewReporter(index, prices, redis.NewCache(redis.Disabled(), "test"), 0, nil)
	job := NewRiskCacheWarmJob(reporter, store, "idx", nil)

	assert.Equal(t, "risk_cache_warm", job.Name())
	assert.NoError(t, job.Run(context.Background()))
}

func TestRiskCacheWarmJob_EmptySeries(t *testing.T) {
	reporter := audit.NewReporter(&memIndex{}, nil, redis.NewCache(redis.Disabled(), "test"), 0, nil)
	job := NewRiskCacheWarmJob(reporter, testStore(t), "idx", nil)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, contracts.ErrInsufficientData)
}

func TestRiskRequest(t *testing.T) {
	cfg := strategyconfig.Default()
	req, err := RiskRequest(cfg, "idx")
	require.NoError(t, err)

	hash, err := strategyconfig.Hash(cfg)
	require.NoError(t, err)
	assert.Equal(t, hash, req.ConfigHash)
	assert.Equal(t, "SPX", req.BenchmarkID)
	assert.Equal(t, cfg.Risk.Window, req.Window)
}
