package backtest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/strategyconfig"
)

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func closeOf(i, d int) float64 {
	return 50 + float64(i)*10 + float64(d)*0.05*float64(i+1) + 2*math.Sin(float64(d)*0.7*float64(i+1))
}

func synthPrices(ids []string, days int) map[string][]contracts.PricePoint {
	out := make(map[string][]contracts.PricePoint, len(ids))
	for i, id := range ids {
		for d := 0; d < days; d++ {
			vol := 1000.0 * float64(i+1)
			out[id] = append(out[id], contracts.PricePoint{AssetID: id, Date: day(d), Close: closeOf(i, d), Volume: &vol})
		}
	}
	return out
}

func testConfig(freq strategyconfig.Frequency) *strategyconfig.Config {
	cfg := strategyconfig.Default()
	cfg.Rebalance.Frequency = freq
	cfg.Signals.LookbackDays = 10
	cfg.Risk.Window = 20
	return cfg
}

func sumsByDate(allocs contracts.Allocations) map[time.Time]float64 {
	sums := make(map[time.Time]float64)
	for _, a := range allocs {
		sums[a.Date] += a.Weight
	}
	return sums
}

type countingRecorder struct {
	mu         sync.Mutex
	runs       map[string]int
	rebalances map[string]int
	exclusions map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{runs: map[string]int{}, rebalances: map[string]int{}, exclusions: map[string]int{}}
}

func (r *countingRecorder) ObserveRun(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[status]++
}

func (r *countingRecorder) IncRebalance(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebalances[outcome]++
}

func (r *countingRecorder) IncExclusion(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exclusions[reason]++
}

func TestRun_Basic(t *testing.T) {
	rec := newCountingRecorder()
	engine := NewEngine(nil).WithRecorder(rec)
	ids := []string{"AAA", "BBB", "CCC", "DDD"}

	res, err := engine.Run(context.Background(), Input{
		Prices: synthPrices(ids, 40),
		Config: testConfig(strategyconfig.FrequencyWeekly),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.NotEmpty(t, res.ConfigHash)
	assert.Equal(t, "multi_factor_index", res.StrategyID)

	// 첫 날은 룩백 포인트 부족 → 둘째 날 인셉션
	require.NotEmpty(t, res.IndexValues)
	assert.Equal(t, day(1), res.StartDate)
	assert.Equal(t, 100.0, res.IndexValues[0].Value)
	assert.Equal(t, day(39), res.EndDate)
	assert.Len(t, res.IndexValues, 39)
	require.NotEmpty(t, res.EventsOf(contracts.EventStaleAllocation))
	require.Len(t, res.EventsOf(contracts.EventInception), 1)

	for _, v := range res.IndexValues {
		assert.Greater(t, v.Value, 0.0)
	}
	for date, sum := range sumsByDate(res.Allocations) {
		assert.InDelta(t, 1.0, sum, 1e-6, "allocation on %s", date.Format("2006-01-02"))
	}
	for _, a := range res.Allocations {
		assert.GreaterOrEqual(t, a.Weight, 0.0)
	}

	// 주간 리밸런싱 간격
	require.GreaterOrEqual(t, len(res.Rebalances), 5)
	for i := 1; i < len(res.Rebalances); i++ {
		assert.Equal(t, 7*24*time.Hour, res.Rebalances[i].Sub(res.Rebalances[i-1]))
	}
	assert.Equal(t, res.LastRebalance(), res.Rebalances[len(res.Rebalances)-1])

	final := res.FinalAllocation()
	assert.InDelta(t, 1.0, final.TotalWeight(), 1e-6)

	require.NotNil(t, res.Risk)
	assert.Equal(t, day(39), res.Risk.Date)
	assert.Equal(t, 20, res.Risk.Window)
	assert.Len(t, res.RiskSeries, 38)
	require.NotNil(t, res.Quality)
	assert.Equal(t, 4, res.Quality.ValidAssets)

	assert.Equal(t, 1, rec.runs[StatusSuccess])
	assert.Equal(t, len(res.Rebalances), rec.rebalances[OutcomeRebalanced])

	record := res.Record("series_a")
	assert.Equal(t, res.RunID, record.RunID)
	assert.Equal(t, "series_a", record.SeriesID)
	assert.Len(t, record.Values, len(res.IndexValues))
}

func TestRun_Idempotent(t *testing.T) {
	in := Input{
		Prices: synthPrices([]string{"AAA", "BBB", "CCC"}, 30),
		Config: testConfig(strategyconfig.FrequencyDaily),
	}

	first, err := NewEngine(nil).Run(context.Background(), in)
	require.NoError(t, err)
	second, err := NewEngine(nil).Run(context.Background(), in)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.ConfigHash, second.ConfigHash)
	assert.Equal(t, first.IndexValues, second.IndexValues)
	assert.Equal(t, first.Allocations, second.Allocations)
	assert.Equal(t, first.Events, second.Events)
	assert.Equal(t, first.RiskSeries, second.RiskSeries)
}

func TestRun_ConfigurationErrorAborts(t *testing.T) {
	cfg := testConfig(strategyconfig.FrequencyWeekly)
	cfg.Weights.Momentum = 0.1 // 합계 0.7

	rec := newCountingRecorder()
	_, err := NewEngine(nil).WithRecorder(rec).Run(context.Background(), Input{
		Prices: synthPrices([]string{"AAA", "BBB"}, 10),
		Config: cfg,
	})
	require.Error(t, err)
	assert.True(t, contracts.IsHardFailure(err))
	assert.Equal(t, 1, rec.runs[StatusFailed])

	_, err = NewEngine(nil).Run(context.Background(), Input{Prices: synthPrices([]string{"AAA"}, 5)})
	assert.True(t, contracts.IsHardFailure(err))
}

func TestRun_InsufficientUniverse(t *testing.T) {
	_, err := NewEngine(nil).Run(context.Background(), Input{
		Prices: synthPrices([]string{"ONLY"}, 20),
		Config: testConfig(strategyconfig.FrequencyWeekly),
	})
	require.Error(t, err)
	assert.True(t, contracts.IsStale(err))
}

func TestRun_AnomalyRetainsPreviousWeight(t *testing.T) {
	ids := []string{"AAA", "BBB", "CCC", "JMP"}
	prices := synthPrices(ids, 20)
	// JMP: 12일차 +80% 점프 후 유지
	for i := range prices["JMP"] {
		if i >= 12 {
			prices["JMP"][i].Close = prices["JMP"][11].Close * 1.8
		}
	}

	res, err := NewEngine(nil).Run(context.Background(), Input{
		Prices: prices,
		Config: testConfig(strategyconfig.FrequencyDaily),
	})
	require.NoError(t, err)

	weightOn := func(d int) float64 {
		for _, a := range res.Allocations {
			if a.Date.Equal(day(d)) && a.AssetID == "JMP" {
				return a.Weight
			}
		}
		return 0
	}

	before := weightOn(11)
	require.Greater(t, before, 0.0)
	assert.InDelta(t, before, weightOn(12), 1e-12, "anomalous asset keeps its previous weight")

	holds := res.EventsOf(contracts.EventAnomalyHold)
	require.Len(t, holds, 1)
	assert.Equal(t, "JMP", holds[0].AssetID)
	assert.Equal(t, day(12), holds[0].Date)

	// 다음 날 재평가
	assert.NotEqual(t, weightOn(12), weightOn(13))
}

func TestRun_BlacklistExcludesAsset(t *testing.T) {
	cfg := testConfig(strategyconfig.FrequencyWeekly)
	cfg.Filters.Blacklist = []string{"DDD"}

	rec := newCountingRecorder()
	res, err := NewEngine(nil).WithRecorder(rec).Run(context.Background(), Input{
		Prices: synthPrices([]string{"AAA", "BBB", "CCC", "DDD"}, 30),
		Config: cfg,
	})
	require.NoError(t, err)

	for _, a := range res.Allocations {
		if a.AssetID == "DDD" {
			assert.Zero(t, a.Weight, "blacklisted asset weighted on %s", a.Date.Format("2006-01-02"))
		}
	}
	for _, sum := range sumsByDate(res.Allocations) {
		assert.InDelta(t, 1.0, sum, 1e-6)
	}

	var excluded int
	for _, ev := range res.EventsOf(contracts.EventExcluded) {
		if ev.AssetID == "DDD" {
			assert.Equal(t, "blacklisted", ev.Detail)
			excluded++
		}
	}
	// 스크리닝마다 한 번씩 (인셉션 대기 포함)
	assert.GreaterOrEqual(t, excluded, len(res.Rebalances))
	assert.Equal(t, excluded, rec.exclusions["blacklist"])

	plain, err := NewEngine(nil).Run(context.Background(), Input{
		Prices: synthPrices([]string{"AAA", "BBB", "CCC", "DDD"}, 30),
		Config: testConfig(strategyconfig.FrequencyWeekly),
	})
	require.NoError(t, err)
	assert.NotEqual(t, plain.ConfigHash, res.ConfigHash)
}

func TestRun_ForwardFillLimitDropsConstituent(t *testing.T) {
	ids := []string{"AAA", "BBB", "CCC", "HLT"}
	prices := synthPrices(ids, 40)
	prices["HLT"] = prices["HLT"][:11] // 10일차 이후 거래 정지

	cfg := testConfig(strategyconfig.FrequencyMonthly)
	res, err := NewEngine(nil).Run(context.Background(), Input{Prices: prices, Config: cfg})
	require.NoError(t, err)

	dropped := res.EventsOf(contracts.EventConstituentDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, "HLT", dropped[0].AssetID)
	assert.Equal(t, day(10+cfg.Data.MaxForwardFillDays+1), dropped[0].Date)

	for _, a := range res.Allocations {
		if a.AssetID == "HLT" {
			assert.True(t, a.Date.Before(dropped[0].Date))
		}
	}
	for _, sum := range sumsByDate(res.Allocations) {
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestRun_Benchmark(t *testing.T) {
	var bench []contracts.BenchmarkPoint
	for d := 0; d < 30; d++ {
		bench = append(bench, contracts.BenchmarkPoint{Date: day(d), Value: 1000 + 5*math.Sin(float64(d))})
	}

	res, err := NewEngine(nil).Run(context.Background(), Input{
		Prices:    synthPrices([]string{"AAA", "BBB", "CCC"}, 30),
		Benchmark: bench,
		Config:    testConfig(strategyconfig.FrequencyWeekly),
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Risk.BetaSP500)
	assert.NotNil(t, res.Risk.CorrelationSP500)
	assert.Empty(t, res.RiskWarnings)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newCountingRecorder()
	_, err := NewEngine(nil).WithRecorder(rec).Run(ctx, Input{
		Prices: synthPrices([]string{"AAA", "BBB"}, 10),
		Config: testConfig(strategyconfig.FrequencyWeekly),
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, rec.runs[StatusCancelled])
}

func TestRun_ExcludedAssets(t *testing.T) {
	prices := synthPrices([]string{"AAA", "BBB", "CCC"}, 20)
	prices["BAD"] = []contracts.PricePoint{{AssetID: "BAD", Date: day(3), Close: math.NaN()}}

	res, err := NewEngine(nil).Run(context.Background(), Input{
		Prices: prices,
		Config: testConfig(strategyconfig.FrequencyWeekly),
	})
	require.NoError(t, err)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "BAD", res.Excluded[0].AssetID)

	var found bool
	for _, e := range res.EventsOf(contracts.EventExcluded) {
		if e.AssetID == "BAD" {
			found = true
		}
	}
	assert.True(t, found)
}
