package s2_signals

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// buildPanel makes a panel from close columns; NaN marks a missing cell
func buildPanel(closes map[string][]float64) *contracts.Panel {
	panel := &contracts.Panel{Series: map[string]*contracts.CleanedSeries{}}
	n := 0
	for _, c := range closes {
		n = max(n, len(c))
	}
	for i := 0; i < n; i++ {
		panel.Dates = append(panel.Dates, day(i+1))
	}
	for id, c := range closes {
		series := &contracts.CleanedSeries{AssetID: id}
		prev := 0.0
		for i, v := range c {
			pt := contracts.CleanPoint{Date: day(i + 1), Status: contracts.StatusMissing}
			if !math.IsNaN(v) {
				pt.Status = contracts.StatusObserved
				pt.Close = v
				if prev > 0 {
					pt.Return = v/prev - 1
					pt.HasReturn = true
				}
				prev = v
			}
			series.Points = append(series.Points, pt)
		}
		panel.Series[id] = series
	}
	return panel
}

func scoreMap(set *contracts.ScoreSet) map[string]contracts.FactorScore {
	m := map[string]contracts.FactorScore{}
	for _, s := range set.Scores {
		m[s.AssetID] = s
	}
	return m
}

func TestScore_ThreeAssets(t *testing.T) {
	panel := buildPanel(map[string][]float64{
		"UP":   {100, 102, 104, 108, 110},
		"FLAT": {50, 50, 50, 50, 50},
		"DOWN": {10, 9.5, 9.8, 9.2, 9},
	})

	set, err := NewScorer(nil).Score(panel, 4, []string{"UP", "FLAT", "DOWN"}, ScoreOptions{LookbackDays: 10})
	require.NoError(t, err)
	require.Len(t, set.Scores, 3)

	// 자산 ID 오름차순
	assert.Equal(t, "DOWN", set.Scores[0].AssetID)
	assert.Equal(t, "FLAT", set.Scores[1].AssetID)
	assert.Equal(t, "UP", set.Scores[2].AssetID)

	s := scoreMap(set)
	assert.Equal(t, 0.0, s["DOWN"].Momentum)
	assert.Equal(t, 0.5, s["FLAT"].Momentum)
	assert.Equal(t, 1.0, s["UP"].Momentum)
	assert.InDelta(t, 0.1, s["UP"].RawMomentum, 1e-12)

	// 시가총액 프록시 = 종가 (거래량/주식수 없음)
	assert.InDelta(t, 110.0/169.0, s["UP"].MarketCap, 1e-12)
	assert.InDelta(t, 1.0, s["UP"].MarketCap+s["FLAT"].MarketCap+s["DOWN"].MarketCap, 1e-12)

	// 변동성 0 → 리스크 패리티 제외
	assert.True(t, s["FLAT"].RiskParityExcluded)
	assert.Equal(t, 0.0, s["FLAT"].RiskParity)
	assert.InDelta(t, 1.0, s["UP"].RiskParity+s["DOWN"].RiskParity, 1e-12)
	assert.Greater(t, s["UP"].RiskParity, s["DOWN"].RiskParity, "UP is less volatile")
}

func TestScore_MomentumTies(t *testing.T) {
	panel := buildPanel(map[string][]float64{
		"A": {10, 11},
		"B": {20, 22},
		"C": {5, 4},
	})

	set, err := NewScorer(nil).Score(panel, 1, []string{"A", "B", "C"}, ScoreOptions{LookbackDays: 5})
	require.NoError(t, err)

	s := scoreMap(set)
	assert.Equal(t, 0.0, s["C"].Momentum)
	assert.Equal(t, 0.75, s["A"].Momentum, "ranks 1 and 2 average to 1.5")
	assert.Equal(t, 0.75, s["B"].Momentum)
}

func TestScore_MarketCapSources(t *testing.T) {
	panel := buildPanel(map[string][]float64{
		"A": {10, 10, 10},
		"B": {20, 20, 20},
		"C": {5, 5, 5},
	})
	vol := 100.0
	for i := range panel.Series["B"].Points {
		panel.Series["B"].Points[i].Volume = &vol
	}

	set, err := NewScorer(nil).Score(panel, 2, []string{"A", "B", "C"}, ScoreOptions{
		LookbackDays:      5,
		SharesOutstanding: map[string]float64{"A": 1000},
	})
	require.NoError(t, err)

	s := scoreMap(set)
	assert.Equal(t, 10000.0, s["A"].RawMarketCap, "close x shares")
	assert.Equal(t, 2000.0, s["B"].RawMarketCap, "close x mean volume")
	assert.Equal(t, 5.0, s["C"].RawMarketCap, "close only")
	assert.InDelta(t, 10000.0/12005.0, s["A"].MarketCap, 1e-12)

	// 모든 변동성 0 → 전부 제외, 점수 0
	for _, sc := range set.Scores {
		assert.True(t, sc.RiskParityExcluded)
		assert.Equal(t, 0.0, sc.RiskParity)
	}
}

func TestScore_Eligibility(t *testing.T) {
	nan := math.NaN()
	panel := buildPanel(map[string][]float64{
		"A":    {10, 11, 12, 13},
		"B":    {20, 21, 19, 22},
		"NEW":  {nan, nan, nan, 7},
		"GONE": {3, 3, nan, nan},
	})

	set, err := NewScorer(nil).Score(panel, 3, []string{"A", "B", "NEW", "GONE", "UNKNOWN"}, ScoreOptions{LookbackDays: 3})
	require.NoError(t, err)
	assert.Len(t, set.Scores, 2)

	reasons := map[string]string{}
	for _, dq := range set.Excluded {
		reasons[dq.AssetID] = dq.Reason
	}
	assert.Contains(t, reasons["NEW"], "fewer than 2")
	assert.Contains(t, reasons["GONE"], "not available")
	assert.Contains(t, reasons["UNKNOWN"], "no price history")
}

func TestScore_LookbackWindow(t *testing.T) {
	panel := buildPanel(map[string][]float64{
		"A": {1, 100, 110},
		"B": {100, 100, 105},
	})

	set, err := NewScorer(nil).Score(panel, 2, []string{"A", "B"}, ScoreOptions{LookbackDays: 1})
	require.NoError(t, err)

	s := scoreMap(set)
	assert.InDelta(t, 0.10, s["A"].RawMomentum, 1e-12, "window starts at index 1")
	assert.InDelta(t, 0.05, s["B"].RawMomentum, 1e-12)
}

func TestScore_InsufficientUniverse(t *testing.T) {
	panel := buildPanel(map[string][]float64{
		"A": {10, 11, 12},
		"B": {math.NaN(), math.NaN(), 5},
	})

	set, err := NewScorer(nil).Score(panel, 2, []string{"A", "B"}, ScoreOptions{LookbackDays: 5})
	require.Error(t, err)

	var iu *contracts.InsufficientUniverseError
	require.True(t, errors.As(err, &iu))
	assert.Equal(t, 1, iu.Eligible)
	assert.Equal(t, day(3), iu.Date)
	assert.True(t, contracts.IsStale(err))
	assert.Len(t, set.Excluded, 1)
}

func TestScore_Deterministic(t *testing.T) {
	panel := buildPanel(map[string][]float64{
		"A": {10, 11, 12, 11},
		"B": {20, 21, 19, 22},
		"C": {30, 29, 31, 30},
	})

	first, err := NewScorer(nil).Score(panel, 3, []string{"C", "A", "B"}, ScoreOptions{LookbackDays: 3})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := NewScorer(nil).Score(panel, 3, []string{"B", "C", "A"}, ScoreOptions{LookbackDays: 3})
		require.NoError(t, err)
		assert.Equal(t, first.Scores, again.Scores)
	}
}

func TestAverageRanks(t *testing.T) {
	ranks := averageRanks(map[string]float64{"a": 1, "b": 1, "c": 1, "d": 5})
	assert.Equal(t, 1.0, ranks["a"])
	assert.Equal(t, 1.0, ranks["b"])
	assert.Equal(t, 1.0, ranks["c"])
	assert.Equal(t, 3.0, ranks["d"])
}
